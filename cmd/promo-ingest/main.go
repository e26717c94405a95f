// Command promo-ingest loads campaign promo codes from partner feeds.
//
// Each feed is a gzip-compressed list of codes, one per line. A code is
// published only when at least --quorum feeds list it, which filters out
// codes a single partner leaked or mistyped.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/repository"
)

func main() {
	var (
		pattern     string
		databaseURL string
		opts        scanOptions
		chunk       int
	)

	flag.StringVar(&pattern, "feeds", "data/promo-feed-*.gz", "glob matching gzip-compressed promo feeds")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&opts.Quorum, "quorum", 2, "minimum number of feeds that must list a code")
	flag.UintVar(&opts.Capacity, "capacity", 50_000_000, "expected codes per feed, sizes the bloom filters")
	flag.IntVar(&chunk, "batch", 500, "codes per database batch")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, pattern, databaseURL, opts, chunk); err != nil {
		slog.Error("promo ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("promo ingest completed successfully")
}

func run(ctx context.Context, pattern, databaseURL string, opts scanOptions, chunk int) error {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return errors.Wrap(err, "match feeds")
	}
	slices.Sort(files)
	if len(files) < opts.Quorum {
		return errors.Errorf("found %d feeds for %q, need at least %d", len(files), pattern, opts.Quorum)
	}

	codes, err := scanFeeds(ctx, files, opts)
	if err != nil {
		return err
	}
	slog.Info("codes accepted", slog.Int("count", len(codes)))
	if len(codes) == 0 {
		slog.Info("no codes to write")
		return nil
	}

	slog.Info("connecting to database")
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return err
	}

	if err := writePromos(ctx, pool, codes, chunk); err != nil {
		return errors.Wrap(err, "write promos")
	}
	return nil
}
