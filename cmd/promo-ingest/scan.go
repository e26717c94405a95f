package main

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"math/bits"
	"os"
	"slices"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"
)

const (
	bloomFPR      = 0.001
	progressEvery = 10_000_000
	minCodeLen    = 6
	maxCodeLen    = 16
	maxFeeds      = bits.UintSize
)

type scanOptions struct {
	Quorum   int
	Capacity uint
}

// normalizeCode trims and upper-cases a feed line. Lines that cannot be a
// promo code come back empty.
func normalizeCode(line string) string {
	code := strings.ToUpper(strings.TrimSpace(line))
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return ""
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return code
}

// scanFeeds returns the sorted codes listed by at least opts.Quorum feeds.
//
// The first pass builds one bloom filter per feed. The second pass keeps a
// code only if enough other filters may contain it, then tracks exact feed
// membership in a bitmask so false positives never reach the result.
func scanFeeds(ctx context.Context, files []string, opts scanOptions) ([]string, error) {
	if len(files) > maxFeeds {
		return nil, errors.Errorf("at most %d feeds supported, got %d", maxFeeds, len(files))
	}
	if opts.Quorum < 1 {
		opts.Quorum = 1
	}
	if opts.Capacity == 0 {
		opts.Capacity = 1_000_000
	}

	slog.Info("pass 1: building bloom filters", slog.Int("feeds", len(files)))
	filters := make([]*bloom.BloomFilter, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			f := bloom.NewWithEstimates(opts.Capacity, bloomFPR)
			n, err := streamFeed(gctx, path, func(code string) { f.AddString(code) })
			if err != nil {
				return errors.Wrapf(err, "index feed %d", i+1)
			}
			slog.Info("pass 1 complete", slog.String("feed", path), slog.Uint64("codes", n))
			filters[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Info("pass 2: collecting candidates")
	masks := make([]map[string]uint, len(files))
	g, gctx = errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			candidates := make(map[string]uint)
			bit := uint(1) << uint(i)
			n, err := streamFeed(gctx, path, func(code string) {
				others := 0
				for j, f := range filters {
					if j != i && f.TestString(code) {
						others++
					}
				}
				if others+1 >= opts.Quorum {
					candidates[code] |= bit
				}
			})
			if err != nil {
				return errors.Wrapf(err, "scan feed %d", i+1)
			}
			slog.Info("pass 2 complete",
				slog.String("feed", path),
				slog.Uint64("codes", n),
				slog.Int("candidates", len(candidates)),
			)
			masks[i] = candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, m := range masks {
		for code, mask := range m {
			merged[code] |= mask
		}
	}
	var accepted []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= opts.Quorum {
			accepted = append(accepted, code)
		}
	}
	slices.Sort(accepted)
	return accepted, nil
}

// streamFeed calls fn for every valid code in the gzip file at path and
// returns how many it saw.
func streamFeed(ctx context.Context, path string, fn func(code string)) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrapf(err, "gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	return scanCodes(ctx, gz, path, fn)
}

func scanCodes(ctx context.Context, r io.Reader, name string, fn func(code string)) (uint64, error) {
	var count uint64
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		code := normalizeCode(scanner.Text())
		if code == "" {
			continue
		}
		fn(code)
		count++
		if count%progressEvery == 0 {
			slog.Info("scan progress", slog.String("feed", name), slog.Uint64("codes", count))
		}
	}
	if err := scanner.Err(); err != nil {
		return count, errors.Wrapf(err, "scan %s", name)
	}
	return count, nil
}
