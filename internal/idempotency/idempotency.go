// Package idempotency remembers the outcome of client requests tagged with
// an Idempotency-Key so that retries return the original result.
package idempotency

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrInFlight is returned by Begin when another request holding the same key
// has not finished yet.
var ErrInFlight = errors.New("request with this idempotency key is in progress")

// DefaultTTL bounds how long a key is remembered.
const DefaultTTL = 24 * time.Hour

// PendingTTL bounds how long an unfinished claim blocks retries. A request
// that dies between its commit and Complete only holds the key this long.
const PendingTTL = time.Minute

func pendingTTL(ttl time.Duration) time.Duration {
	return min(ttl, PendingTTL)
}

// Store claims keys and records their results.
type Store interface {
	// Begin claims key. If a request with the same key already completed,
	// it returns that request's result and done=true.
	Begin(ctx context.Context, key string) (result string, done bool, err error)
	// Complete records result for a claimed key.
	Complete(ctx context.Context, key, result string) error
	// Abort releases a claimed key so the request can be retried.
	Abort(ctx context.Context, key string) error
}
