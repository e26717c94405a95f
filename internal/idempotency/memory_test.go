package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Hour)
	s.now = func() time.Time { return now }

	_, done, err := s.Begin(ctx, "u1:k1")
	require.NoError(t, err)
	assert.False(t, done)

	_, _, err = s.Begin(ctx, "u1:k1")
	require.ErrorIs(t, err, ErrInFlight)

	require.NoError(t, s.Complete(ctx, "u1:k1", "order-1"))

	result, done, err := s.Begin(ctx, "u1:k1")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, "order-1", result)

	// Other keys are independent.
	_, done, err = s.Begin(ctx, "u2:k1")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestMemoryStore_Abort(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	_, _, err := s.Begin(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, s.Abort(ctx, "k"))

	_, done, err := s.Begin(ctx, "k")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Minute)
	s.now = func() time.Time { return now }

	_, _, err := s.Begin(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, "k", "order-1"))

	now = now.Add(2 * time.Minute)
	_, done, err := s.Begin(ctx, "k")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestMemoryStore_PendingExpiresEarly(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore(24 * time.Hour)
	s.now = func() time.Time { return now }

	_, _, err := s.Begin(ctx, "k")
	require.NoError(t, err)

	now = now.Add(PendingTTL - time.Second)
	_, _, err = s.Begin(ctx, "k")
	require.ErrorIs(t, err, ErrInFlight)

	// The claim was never completed; a retry may take it over.
	now = now.Add(2 * time.Second)
	_, done, err := s.Begin(ctx, "k")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestMemoryStore_SweepsExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Hour)
	s.now = func() time.Time { return now }

	for _, k := range []string{"a", "b", "c"} {
		_, _, err := s.Begin(ctx, k)
		require.NoError(t, err)
		require.NoError(t, s.Complete(ctx, k, "order-"+k))
	}
	assert.Equal(t, 3, s.Len())

	now = now.Add(2 * time.Hour)
	_, _, err := s.Begin(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
}
