package idempotency

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

const pendingMarker = "\x00pending"

// RedisStore is a Store shared across API replicas.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore returns a RedisStore namespacing keys under prefix.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

func (s *RedisStore) Begin(ctx context.Context, key string) (string, bool, error) {
	claimed, err := s.client.SetNX(ctx, s.key(key), pendingMarker, pendingTTL(s.ttl)).Result()
	if err != nil {
		return "", false, errors.Wrap(err, "claim idempotency key")
	}
	if claimed {
		return "", false, nil
	}

	val, err := s.client.Get(ctx, s.key(key)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Expired between SETNX and GET; the caller may retry.
		return "", false, ErrInFlight
	case err != nil:
		return "", false, errors.Wrap(err, "read idempotency key")
	case val == pendingMarker:
		return "", false, ErrInFlight
	default:
		return val, true, nil
	}
}

func (s *RedisStore) Complete(ctx context.Context, key, result string) error {
	if err := s.client.Set(ctx, s.key(key), result, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "store idempotency result")
	}
	return nil
}

func (s *RedisStore) Abort(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return errors.Wrap(err, "release idempotency key")
	}
	return nil
}
