package idempotency

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	result  string
	pending bool
	expires time.Time
}

// MemoryStore is a process-local Store. It is used when Redis is not
// configured and in tests.
type MemoryStore struct {
	mu        sync.Mutex
	ttl       time.Duration
	entries   map[string]memoryEntry
	lastSweep time.Time
	now       func() time.Time
}

// sweepEvery throttles the expiry scan done by Begin.
const sweepEvery = time.Minute

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns a MemoryStore that forgets keys after ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Begin(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= sweepEvery {
		s.sweep(now)
	}
	if e, ok := s.entries[key]; ok && now.Before(e.expires) {
		if e.pending {
			return "", false, ErrInFlight
		}
		return e.result, true, nil
	}
	s.entries[key] = memoryEntry{pending: true, expires: now.Add(pendingTTL(s.ttl))}
	return "", false, nil
}

// sweep drops expired entries. Callers hold s.mu.
func (s *MemoryStore) sweep(now time.Time) {
	for k, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, k)
		}
	}
	s.lastSweep = now
}

// Len returns the number of remembered keys, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) Complete(_ context.Context, key, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{result: result, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Abort(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}
