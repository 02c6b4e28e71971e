package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// MemoryIdempotencyStore is the single-process fallback used when no Redis
// address is configured.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	locks   map[string]time.Time
	results map[string]entry
}

func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		ttl:     ttl,
		now:     time.Now,
		locks:   make(map[string]time.Time),
		results: make(map[string]entry),
	}
}

func (s *MemoryIdempotencyStore) TryLock(_ context.Context, scope, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := lockKey(scope, key)
	if exp, ok := s.locks[k]; ok && s.now().Before(exp) {
		return false, nil
	}
	s.locks[k] = s.now().Add(s.ttl)
	return true, nil
}

func (s *MemoryIdempotencyStore) Release(_ context.Context, scope, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, lockKey(scope, key))
	return nil
}

func (s *MemoryIdempotencyStore) Remember(_ context.Context, scope, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[resultKey(scope, key)] = entry{value: value, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryIdempotencyStore) Recall(_ context.Context, scope, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := resultKey(scope, key)
	e, ok := s.results[k]
	if !ok {
		return "", false, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.results, k)
		return "", false, nil
	}
	return e.value, true, nil
}
