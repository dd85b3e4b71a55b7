package service

import (
	"context"
	"sync"
	"time"
)

type memoryIdempotencyEntry struct {
	fingerprint string
	completed   bool
	response    CachedHTTPResponse
	expiresAt   time.Time
}

// InMemoryIdempotencyStore keeps claims in process memory. It only
// de-duplicates requests that reach the same instance.
type InMemoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]memoryIdempotencyEntry
	now     func() time.Time
}

func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	return &InMemoryIdempotencyStore{
		entries: make(map[string]memoryIdempotencyEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *InMemoryIdempotencyStore) Begin(_ context.Context, scope, key, fingerprint string, ttl time.Duration) (IdempotencyBeginResult, error) {
	now := s.now()
	id := idempotencyEntryKey(scope, key)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpiredLocked(now)

	entry, ok := s.entries[id]
	if !ok {
		s.entries[id] = memoryIdempotencyEntry{fingerprint: fingerprint, expiresAt: now.Add(ttl)}
		return IdempotencyBeginResult{State: IdempotencyStateNew}, nil
	}
	if entry.fingerprint != fingerprint {
		return IdempotencyBeginResult{State: IdempotencyStateConflict}, nil
	}
	if !entry.completed {
		return IdempotencyBeginResult{State: IdempotencyStateInProgress}, nil
	}
	cached := entry.response
	cached.Body = append([]byte(nil), entry.response.Body...)
	return IdempotencyBeginResult{State: IdempotencyStateReplay, Cached: &cached}, nil
}

func (s *InMemoryIdempotencyStore) Complete(_ context.Context, scope, key, fingerprint string, response CachedHTTPResponse, ttl time.Duration) error {
	id := idempotencyEntryKey(scope, key)
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok || entry.fingerprint != fingerprint || entry.completed {
		return nil
	}
	response.Body = append([]byte(nil), response.Body...)
	entry.completed = true
	entry.response = response
	entry.expiresAt = s.now().Add(ttl)
	s.entries[id] = entry
	return nil
}

func (s *InMemoryIdempotencyStore) Release(_ context.Context, scope, key, fingerprint string) error {
	id := idempotencyEntryKey(scope, key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[id]; ok && entry.fingerprint == fingerprint && !entry.completed {
		delete(s.entries, id)
	}
	return nil
}

func (s *InMemoryIdempotencyStore) evictExpiredLocked(now time.Time) {
	for id, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, id)
		}
	}
}

func idempotencyEntryKey(scope, key string) string {
	if scope == "" {
		scope = "default"
	}
	return scope + "\x00" + key
}
