// Package memory provides an in-process KVStore. It is the zero-infra
// default for library embedders and the workhorse for unit tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/graft/pkg/domain"
)

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Store implements ports.KVStore in memory. Safe for concurrent use.
// Expired entries are reaped lazily on access.
type Store struct {
	mu   sync.Mutex
	data map[string]entry
	now  func() time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithClock overrides the time source. Used by tests to fast-forward TTLs.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a new in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		data: make(map[string]entry),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the value for key or domain.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok || e.expired(s.now()) {
		delete(s.data, key)
		return nil, domain.ErrKeyNotFound
	}

	// Copy on read so callers can't mutate the stored slice.
	val := make([]byte, len(e.value))
	copy(val, e.value)
	return val, nil
}

// Set stores the value. A ttl of zero means no expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = s.newEntry(value, ttl)
	return nil
}

// SetNX stores the value only if the key is absent (or expired).
func (s *Store) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.data[key]; ok && !e.expired(s.now()) {
		return false, nil
	}
	s.data[key] = s.newEntry(value, ttl)
	return true, nil
}

// Delete removes the key. Missing keys are a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *Store) newEntry(value []byte, ttl time.Duration) entry {
	val := make([]byte, len(value))
	copy(val, value)

	e := entry{value: val}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	return e
}
