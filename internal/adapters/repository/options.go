package repository

import (
	"time"

	"github.com/google/uuid"
)

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithPublisher routes committed changes to p.
func WithPublisher(p Publisher) Option {
	return func(s *MemoryStore) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithClock overrides the time source used for server timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides document id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *MemoryStore) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithFailure injects err into every operation named op. Used by tests to
// exercise error paths of callers.
func WithFailure(op string, err error) Option {
	return func(s *MemoryStore) {
		s.failures[op] = err
	}
}

func defaultID() string { return uuid.NewString() }
