package testutils

import (
	"context"
	"sync"
	"time"
)

// InMemoryLedger is a map-backed timeout ledger with expiry.
type InMemoryLedger struct {
	mu      sync.Mutex
	expires map[string]time.Time
	lookups int
	err     error
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{expires: make(map[string]time.Time)}
}

// SetError makes every later call return err; nil clears it.
func (s *InMemoryLedger) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Lookups counts IsTimedOut calls.
func (s *InMemoryLedger) Lookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

func (s *InMemoryLedger) TimeoutIdentity(ctx context.Context, identity string, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.expires[identity] = time.Now().Add(d)
	return nil
}

func (s *InMemoryLedger) IsTimedOut(ctx context.Context, identity string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	if s.err != nil {
		return false, s.err
	}
	exp, ok := s.expires[identity]
	if ok && time.Now().After(exp) {
		delete(s.expires, identity)
		return false, nil
	}
	return ok, nil
}

func (s *InMemoryLedger) ClearTimeout(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	delete(s.expires, identity)
	return nil
}

func (s *InMemoryLedger) Close() error { return nil }
