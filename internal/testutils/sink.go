package testutils

import (
	"context"
	"errors"
	"sync"
	"time"

	"chatguard/internal/moderation"
)

// ErrSinkDown is returned by MockSink for actions configured to fail.
var ErrSinkDown = errors.New("sink unavailable")

// SinkCall is one recorded MockSink invocation.
type SinkCall struct {
	Kind     moderation.ActionKind
	Identity string
	Channel  string
	EventID  string
	Text     string
	Reason   string
	TTL      time.Duration
	Duration time.Duration
}

// MockSink records every call, optionally fails selected action kinds, and
// signals each call on Calls for tests of asynchronous code.
type MockSink struct {
	mu      sync.Mutex
	calls   []SinkCall
	failing map[moderation.ActionKind]error
	Signal  chan SinkCall
}

func NewMockSink(bufferSize int) *MockSink {
	return &MockSink{
		failing: make(map[moderation.ActionKind]error),
		Signal:  make(chan SinkCall, bufferSize),
	}
}

// FailOn makes every call of kind return err.
func (s *MockSink) FailOn(kind moderation.ActionKind, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[kind] = err
}

func (s *MockSink) Calls() []SinkCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SinkCall, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *MockSink) Kinds() []moderation.ActionKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]moderation.ActionKind, len(s.calls))
	for i, c := range s.calls {
		kinds[i] = c.Kind
	}
	return kinds
}

func (s *MockSink) record(c SinkCall) error {
	s.mu.Lock()
	s.calls = append(s.calls, c)
	err := s.failing[c.Kind]
	s.mu.Unlock()

	select {
	case s.Signal <- c:
	default:
	}
	return err
}

func (s *MockSink) Delete(ctx context.Context, ev moderation.Event) error {
	return s.record(SinkCall{Kind: moderation.ActionDelete, Identity: ev.Identity, Channel: ev.Channel, EventID: ev.ID})
}

func (s *MockSink) SendEphemeral(ctx context.Context, channel, text string, ttl time.Duration) error {
	return s.record(SinkCall{Kind: moderation.ActionWarnEphemeral, Channel: channel, Text: text, TTL: ttl})
}

func (s *MockSink) Timeout(ctx context.Context, identity string, d time.Duration, reason string) error {
	return s.record(SinkCall{Kind: moderation.ActionTimeout, Identity: identity, Duration: d, Reason: reason})
}

func (s *MockSink) NotifyOwner(ctx context.Context, identity, reason string) error {
	return s.record(SinkCall{Kind: moderation.ActionNotifyOwner, Identity: identity, Reason: reason})
}

// PanicSink panics on every call.
type PanicSink struct{}

func (PanicSink) Delete(context.Context, moderation.Event) error { panic("delete exploded") }
func (PanicSink) SendEphemeral(context.Context, string, string, time.Duration) error {
	panic("send exploded")
}
func (PanicSink) Timeout(context.Context, string, time.Duration, string) error {
	panic("timeout exploded")
}
func (PanicSink) NotifyOwner(context.Context, string, string) error { panic("notify exploded") }
