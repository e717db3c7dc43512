package sink

import (
	"context"
	"log/slog"
	"time"

	"chatguard/internal/moderation"
)

// TimeoutRecorder persists issued timeouts.
type TimeoutRecorder interface {
	TimeoutIdentity(ctx context.Context, identity string, d time.Duration) error
}

// LedgerSink records every timeout in a ledger before passing it on, so the
// intake can drop messages from timed-out identities.
type LedgerSink struct {
	moderation.Sink
	ledger TimeoutRecorder
}

func NewLedgerSink(next moderation.Sink, ledger TimeoutRecorder) *LedgerSink {
	return &LedgerSink{Sink: next, ledger: ledger}
}

// Timeout records first; a ledger failure is logged and does not block the
// platform timeout.
func (s *LedgerSink) Timeout(ctx context.Context, identity string, d time.Duration, reason string) error {
	if err := s.ledger.TimeoutIdentity(ctx, identity, d); err != nil {
		slog.Error("Failed to record timeout", "identity", identity, "error", err)
	}
	return s.Sink.Timeout(ctx, identity, d, reason)
}
