package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"chatguard/internal/moderation"
)

// Command is one action as written by JSONSink. Durations are in seconds.
type Command struct {
	Action   moderation.ActionKind `json:"action"`
	Identity string                `json:"identity,omitempty"`
	Channel  string                `json:"channel,omitempty"`
	EventID  string                `json:"event_id,omitempty"`
	Text     string                `json:"text,omitempty"`
	Reason   string                `json:"reason,omitempty"`
	TTL      float64               `json:"ttl_seconds,omitempty"`
	Duration float64               `json:"duration_seconds,omitempty"`
}

// JSONSink writes every action as one JSON line for the chat transport to
// carry out.
type JSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

var _ moderation.Sink = (*JSONSink)(nil)

func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{enc: json.NewEncoder(w)}
}

func (s *JSONSink) write(ctx context.Context, c Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(c); err != nil {
		return fmt.Errorf("failed to write %s command: %w", c.Action, err)
	}
	return nil
}

func (s *JSONSink) Delete(ctx context.Context, ev moderation.Event) error {
	return s.write(ctx, Command{
		Action:   moderation.ActionDelete,
		Identity: ev.Identity,
		Channel:  ev.Channel,
		EventID:  ev.ID,
	})
}

func (s *JSONSink) SendEphemeral(ctx context.Context, channel, text string, ttl time.Duration) error {
	return s.write(ctx, Command{
		Action:  moderation.ActionWarnEphemeral,
		Channel: channel,
		Text:    text,
		TTL:     ttl.Seconds(),
	})
}

func (s *JSONSink) Timeout(ctx context.Context, identity string, d time.Duration, reason string) error {
	return s.write(ctx, Command{
		Action:   moderation.ActionTimeout,
		Identity: identity,
		Reason:   reason,
		Duration: d.Seconds(),
	})
}

func (s *JSONSink) NotifyOwner(ctx context.Context, identity, reason string) error {
	return s.write(ctx, Command{
		Action:   moderation.ActionNotifyOwner,
		Identity: identity,
		Reason:   reason,
	})
}
