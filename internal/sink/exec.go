package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"chatguard/internal/config"
	"chatguard/internal/moderation"
)

// ExecSink hands each action to an external hook executable:
//
//	hook <action> --identity=... --channel=... --reason=...
//
// Hook runs are paced by a token bucket.
type ExecSink struct {
	executablePath string
	timeout        time.Duration
	limiter        *rate.Limiter
}

var _ moderation.Sink = (*ExecSink)(nil)

func NewExecSink(cfg *config.ExecSinkConfig) (*ExecSink, error) {
	if cfg.ExecutablePath == "" {
		return nil, errors.New("exec sink requires an executable path")
	}
	limit := rate.Limit(cfg.Rate)
	if cfg.Rate <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ExecSink{
		executablePath: cfg.ExecutablePath,
		timeout:        timeout,
		limiter:        rate.NewLimiter(limit, burst),
	}, nil
}

func (s *ExecSink) run(ctx context.Context, action moderation.ActionKind, args ...string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s hook not started: %w", action, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.executablePath, append([]string{string(action)}, args...)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	slog.Debug("Executing moderation hook", "action", action, "command", cmd.String())

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s hook failed: %w, stderr: %s", action, err, stderr.String())
	}
	return nil
}

func (s *ExecSink) Delete(ctx context.Context, ev moderation.Event) error {
	return s.run(ctx, moderation.ActionDelete,
		"--identity="+ev.Identity,
		"--channel="+ev.Channel,
		"--event-id="+ev.ID,
	)
}

func (s *ExecSink) SendEphemeral(ctx context.Context, channel, text string, ttl time.Duration) error {
	return s.run(ctx, moderation.ActionWarnEphemeral,
		"--channel="+channel,
		"--text="+text,
		"--ttl="+seconds(ttl),
	)
}

func (s *ExecSink) Timeout(ctx context.Context, identity string, d time.Duration, reason string) error {
	return s.run(ctx, moderation.ActionTimeout,
		"--identity="+identity,
		"--duration="+seconds(d),
		"--reason="+reason,
	)
}

func (s *ExecSink) NotifyOwner(ctx context.Context, identity, reason string) error {
	return s.run(ctx, moderation.ActionNotifyOwner,
		"--identity="+identity,
		"--reason="+reason,
	)
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
