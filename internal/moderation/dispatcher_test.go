package moderation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chatguard/internal/moderation"
	"chatguard/internal/testutils"

	"github.com/stretchr/testify/require"
)

type recordingCollector struct {
	mu        sync.Mutex
	decisions []moderation.Decision
	attempts  []moderation.Attempt
}

func (c *recordingCollector) ReportDecision(d moderation.Decision, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decisions = append(c.decisions, d)
}

func (c *recordingCollector) ReportAttempt(a moderation.Attempt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts = append(c.attempts, a)
}

type recordingHandler struct {
	mu    sync.Mutex
	calls []string
}

func (h *recordingHandler) HandleViolation(_ context.Context, ev moderation.Event, _ moderation.Decision) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, ev.Identity)
}

func contentViolation() moderation.Decision {
	return moderation.Decision{
		Outcome: moderation.OutcomeViolation,
		Reason:  "banned_term",
		RuleID:  "banned_term",
		Actions: []moderation.Action{
			{Kind: moderation.ActionDelete, Reason: "banned_term"},
			{Kind: moderation.ActionWarnEphemeral, Reason: "banned_term", Text: "careful", TTL: 5 * time.Second},
			{Kind: moderation.ActionTimeout, Reason: "banned_term", Duration: time.Minute},
			{Kind: moderation.ActionNotifyOwner, Reason: "banned_term"},
		},
	}
}

func TestDispatcher_RunsActionsInOrder(t *testing.T) {
	sink := testutils.NewMockSink(10)
	collector := &recordingCollector{}
	d := moderation.NewDispatcher(sink, time.Second, collector)

	ev := testutils.MakeEvent("U1", "hello gand", testutils.At(0))
	report := d.Dispatch(context.Background(), ev, contentViolation())

	require.Equal(t, ev.ID, report.EventID)
	require.Zero(t, report.Failed())
	require.Empty(t, report.Errors())
	require.Equal(t, []moderation.ActionKind{
		moderation.ActionDelete,
		moderation.ActionWarnEphemeral,
		moderation.ActionTimeout,
		moderation.ActionNotifyOwner,
	}, sink.Kinds())

	calls := sink.Calls()
	require.Equal(t, ev.ID, calls[0].EventID)
	require.Equal(t, testutils.TestChannel, calls[1].Channel)
	require.Equal(t, "careful", calls[1].Text)
	require.Equal(t, 5*time.Second, calls[1].TTL)
	require.Equal(t, "U1", calls[2].Identity)
	require.Equal(t, time.Minute, calls[2].Duration)
	require.Equal(t, "banned_term", calls[3].Reason)

	require.Len(t, collector.attempts, 4)
}

func TestDispatcher_FailureIsolation(t *testing.T) {
	testCases := []struct {
		name    string
		failing []moderation.ActionKind
	}{
		{"delete fails", []moderation.ActionKind{moderation.ActionDelete}},
		{"warn fails", []moderation.ActionKind{moderation.ActionWarnEphemeral}},
		{"delete and timeout fail", []moderation.ActionKind{moderation.ActionDelete, moderation.ActionTimeout}},
		{"everything fails", []moderation.ActionKind{
			moderation.ActionDelete, moderation.ActionWarnEphemeral,
			moderation.ActionTimeout, moderation.ActionNotifyOwner,
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sink := testutils.NewMockSink(10)
			for _, k := range tc.failing {
				sink.FailOn(k, testutils.ErrSinkDown)
			}
			d := moderation.NewDispatcher(sink, time.Second, nil)

			report := d.Dispatch(context.Background(), testutils.MakeEvent("U1", "x", testutils.At(0)), contentViolation())

			require.Len(t, sink.Calls(), 4, "every action must be attempted")
			require.Equal(t, len(tc.failing), report.Failed())
			for i, err := range report.Errors() {
				require.ErrorIs(t, err, testutils.ErrSinkDown)
				require.Equal(t, tc.failing[i], err.Action.Kind)
			}
		})
	}
}

func TestDispatcher_RecoversSinkPanics(t *testing.T) {
	d := moderation.NewDispatcher(testutils.PanicSink{}, time.Second, nil)

	var report moderation.Report
	require.NotPanics(t, func() {
		report = d.Dispatch(context.Background(), testutils.MakeEvent("U1", "x", testutils.At(0)), contentViolation())
	})
	require.Len(t, report.Attempts, 4)
	require.Equal(t, 4, report.Failed())
	require.Contains(t, report.Errors()[0].Error(), "sink panic")
}

type slowSink struct {
	*testutils.MockSink
}

func (s slowSink) Delete(ctx context.Context, ev moderation.Event) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestDispatcher_ActionTimeout(t *testing.T) {
	sink := slowSink{testutils.NewMockSink(10)}
	d := moderation.NewDispatcher(sink, 20*time.Millisecond, nil)

	report := d.Dispatch(context.Background(), testutils.MakeEvent("U1", "x", testutils.At(0)), contentViolation())

	require.Equal(t, 1, report.Failed())
	require.True(t, errors.Is(report.Errors()[0], context.DeadlineExceeded))
	require.Len(t, sink.Calls(), 3, "later actions still run")
}

func TestDispatcher_HandlersOnlyOnViolation(t *testing.T) {
	sink := testutils.NewMockSink(10)
	handler := &recordingHandler{}
	d := moderation.NewDispatcher(sink, time.Second, nil, handler)

	report := d.Dispatch(context.Background(), testutils.MakeEvent("clean", "hi", testutils.At(0)), moderation.Decision{})
	require.Empty(t, report.Attempts)
	require.Empty(t, handler.calls)
	require.Empty(t, sink.Calls())

	d.Dispatch(context.Background(), testutils.MakeEvent("bad", "x", testutils.At(0)), contentViolation())
	require.Equal(t, []string{"bad"}, handler.calls)
}
