package moderation_test

import (
	"context"
	"testing"
	"time"

	"chatguard/internal/config"
	"chatguard/internal/moderation"
	"chatguard/internal/testutils"

	"github.com/stretchr/testify/require"
)

func escalationConfig() *config.EscalationConfig {
	return &config.EscalationConfig{
		Enabled:          true,
		MaxStrikes:       3,
		StrikeWindow:     time.Minute,
		TimeoutDuration:  time.Hour,
		CacheSize:        100,
		CooldownDuration: time.Minute,
		ExcludeRules:     []string{moderation.RuleRateExceeded},
	}
}

func violation(rule string) moderation.Decision {
	return moderation.Decision{Outcome: moderation.OutcomeViolation, Reason: rule, RuleID: rule}
}

func TestStrikeTracker_Escalates(t *testing.T) {
	sink := testutils.NewMockSink(10)
	tracker := moderation.NewStrikeTracker(sink, escalationConfig())
	ctx := context.Background()
	ev := testutils.MakeEvent("repeat", "x", testutils.At(0))

	tracker.HandleViolation(ctx, ev, violation("link"))
	tracker.HandleViolation(ctx, ev, violation("banned_term"))
	require.Empty(t, sink.Calls(), "no escalation before the strike limit")
	require.Equal(t, 2, tracker.Strikes("repeat"))

	tracker.HandleViolation(ctx, ev, violation("link"))

	select {
	case call := <-sink.Signal:
		require.Equal(t, moderation.ActionTimeout, call.Kind)
		require.Equal(t, "repeat", call.Identity)
		require.Equal(t, time.Hour, call.Duration)
		require.Equal(t, "repeated violations", call.Reason)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for escalation")
	}

	require.Zero(t, tracker.Strikes("repeat"), "escalation clears the record")

	// Cooldown swallows further strikes.
	for i := 0; i < 5; i++ {
		tracker.HandleViolation(ctx, ev, violation("link"))
	}
	require.Zero(t, tracker.Strikes("repeat"))
	require.NoError(t, tracker.Close())
	require.Len(t, sink.Calls(), 1)
}

func TestStrikeTracker_Skips(t *testing.T) {
	testCases := []struct {
		name     string
		mutate   func(*config.EscalationConfig)
		decision moderation.Decision
	}{
		{"disabled", func(c *config.EscalationConfig) { c.Enabled = false }, violation("link")},
		{"excluded rule", func(*config.EscalationConfig) {}, violation(moderation.RuleRateExceeded)},
		{"clean decision", func(*config.EscalationConfig) {}, moderation.Decision{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := escalationConfig()
			tc.mutate(cfg)
			sink := testutils.NewMockSink(10)
			tracker := moderation.NewStrikeTracker(sink, cfg)

			ev := testutils.MakeEvent("someone", "x", testutils.At(0))
			for i := 0; i < 10; i++ {
				tracker.HandleViolation(context.Background(), ev, tc.decision)
			}
			require.NoError(t, tracker.Close())
			require.Empty(t, sink.Calls())
			require.Zero(t, tracker.Strikes("someone"))
		})
	}
}

func TestStrikeTracker_SinkFailureIsLogged(t *testing.T) {
	sink := testutils.NewMockSink(10)
	sink.FailOn(moderation.ActionTimeout, testutils.ErrSinkDown)
	tracker := moderation.NewStrikeTracker(sink, escalationConfig())

	ev := testutils.MakeEvent("repeat", "x", testutils.At(0))
	for i := 0; i < 3; i++ {
		tracker.HandleViolation(context.Background(), ev, violation("link"))
	}
	require.NoError(t, tracker.Close())
	require.Len(t, sink.Calls(), 1)
}

func TestStrikeTracker_IdentitiesAreIndependent(t *testing.T) {
	sink := testutils.NewMockSink(10)
	tracker := moderation.NewStrikeTracker(sink, escalationConfig())

	for _, id := range []string{"a", "b", "a", "b", "a"} {
		tracker.HandleViolation(context.Background(), testutils.MakeEvent(id, "x", testutils.At(0)), violation("link"))
	}
	require.NoError(t, tracker.Close())

	calls := sink.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "a", calls[0].Identity)
	require.Equal(t, 2, tracker.Strikes("b"))
}

func TestStrikeTracker_StrikesExpireWithWindow(t *testing.T) {
	cfg := escalationConfig()
	cfg.StrikeWindow = 50 * time.Millisecond
	sink := testutils.NewMockSink(10)
	tracker := moderation.NewStrikeTracker(sink, cfg)
	ev := testutils.MakeEvent("slow", "x", testutils.At(0))

	tracker.HandleViolation(context.Background(), ev, violation("link"))
	tracker.HandleViolation(context.Background(), ev, violation("link"))
	require.Eventually(t, func() bool { return tracker.Strikes("slow") == 0 }, time.Second, 10*time.Millisecond)

	tracker.HandleViolation(context.Background(), ev, violation("link"))
	require.NoError(t, tracker.Close())
	require.Empty(t, sink.Calls(), "strikes spread beyond the window never escalate")
}
