package moderation

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"chatguard/internal/config"
)

const (
	escalationReason  = "repeated violations"
	escalationTimeout = 5 * time.Second
)

// strikeRecord is an identity's violation history inside the strike window.
// It is only touched with StrikeTracker.mu held.
type strikeRecord struct {
	count int
	first time.Time
	rules []string
}

// StrikeTracker turns repeated violations into a long timeout. Each violation
// not in ExcludeRules adds a strike; MaxStrikes strikes inside StrikeWindow
// issue escalation.timeout_duration through the sink, after which the
// identity earns no strikes until CooldownDuration has passed.
type StrikeTracker struct {
	sink Sink
	cfg  *config.EscalationConfig
	now  func() time.Time

	mu        sync.Mutex
	records   *lru.LRU[string, *strikeRecord]
	escalated *lru.LRU[string, struct{}]

	inflight sync.WaitGroup
}

func NewStrikeTracker(sink Sink, cfg *config.EscalationConfig) *StrikeTracker {
	return &StrikeTracker{
		sink:      sink,
		cfg:       cfg,
		now:       time.Now,
		records:   lru.NewLRU[string, *strikeRecord](cfg.CacheSize, nil, cfg.StrikeWindow),
		escalated: lru.NewLRU[string, struct{}](cfg.CacheSize, nil, cfg.CooldownDuration),
	}
}

func (t *StrikeTracker) Name() string { return "StrikeTracker" }

// HandleViolation implements ViolationHandler.
func (t *StrikeTracker) HandleViolation(ctx context.Context, ev Event, d Decision) {
	if !t.cfg.Enabled || !d.IsViolation() || slices.Contains(t.cfg.ExcludeRules, d.RuleID) {
		return
	}

	rec, escalate := t.addStrike(ev.Identity, d.RuleID)
	if !escalate {
		return
	}

	t.inflight.Add(1)
	go func() {
		defer t.inflight.Done()
		t.escalate(context.WithoutCancel(ctx), ev.Identity, rec)
	}()
}

// addStrike counts one strike for identity. When that reaches the limit the
// record is handed back for escalation and the identity goes on cooldown.
func (t *StrikeTracker) addStrike(identity, rule string) (strikeRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, cooling := t.escalated.Peek(identity); cooling {
		return strikeRecord{}, false
	}

	rec, ok := t.records.Get(identity)
	if !ok {
		rec = &strikeRecord{first: t.now()}
	}
	rec.count++
	rec.rules = append(rec.rules, rule)

	if rec.count < t.cfg.MaxStrikes {
		t.records.Add(identity, rec)
		return strikeRecord{}, false
	}

	t.records.Remove(identity)
	t.escalated.Add(identity, struct{}{})
	return *rec, true
}

func (t *StrikeTracker) escalate(ctx context.Context, identity string, rec strikeRecord) {
	ctx, cancel := context.WithTimeout(ctx, escalationTimeout)
	defer cancel()

	err := t.sink.Timeout(ctx, identity, t.cfg.TimeoutDuration, escalationReason)
	if err != nil {
		slog.Error("Escalated timeout failed", "identity", identity, "strikes", rec.count, "error", err)
		return
	}
	slog.Warn("Identity escalated",
		"identity", identity,
		"strikes", rec.count,
		"rules", rec.rules,
		"since", rec.first,
		"timeout", t.cfg.TimeoutDuration)
}

// Strikes reports the identity's current strike count. An identity on
// cooldown has none.
func (t *StrikeTracker) Strikes(identity string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.records.Peek(identity); ok {
		return rec.count
	}
	return 0
}

// Close waits for escalations already handed to the sink.
func (t *StrikeTracker) Close() error {
	t.inflight.Wait()
	return nil
}
