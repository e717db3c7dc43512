package moderation

import (
	"context"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

const (
	defaultGateCacheSize = 8192
	defaultGateCacheTTL  = 5 * time.Second
)

// TimeoutLookup reports whether an identity is currently timed out.
type TimeoutLookup interface {
	IsTimedOut(ctx context.Context, identity string) (bool, error)
}

// TimeoutGate answers "may this identity post right now?" from the timeout
// ledger, caching answers briefly and collapsing concurrent lookups.
type TimeoutGate struct {
	lookup TimeoutLookup
	cache  *lru.LRU[string, bool]
	sf     singleflight.Group
}

// NewTimeoutGate returns a gate over lookup. A non-positive ttl uses the default.
func NewTimeoutGate(lookup TimeoutLookup, ttl time.Duration) *TimeoutGate {
	if ttl <= 0 {
		ttl = defaultGateCacheTTL
	}
	return &TimeoutGate{
		lookup: lookup,
		cache:  lru.NewLRU[string, bool](defaultGateCacheSize, nil, ttl),
	}
}

func (g *TimeoutGate) isTimedOut(ctx context.Context, identity string) (bool, error) {
	if timedOut, ok := g.cache.Get(identity); ok {
		return timedOut, nil
	}

	v, err, _ := g.sf.Do(identity, func() (any, error) {
		if timedOut, ok := g.cache.Get(identity); ok {
			return timedOut, nil
		}
		timedOut, err := g.lookup.IsTimedOut(ctx, identity)
		if err != nil {
			return false, err
		}
		g.cache.Add(identity, timedOut)
		return timedOut, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Allow reports whether ev should be evaluated. Lookup failures fail open:
// a broken ledger must not silence the whole chat.
func (g *TimeoutGate) Allow(ctx context.Context, ev Event) bool {
	timedOut, err := g.isTimedOut(ctx, ev.Identity)
	if err != nil {
		slog.Error("Failed to check timeout status, evaluating anyway", "identity", ev.Identity, "error", err)
		return true
	}
	if timedOut {
		slog.Debug("Dropping message from timed-out identity", "identity", ev.Identity, "event_id", ev.ID)
	}
	return !timedOut
}

// Forget drops the cached answer for identity, e.g. right after a timeout was issued.
func (g *TimeoutGate) Forget(identity string) {
	g.cache.Remove(identity)
}

// HandleViolation implements ViolationHandler. Every violation times the
// author out, so the cached "may post" answer is stale.
func (g *TimeoutGate) HandleViolation(_ context.Context, ev Event, _ Decision) {
	g.Forget(ev.Identity)
}
