// Package ratewindow tracks recent event timestamps per identity and reports
// when an identity crosses a message-rate threshold inside a trailing window.
package ratewindow

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// window is the ordered timestamp history of one identity.
type window struct {
	mu sync.Mutex
	ts []time.Time
}

// Counter owns every identity's window. Windows are created on first use and
// live for the lifetime of the Counter; old entries are evicted lazily when
// the identity is next recorded.
//
// A Counter is safe for concurrent use. Distinct identities never contend on
// the same lock.
type Counter struct {
	windows *xsync.MapOf[string, *window]
}

func New() *Counter {
	return &Counter{windows: xsync.NewMapOf[string, *window]()}
}

func (c *Counter) get(identity string) *window {
	w, _ := c.windows.LoadOrCompute(identity, func() *window { return &window{} })
	return w
}

// RecordAndCheck appends ts to the identity's window, evicts entries older
// than the window relative to ts, and returns the resulting count along with
// whether it reached threshold.
//
// Timestamps are expected to be non-decreasing per identity. A timestamp
// earlier than the newest recorded one is treated as equal to it.
func (c *Counter) RecordAndCheck(identity string, ts time.Time, window time.Duration, threshold int) (int, bool) {
	w := c.get(identity)

	w.mu.Lock()
	defer w.mu.Unlock()

	if n := len(w.ts); n > 0 && ts.Before(w.ts[n-1]) {
		ts = w.ts[n-1]
	}
	w.ts = append(w.ts, ts)

	drop := 0
	for drop < len(w.ts) && ts.Sub(w.ts[drop]) > window {
		drop++
	}
	if drop > 0 {
		// Shift down instead of reslicing so the backing array does not
		// creep forward forever for chatty identities.
		w.ts = w.ts[:copy(w.ts, w.ts[drop:])]
	}

	count := len(w.ts)
	if window <= 0 || threshold < 1 {
		return count, false
	}
	return count, count >= threshold
}

// Reset empties the identity's window.
func (c *Counter) Reset(identity string) {
	w, ok := c.windows.Load(identity)
	if !ok {
		return
	}
	w.mu.Lock()
	w.ts = w.ts[:0]
	w.mu.Unlock()
}

// Len reports how many entries the identity's window holds. Entries are only
// added by RecordAndCheck, which evicts against the entry it just added, so
// the count never includes anything older than the last window used relative
// to the newest entry.
func (c *Counter) Len(identity string) int {
	w, ok := c.windows.Load(identity)
	if !ok {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.ts)
}

// Identities reports how many identities have a window.
func (c *Counter) Identities() int {
	return c.windows.Size()
}
