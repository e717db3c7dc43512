package ratewindow

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(sec float64) time.Time {
	return epoch.Add(time.Duration(sec * float64(time.Second)))
}

func TestCounter_RecordAndCheck(t *testing.T) {
	testCases := []struct {
		name      string
		window    time.Duration
		threshold int
		times     []float64
		counts    []int
		exceeded  []bool
	}{
		{
			name:      "five messages in ten seconds trip the threshold",
			window:    10 * time.Second,
			threshold: 5,
			times:     []float64{0, 2, 4, 6, 8},
			counts:    []int{1, 2, 3, 4, 5},
			exceeded:  []bool{false, false, false, false, true},
		},
		{
			name:      "old entries age out",
			window:    10 * time.Second,
			threshold: 5,
			times:     []float64{0, 2, 4, 6, 11, 13},
			counts:    []int{1, 2, 3, 4, 4, 4},
			exceeded:  []bool{false, false, false, false, false, false},
		},
		{
			name:      "entry exactly at the window edge is kept",
			window:    10 * time.Second,
			threshold: 3,
			times:     []float64{0, 5, 10},
			counts:    []int{1, 2, 3},
			exceeded:  []bool{false, false, true},
		},
		{
			name:      "threshold of one trips on the first event",
			window:    time.Second,
			threshold: 1,
			times:     []float64{0},
			counts:    []int{1},
			exceeded:  []bool{true},
		},
		{
			name:      "long gap empties the window",
			window:    10 * time.Second,
			threshold: 5,
			times:     []float64{0, 1, 2, 100},
			counts:    []int{1, 2, 3, 1},
			exceeded:  []bool{false, false, false, false},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := New()
			for i, sec := range tc.times {
				count, exceeded := c.RecordAndCheck("u1", at(sec), tc.window, tc.threshold)
				require.Equal(t, tc.counts[i], count, "count mismatch at event %d", i)
				require.Equal(t, tc.exceeded[i], exceeded, "exceeded mismatch at event %d", i)
			}
		})
	}
}

func TestCounter_CountsEveryEventInsideWindow(t *testing.T) {
	c := New()
	const n = 50
	for i := 0; i < n; i++ {
		count, _ := c.RecordAndCheck("u1", at(float64(i)*0.1), 10*time.Second, 1000)
		require.Equal(t, i+1, count)
	}
}

func TestCounter_Reset(t *testing.T) {
	c := New()
	for _, sec := range []float64{0, 1, 2} {
		c.RecordAndCheck("u1", at(sec), 10*time.Second, 5)
	}
	c.RecordAndCheck("u2", at(0), 10*time.Second, 5)
	require.Equal(t, 3, c.Len("u1"))

	c.Reset("u1")
	require.Equal(t, 0, c.Len("u1"))
	require.Equal(t, 1, c.Len("u2"), "other identities must be untouched")

	count, _ := c.RecordAndCheck("u1", at(3), 10*time.Second, 5)
	require.Equal(t, 1, count)

	// Resetting an unknown identity is a no-op.
	c.Reset("nobody")
	require.Equal(t, 2, c.Identities())
}

func TestCounter_LenMatchesLastWindow(t *testing.T) {
	c := New()
	for _, sec := range []float64{0, 1, 2, 3, 4, 5} {
		c.RecordAndCheck("u1", at(sec), 10*time.Second, 100)
	}
	require.Equal(t, 6, c.Len("u1"))

	// A shorter window, e.g. after a reload, applies from the next record on.
	count, _ := c.RecordAndCheck("u1", at(6), 3*time.Second, 100)
	require.Equal(t, 4, count)
	require.Equal(t, count, c.Len("u1"))

	count, _ = c.RecordAndCheck("u1", at(60), 3*time.Second, 100)
	require.Equal(t, 1, count)
	require.Equal(t, 1, c.Len("u1"))
	require.Equal(t, 1, c.Len("u1"), "reading must not change the window")
	require.Zero(t, c.Len("nobody"))
}

func TestCounter_OutOfOrderTimestampIsClamped(t *testing.T) {
	c := New()
	c.RecordAndCheck("u1", at(20), 10*time.Second, 5)
	count, _ := c.RecordAndCheck("u1", at(0), 10*time.Second, 5)
	require.Equal(t, 2, count, "an earlier timestamp must not evict the newer entry")

	count, _ = c.RecordAndCheck("u1", at(31), 10*time.Second, 5)
	require.Equal(t, 1, count)
}

func TestCounter_InvalidArgumentsNeverExceed(t *testing.T) {
	c := New()
	_, exceeded := c.RecordAndCheck("u1", at(0), 10*time.Second, 0)
	require.False(t, exceeded)
	_, exceeded = c.RecordAndCheck("u2", at(0), 0, 1)
	require.False(t, exceeded)
}

func TestCounter_ConcurrentIdentities(t *testing.T) {
	c := New()
	const (
		identities = 32
		perID      = 200
	)

	var wg sync.WaitGroup
	for i := 0; i < identities; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for j := 0; j < perID; j++ {
				c.RecordAndCheck(id, at(0), time.Minute, perID+1)
			}
		}(fmt.Sprintf("user-%d", i))
	}
	wg.Wait()

	require.Equal(t, identities, c.Identities())
	for i := 0; i < identities; i++ {
		require.Equal(t, perID, c.Len(fmt.Sprintf("user-%d", i)))
	}
}
