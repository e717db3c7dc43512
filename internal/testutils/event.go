package testutils

import (
	"fmt"
	"sync/atomic"
	"time"

	"chatguard/internal/moderation"
)

const TestChannel = "general"

var eventSeq atomic.Uint64

// Epoch is a fixed reference time so tests do not depend on the wall clock.
var Epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// MakeEvent builds a message event with a unique id.
func MakeEvent(identity, text string, ts time.Time) moderation.Event {
	return moderation.Event{
		ID:        fmt.Sprintf("msg-%d", eventSeq.Add(1)),
		Channel:   TestChannel,
		Identity:  identity,
		Text:      text,
		Timestamp: ts,
	}
}

// At returns Epoch plus sec seconds.
func At(sec int) time.Time {
	return Epoch.Add(time.Duration(sec) * time.Second)
}
