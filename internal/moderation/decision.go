package moderation

import (
	"time"
)

// RuleRateExceeded is the rule id and reason of a message-rate violation.
const RuleRateExceeded = "rate_exceeded"

// Event is one inbound user message as seen by the engine.
type Event struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	Identity  string    `json:"identity"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	// Exempt marks authors allowed to bypass every check (moderators, owner).
	Exempt bool `json:"exempt"`
}

type Outcome int

const (
	OutcomeClean Outcome = iota
	OutcomeViolation
)

func (o Outcome) String() string {
	switch o {
	case OutcomeClean:
		return "clean"
	case OutcomeViolation:
		return "violation"
	default:
		return "unknown"
	}
}

type ActionKind string

const (
	ActionDelete        ActionKind = "delete"
	ActionWarnEphemeral ActionKind = "warn"
	ActionTimeout       ActionKind = "timeout"
	ActionNotifyOwner   ActionKind = "notify_owner"
)

// Action is an instruction for the sink. Which fields are meaningful depends
// on Kind: Text and TTL for warnings, Duration for timeouts.
type Action struct {
	Kind     ActionKind    `json:"kind"`
	Reason   string        `json:"reason,omitempty"`
	Text     string        `json:"text,omitempty"`
	TTL      time.Duration `json:"ttl,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// Decision is the final outcome of evaluating one event.
// A violation always carries at least one action; a clean decision carries none.
type Decision struct {
	Outcome Outcome  `json:"-"`
	Reason  string   `json:"reason,omitempty"`
	RuleID  string   `json:"rule_id,omitempty"`
	Match   string   `json:"match,omitempty"`
	Actions []Action `json:"actions,omitempty"`
}

func (d Decision) IsViolation() bool { return d.Outcome == OutcomeViolation }

func cleanDecision() Decision {
	return Decision{Outcome: OutcomeClean}
}

// Kinds lists the decision's action kinds in order.
func (d Decision) Kinds() []ActionKind {
	kinds := make([]ActionKind, len(d.Actions))
	for i, a := range d.Actions {
		kinds[i] = a.Kind
	}
	return kinds
}
