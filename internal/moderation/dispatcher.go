package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

// Sink performs moderation actions on the chat platform. Each call may fail
// on its own; the dispatcher never retries.
type Sink interface {
	Delete(ctx context.Context, ev Event) error
	SendEphemeral(ctx context.Context, channel, text string, ttl time.Duration) error
	Timeout(ctx context.Context, identity string, d time.Duration, reason string) error
	NotifyOwner(ctx context.Context, identity, reason string) error
}

// ViolationHandler is told about every violation after its actions ran.
type ViolationHandler interface {
	HandleViolation(ctx context.Context, ev Event, d Decision)
}

type MetricsCollector interface {
	ReportDecision(d Decision, elapsed time.Duration)
	ReportAttempt(a Attempt)
}

// DispatchError records a sink call that failed.
type DispatchError struct {
	Action Action
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s: %v", e.Action.Kind, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Attempt is the result of carrying out one action.
type Attempt struct {
	Action  Action
	Err     *DispatchError
	Elapsed time.Duration
}

func (a Attempt) OK() bool { return a.Err == nil }

// Report lists every attempt of one dispatch, in order.
type Report struct {
	EventID  string
	Attempts []Attempt
}

// Failed counts the attempts that returned an error.
func (r Report) Failed() int {
	n := 0
	for _, a := range r.Attempts {
		if !a.OK() {
			n++
		}
	}
	return n
}

// Errors returns the failures in order.
func (r Report) Errors() []*DispatchError {
	var errs []*DispatchError
	for _, a := range r.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

const defaultActionTimeout = 10 * time.Second

// Dispatcher carries out decisions against a Sink, one action at a time.
type Dispatcher struct {
	sink          Sink
	handlers      []ViolationHandler
	collector     MetricsCollector
	actionTimeout time.Duration
}

// NewDispatcher returns a dispatcher for sink. A non-positive actionTimeout
// uses the default; collector may be nil.
func NewDispatcher(sink Sink, actionTimeout time.Duration, collector MetricsCollector, handlers ...ViolationHandler) *Dispatcher {
	if actionTimeout <= 0 {
		actionTimeout = defaultActionTimeout
	}
	return &Dispatcher{
		sink:          sink,
		handlers:      handlers,
		collector:     collector,
		actionTimeout: actionTimeout,
	}
}

// Dispatch attempts every action of d in order. A failed action is logged and
// recorded in the report; the next action is still attempted.
func (p *Dispatcher) Dispatch(ctx context.Context, ev Event, d Decision) Report {
	report := Report{EventID: ev.ID, Attempts: make([]Attempt, 0, len(d.Actions))}

	for _, action := range d.Actions {
		start := time.Now()
		err := p.perform(ctx, ev, action)
		attempt := Attempt{Action: action, Elapsed: time.Since(start)}
		if err != nil {
			attempt.Err = &DispatchError{Action: action, Err: err}
			slog.Error("Moderation action failed",
				"action", action.Kind, "identity", ev.Identity, "event_id", ev.ID,
				"reason", action.Reason, "error", err)
		} else {
			slog.Debug("Moderation action done", "action", action.Kind, "identity", ev.Identity, "event_id", ev.ID)
		}
		if p.collector != nil {
			p.collector.ReportAttempt(attempt)
		}
		report.Attempts = append(report.Attempts, attempt)
	}

	if d.IsViolation() {
		for _, h := range p.handlers {
			h.HandleViolation(ctx, ev, d)
		}
	}
	return report
}

// perform runs one sink call under its own deadline. A panicking sink counts
// as a failed action.
func (p *Dispatcher) perform(ctx context.Context, ev Event, action Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic recovered in moderation sink",
				"panic", r, "action", action.Kind, "event_id", ev.ID, "stack", string(debug.Stack()))
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()

	actx, cancel := context.WithTimeout(ctx, p.actionTimeout)
	defer cancel()

	switch action.Kind {
	case ActionDelete:
		return p.sink.Delete(actx, ev)
	case ActionWarnEphemeral:
		return p.sink.SendEphemeral(actx, ev.Channel, action.Text, action.TTL)
	case ActionTimeout:
		return p.sink.Timeout(actx, ev.Identity, action.Duration, action.Reason)
	case ActionNotifyOwner:
		return p.sink.NotifyOwner(actx, ev.Identity, action.Reason)
	default:
		return fmt.Errorf("unknown action kind %q", action.Kind)
	}
}
