// Package moderation turns inbound chat messages into moderation decisions
// and carries those decisions out against a transport-specific Sink.
package moderation

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"chatguard/internal/classify"
	"chatguard/internal/config"
	"chatguard/internal/ratewindow"
)

// ErrInvalidConfig is wrapped by every engine construction error.
var ErrInvalidConfig = errors.New("invalid moderation config")

const (
	DefaultSpamWindow      = 10 * time.Second
	DefaultSpamThreshold   = 5
	DefaultTimeoutDuration = 60 * time.Second
	DefaultWarnTTL         = 5 * time.Second
)

var defaultWarnings = map[string]string{
	classify.RuleBannedTerm: "{user}, bad words are not allowed! (Timed out for {duration})",
	classify.RuleLink:       "{user}, links are not allowed! (Timed out for {duration})",
	RuleRateExceeded:        "{user} has been timed out for {duration} for spamming.",
}

// Spam warnings stay up a little longer than content ones.
var defaultWarnTTLs = map[string]time.Duration{
	classify.RuleBannedTerm: 6 * time.Second,
	classify.RuleLink:       6 * time.Second,
	RuleRateExceeded:        8 * time.Second,
}

var durationWords = []humanize.RelTimeMagnitude{
	{D: 2 * time.Second, Format: "1 second", DivBy: 1},
	{D: time.Minute, Format: "%d seconds", DivBy: time.Second},
	{D: 2 * time.Minute, Format: "1 minute", DivBy: 1},
	{D: time.Hour, Format: "%d minutes", DivBy: time.Minute},
	{D: 2 * time.Hour, Format: "1 hour", DivBy: 1},
	{D: humanize.Day, Format: "%d hours", DivBy: time.Hour},
	{D: 2 * humanize.Day, Format: "1 day", DivBy: 1},
	{D: math.MaxInt64, Format: "%d days", DivBy: humanize.Day},
}

// spellDuration renders d the way it reads in a warning, e.g. "1 minute".
func spellDuration(d time.Duration) string {
	var base time.Time
	return humanize.CustomRelTime(base, base.Add(d), "", "", durationWords)
}

// EngineConfig holds the engine's tunables. Zero values fall back to the
// defaults above, except that negative values are rejected.
type EngineConfig struct {
	SpamWindow      time.Duration
	SpamThreshold   int
	TimeoutDuration time.Duration
	// WarnTTL overrides the built-in lifetime of every warning; WarnTTLs
	// overrides it per rule id and wins over WarnTTL.
	WarnTTL  time.Duration
	WarnTTLs map[string]time.Duration
	// Warnings maps a rule id to its warning template. "{user}" is replaced
	// with the offending identity, "{reason}" with the rule id and
	// "{duration}" with the spelled-out timeout length.
	Warnings map[string]string
}

// EngineConfigFrom translates the [moderation] section.
func EngineConfigFrom(cfg *config.ModerationConfig) EngineConfig {
	return EngineConfig{
		SpamWindow:      cfg.SpamWindow(),
		SpamThreshold:   cfg.SpamThreshold,
		TimeoutDuration: cfg.TimeoutDuration(),
		WarnTTL:         cfg.WarnTTL,
		WarnTTLs:        cfg.WarnTTLs,
		Warnings:        cfg.Warnings,
	}
}

// Engine evaluates events. Evaluation never fails; the only state it touches
// is the shared rate counter, which is safe across identities.
type Engine struct {
	classifier classify.Classifier
	counter    *ratewindow.Counter

	window    time.Duration
	threshold int
	timeout   time.Duration
	warnTTLs  map[string]time.Duration
	// fallbackTTL covers rule ids with no entry in warnTTLs.
	fallbackTTL time.Duration
	warnings    map[string]string
}

// NewEngine validates cfg and wires the classifier and counter together. The
// counter is owned by the caller so it can outlive a configuration reload.
func NewEngine(cfg EngineConfig, classifier classify.Classifier, counter *ratewindow.Counter) (*Engine, error) {
	if classifier == nil {
		return nil, fmt.Errorf("%w: classifier is required", ErrInvalidConfig)
	}
	if counter == nil {
		return nil, fmt.Errorf("%w: rate counter is required", ErrInvalidConfig)
	}

	e := &Engine{
		classifier: classifier,
		counter:    counter,
		window:     cfg.SpamWindow,
		threshold:  cfg.SpamThreshold,
		timeout:    cfg.TimeoutDuration,
		warnTTLs:   make(map[string]time.Duration, len(defaultWarnTTLs)+len(cfg.WarnTTLs)),
		warnings:   make(map[string]string, len(defaultWarnings)+len(cfg.Warnings)),
	}

	if e.window == 0 {
		e.window = DefaultSpamWindow
	}
	if e.threshold == 0 {
		e.threshold = DefaultSpamThreshold
	}
	if e.timeout == 0 {
		e.timeout = DefaultTimeoutDuration
	}

	switch {
	case e.window < 0:
		return nil, fmt.Errorf("%w: spam window must be positive, got %s", ErrInvalidConfig, e.window)
	case e.threshold < 1:
		return nil, fmt.Errorf("%w: spam threshold must be >= 1, got %d", ErrInvalidConfig, e.threshold)
	case e.timeout < 0:
		return nil, fmt.Errorf("%w: timeout duration must be positive, got %s", ErrInvalidConfig, e.timeout)
	case cfg.WarnTTL < 0:
		return nil, fmt.Errorf("%w: warning ttl must not be negative, got %s", ErrInvalidConfig, cfg.WarnTTL)
	}

	e.fallbackTTL = DefaultWarnTTL
	if cfg.WarnTTL > 0 {
		e.fallbackTTL = cfg.WarnTTL
	}
	for rule, ttl := range defaultWarnTTLs {
		if cfg.WarnTTL > 0 {
			ttl = cfg.WarnTTL
		}
		e.warnTTLs[rule] = ttl
	}
	for rule, ttl := range cfg.WarnTTLs {
		switch {
		case ttl < 0:
			return nil, fmt.Errorf("%w: warning ttl for %s must not be negative, got %s", ErrInvalidConfig, rule, ttl)
		case ttl > 0:
			e.warnTTLs[rule] = ttl
		}
	}

	for rule, tmpl := range defaultWarnings {
		e.warnings[rule] = tmpl
	}
	for rule, tmpl := range cfg.Warnings {
		e.warnings[rule] = tmpl
	}
	return e, nil
}

// Evaluate decides what to do about ev. Content rules run first; a content
// violation returns before the rate counter sees the event. Exempt events
// are clean and leave no trace.
func (e *Engine) Evaluate(ev Event) Decision {
	if ev.Exempt {
		return cleanDecision()
	}

	if v := e.classifier.Classify(ev.Text); v.Flagged {
		return Decision{
			Outcome: OutcomeViolation,
			Reason:  v.Reason,
			RuleID:  v.RuleID,
			Match:   v.Match,
			Actions: []Action{
				{Kind: ActionDelete, Reason: v.Reason},
				e.warn(ev, v.RuleID, v.Reason),
				{Kind: ActionTimeout, Reason: v.Reason, Duration: e.timeout},
				{Kind: ActionNotifyOwner, Reason: v.Reason},
			},
		}
	}

	if _, exceeded := e.counter.RecordAndCheck(ev.Identity, ev.Timestamp, e.window, e.threshold); exceeded {
		e.counter.Reset(ev.Identity)
		return Decision{
			Outcome: OutcomeViolation,
			Reason:  RuleRateExceeded,
			RuleID:  RuleRateExceeded,
			Actions: []Action{
				{Kind: ActionTimeout, Reason: RuleRateExceeded, Duration: e.timeout},
				e.warn(ev, RuleRateExceeded, RuleRateExceeded),
				{Kind: ActionNotifyOwner, Reason: RuleRateExceeded},
			},
		}
	}

	return cleanDecision()
}

// Counter exposes the engine's rate counter.
func (e *Engine) Counter() *ratewindow.Counter { return e.counter }

func (e *Engine) warn(ev Event, ruleID, reason string) Action {
	tmpl, ok := e.warnings[ruleID]
	if !ok {
		tmpl = "{user}, your message broke a rule ({reason})."
	}
	text := strings.NewReplacer(
		"{user}", ev.Identity,
		"{reason}", reason,
		"{duration}", spellDuration(e.timeout),
	).Replace(tmpl)
	return Action{Kind: ActionWarnEphemeral, Reason: reason, Text: text, TTL: e.warnTTL(ruleID)}
}

// warnTTL is how long the warning for ruleID stays up.
func (e *Engine) warnTTL(ruleID string) time.Duration {
	if ttl, ok := e.warnTTLs[ruleID]; ok {
		return ttl
	}
	return e.fallbackTTL
}
