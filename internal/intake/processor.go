package intake

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"chatguard/internal/config"
	"chatguard/internal/moderation"
)

const (
	maxLineSize = 1 << 20
	shardBuffer = 64

	DropBot       = "bot"
	DropMalformed = "malformed"
	DropTimedOut  = "timed_out"
)

// Gate decides whether an event is evaluated at all.
type Gate interface {
	Allow(ctx context.Context, ev moderation.Event) bool
}

// Reporter receives decision, action and drop counts. The metrics collector
// implements it.
type Reporter interface {
	moderation.MetricsCollector
	ReportDropped(reason string)
}

// Rules is the reloadable part of the processor.
type Rules struct {
	engine          *moderation.Engine
	exempt          map[string]struct{}
	violationLevels map[string]slog.Level
}

// NewRules pairs engine with the exemption list and log levels from cfg.
func NewRules(engine *moderation.Engine, cfg *config.Config) *Rules {
	r := &Rules{
		engine:          engine,
		exempt:          make(map[string]struct{}, len(cfg.Moderation.ExemptIdentities)),
		violationLevels: make(map[string]slog.Level, len(cfg.Log.ViolationLevels)),
	}
	for _, id := range cfg.Moderation.ExemptIdentities {
		r.exempt[id] = struct{}{}
	}
	for rule, lvl := range cfg.Log.ViolationLevels {
		r.violationLevels[rule] = lvl.ToSlogLevel()
	}
	return r
}

func (r *Rules) Engine() *moderation.Engine { return r.engine }

func (r *Rules) levelFor(ruleID string) slog.Level {
	if lvl, ok := r.violationLevels[ruleID]; ok {
		return lvl
	}
	return slog.LevelWarn
}

type Options struct {
	Workers int
	DryRun  bool
	Gate    Gate
	// Reporter may be nil.
	Reporter Reporter
}

// Processor reads messages, evaluates them and dispatches the resulting
// actions. Messages of one identity are always handled by the same worker,
// in arrival order.
type Processor struct {
	rules      atomic.Pointer[Rules]
	dispatcher *moderation.Dispatcher
	gate       Gate
	reporter   Reporter
	workers    int
	dryRun     bool
	now        func() time.Time
}

func NewProcessor(rules *Rules, dispatcher *moderation.Dispatcher, opts Options) *Processor {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	p := &Processor{
		dispatcher: dispatcher,
		gate:       opts.Gate,
		reporter:   opts.Reporter,
		workers:    workers,
		dryRun:     opts.DryRun,
		now:        time.Now,
	}
	p.rules.Store(rules)
	return p
}

// SetRules swaps in new rules. Messages already being handled finish with
// the old ones.
func (p *Processor) SetRules(r *Rules) {
	p.rules.Store(r)
}

func (p *Processor) Rules() *Rules {
	return p.rules.Load()
}

// Run consumes r until EOF or ctx is done. EOF is a clean stop and returns nil.
func (p *Processor) Run(ctx context.Context, r io.Reader) error {
	linesChan := make(chan []byte)
	errChan := make(chan error, 1)

	// The scanner cannot be interrupted, so it lives outside the group.
	go func() {
		defer close(linesChan)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			lineCopy := make([]byte, len(scanner.Bytes()))
			copy(lineCopy, scanner.Bytes())
			select {
			case linesChan <- lineCopy:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errChan <- err
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	shards := make([]chan moderation.Event, p.workers)
	for i := range shards {
		ch := make(chan moderation.Event, shardBuffer)
		shards[i] = ch
		g.Go(func() error {
			for ev := range ch {
				p.handle(gctx, ev)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			for _, ch := range shards {
				close(ch)
			}
		}()

		slog.Info("Ready to process messages", "workers", p.workers, "dry_run", p.dryRun)
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case line, ok := <-linesChan:
				if !ok {
					select {
					case err := <-errChan:
						return fmt.Errorf("failed to read input: %w", err)
					default:
					}
					slog.Info("Input stream closed, shutting down.")
					return nil
				}
				if len(line) == 0 {
					continue
				}

				msg, err := decodeMessage(line, p.now)
				if err != nil {
					slog.Warn("Failed to decode message", "error", err, "raw_line_prefix", prefix(line, 128))
					p.drop(DropMalformed)
					continue
				}
				if msg.Bot {
					p.drop(DropBot)
					continue
				}

				ev := msg.Event()
				select {
				case shards[p.shard(ev.Identity)] <- ev:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		}
	})

	err := g.Wait()
	if err == nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *Processor) shard(identity string) int {
	return int(xxhash.Sum64String(identity) % uint64(p.workers))
}

func (p *Processor) drop(reason string) {
	if p.reporter != nil {
		p.reporter.ReportDropped(reason)
	}
}

// handle runs one event through gate, engine and dispatcher.
func (p *Processor) handle(ctx context.Context, ev moderation.Event) {
	rules := p.rules.Load()
	if _, ok := rules.exempt[ev.Identity]; ok {
		ev.Exempt = true
	}

	if !ev.Exempt && p.gate != nil && !p.gate.Allow(ctx, ev) {
		p.drop(DropTimedOut)
		return
	}

	start := time.Now()
	d := rules.engine.Evaluate(ev)
	if p.reporter != nil {
		p.reporter.ReportDecision(d, time.Since(start))
	}

	if !d.IsViolation() {
		slog.Debug("Message is clean", "event_id", ev.ID, "identity", ev.Identity)
		return
	}

	slog.Log(ctx, rules.levelFor(d.RuleID), "Violation detected",
		"event_id", ev.ID,
		"identity", ev.Identity,
		"channel", ev.Channel,
		"rule", d.RuleID,
		"match", d.Match,
		"actions", d.Kinds(),
		"dry_run", p.dryRun)

	if p.dryRun {
		return
	}

	report := p.dispatcher.Dispatch(ctx, ev, d)
	if n := report.Failed(); n > 0 {
		slog.Warn("Some moderation actions failed", "event_id", ev.ID, "failed", n, "total", len(report.Attempts),
			"error", errors.Join(asErrors(report.Errors())...))
	}
}

func asErrors(errs []*moderation.DispatchError) []error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return out
}

func prefix(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
