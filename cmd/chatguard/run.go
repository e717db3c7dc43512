package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"chatguard/internal/classify"
	"chatguard/internal/config"
	"chatguard/internal/intake"
	"chatguard/internal/metrics"
	"chatguard/internal/moderation"
	"chatguard/internal/ratewindow"
	"chatguard/internal/sink"
	"chatguard/internal/store"
)

// newLogger builds the process logger. level stays adjustable on reload.
func newLogger(cfg *config.LogConfig, w io.Writer, level *slog.LevelVar) *slog.Logger {
	level.Set(cfg.Level.ToSlogLevel())
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// buildRules compiles the classifiers and engine for cfg around counter.
func buildRules(cfg *config.Config, counter *ratewindow.Counter) (*intake.Rules, error) {
	pipeline, err := classify.FromConfig(&cfg.Moderation)
	if err != nil {
		return nil, err
	}
	engine, err := moderation.NewEngine(moderation.EngineConfigFrom(&cfg.Moderation), pipeline, counter)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return intake.NewRules(engine, cfg), nil
}

func cliRun(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	dryRun := cmd.Bool("dry-run")

	cfg, defaultsUsed, err := config.Load(configPath, cmd.Bool("use-defaults"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	var level slog.LevelVar
	slog.SetDefault(newLogger(&cfg.Log, os.Stderr, &level))
	if dryRun {
		slog.Warn("Running in DRY-RUN mode, no action will be carried out.")
	}
	slog.Info("chatguard starting up", "version", version, "config_path", configPath, "using_defaults", defaultsUsed)

	db, err := store.NewBadgerStore(&cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	counter := ratewindow.New()
	rules, err := buildRules(cfg, counter)
	if err != nil {
		return err
	}

	base, err := sink.FromConfig(&cfg.Sink, os.Stdout)
	if err != nil {
		return err
	}
	actions := sink.NewLedgerSink(base, db)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.New(reg)

	gate := moderation.NewTimeoutGate(db, 0)
	tracker := moderation.NewStrikeTracker(actions, &cfg.Escalation)
	defer tracker.Close()

	dispatcher := moderation.NewDispatcher(actions, cfg.Moderation.ActionTimeout, collector, tracker, gate)
	proc := intake.NewProcessor(rules, dispatcher, intake.Options{
		Workers:  cfg.Intake.Workers,
		DryRun:   dryRun,
		Gate:     gate,
		Reporter: collector,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// Input EOF stops the sidecar services too.
		defer cancel()
		return proc.Run(gctx, os.Stdin)
	})

	if cfg.Metrics.Listen != "" {
		g.Go(func() error { return metrics.Serve(gctx, cfg.Metrics.Listen, reg) })
	}

	if !defaultsUsed {
		w := &config.Watcher{
			Path: configPath,
			OnReload: func(newCfg *config.Config) {
				newRules, err := buildRules(newCfg, counter)
				if err != nil {
					slog.Error("Failed to build rules on config reload, keeping old ones", "error", err)
					return
				}
				proc.SetRules(newRules)
				level.Set(newCfg.Log.Level.ToSlogLevel())
				slog.Info("Moderation rules reloaded.")
			},
		}
		g.Go(func() error { return w.Run(gctx) })
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		slog.Info("Shut down gracefully.")
		return nil
	}
	return err
}

func cliValidate(ctx context.Context, cmd *cli.Command) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	configPath := cmd.String("config")
	fmt.Printf("Validating configuration file: %s\n", configPath)

	cfg, _, err := config.Load(configPath, false)
	if err == nil {
		_, err = buildRules(cfg, ratewindow.New())
	}
	if err == nil {
		_, err = sink.FromConfig(&cfg.Sink, io.Discard)
	}
	if err != nil {
		return fmt.Errorf("configuration is INVALID: %w", err)
	}
	fmt.Println("Configuration is VALID.")
	return nil
}

func openLedger(cmd *cli.Command) (*store.BadgerStore, error) {
	cfg, _, err := config.Load(cmd.String("config"), cmd.Bool("use-defaults"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return openLedgerFromConfig(cfg)
}

func openLedgerFromConfig(cfg *config.Config) (*store.BadgerStore, error) {
	if cfg.DB.Path == "" {
		return nil, errors.New("database.path is empty, the ledger only lives in the running process")
	}
	return store.NewBadgerStore(&cfg.DB)
}

func cliTimeoutsList(ctx context.Context, cmd *cli.Command) error {
	db, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	list, err := db.List(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "IDENTITY\tEXPIRES\tREMAINING")
	for _, t := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Identity, t.ExpiresAt.Format(time.RFC3339), time.Until(t.ExpiresAt).Round(time.Second))
	}
	return tw.Flush()
}

func cliTimeoutsClear(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() == 0 {
		return errors.New("at least one identity is required")
	}
	db, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, id := range cmd.Args().Slice() {
		if err := db.ClearTimeout(ctx, id); err != nil {
			return fmt.Errorf("failed to clear timeout for %s: %w", id, err)
		}
		fmt.Printf("Cleared timeout for %s\n", id)
	}
	return nil
}
