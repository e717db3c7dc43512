package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounceDelay = 500 * time.Millisecond

// Watcher reloads the configuration file whenever it changes on disk and
// hands every successfully validated config to OnReload.
type Watcher struct {
	Path     string
	OnReload func(*Config)
	Debounce time.Duration
}

// Run blocks until ctx is cancelled. Invalid configs are logged and skipped,
// so the caller keeps running with the previous one.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer fw.Close()

	path := filepath.Clean(w.Path)
	// Watch the directory: editors often replace the file instead of writing it.
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config directory %s: %w", dir, err)
	}

	delay := w.Debounce
	if delay <= 0 {
		delay = defaultDebounceDelay
	}
	slog.Info("Watching configuration file", "path", path, "debounce", delay)

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Stopping configuration watcher")
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(delay, func() { w.reload(path) })
			mu.Unlock()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Error("Config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload(path string) {
	slog.Info("Config file changed, reloading", "path", path)
	cfg, _, err := Load(path, false)
	if err != nil {
		slog.Error("Failed to reload config, keeping the current one", "path", path, "error", err)
		return
	}
	if w.OnReload != nil {
		w.OnReload(cfg)
	}
}
