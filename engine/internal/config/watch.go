package config

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the events of one save into a single reload.
const reloadDelay = 100 * time.Millisecond

// Watch reloads the config file at path whenever it changes on disk and calls
// onChange with the result. It watches the parent directory, so saves that
// replace the file by rename are seen. Rewrites with identical content and
// invalid files are skipped; the engine keeps running on the previous config.
// Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: watch %q: %w", path, err)
	}
	last, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("config: watch %q: %w", filepath.Dir(abs), err)
	}
	slog.Info("config: watching", "path", abs)

	timer := time.NewTimer(reloadDelay)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(reloadDelay)
			}

		case <-timer.C:
			data, err := os.ReadFile(abs)
			if err != nil {
				// Mid-rename; the Create that follows re-arms the timer.
				slog.Debug("config: read during reload failed", "path", abs, "err", err)
				continue
			}
			if bytes.Equal(data, last) {
				continue
			}
			cfg, err := parse(data)
			if err != nil {
				slog.Error("config: reload rejected, engine keeps previous settings", "path", abs, "err", err)
				continue
			}
			last = data
			slog.Info("config: reloaded",
				"path", abs,
				"min_samples", cfg.Engine.MinSamples,
				"inclusion_threshold", cfg.Engine.InclusionThreshold,
				"min_network_samples", cfg.Engine.MinNetworkSamples,
				"role_analysis", cfg.Engine.RoleAnalysis,
				"log_level", cfg.Log.Level,
			)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
