package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events a single rewrite produces.
const DefaultDebounce = 250 * time.Millisecond

// Watch calls onChange once per burst of writes to any of paths. It watches the
// parent directories so files replaced by rename are still noticed. It runs
// until ctx is cancelled.
func Watch(ctx context.Context, paths []string, debounce time.Duration, onChange func()) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ingest: watch: %w", err)
	}
	defer watcher.Close()

	targets := make(map[string]struct{}, len(paths))
	dirs := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("ingest: watch %q: %w", p, err)
		}
		targets[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for d := range dirs {
		if err := watcher.Add(d); err != nil {
			return fmt.Errorf("ingest: watch %q: %w", d, err)
		}
	}

	slog.Info("ingest: watching inputs", "paths", paths)

	timer := time.NewTimer(debounce)
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
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			if _, ok := targets[name]; !ok {
				continue
			}
			timer.Reset(debounce)

		case <-timer.C:
			slog.Info("ingest: inputs changed")
			onChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("ingest: watcher error", "err", err)
		}
	}
}
