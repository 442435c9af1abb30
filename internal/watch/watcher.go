// Package watch re-runs a callback when a file changes on disk.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"safetycopilot/internal/logging"
)

// DefaultDebounce batches the bursts of events editors produce on save.
const DefaultDebounce = 300 * time.Millisecond

// Stats counts watcher activity.
type Stats struct {
	Events    int
	Triggers  int
	Errors    int
	LastEvent time.Time
}

// Watcher watches a single file. The parent directory is watched so that
// editors which save by rename keep being observed.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	pending  time.Time
	stats    Stats
}

// New creates a watcher for path. debounce <= 0 uses DefaultDebounce.
func New(path string, debounce time.Duration) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{watcher: w, path: abs, debounce: debounce}, nil
}

// Stats returns a snapshot of the counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Run calls fn once per debounced burst of writes to the file until ctx is
// done. The watcher is closed when Run returns. Errors from fn are logged
// and do not stop the loop.
func (w *Watcher) Run(ctx context.Context, fn func(context.Context) error) error {
	defer w.watcher.Close()
	logging.Watch("Watching %s (debounce %v)", w.path, w.debounce)

	ticker := time.NewTicker(tickInterval(w.debounce))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Watch("Stopped watching %s", w.path)
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logging.WatchWarn("Watcher error on %s: %v", w.path, err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			if w.due() {
				w.trigger(ctx, fn)
			}
		}
	}
}

// tickInterval polls three times per debounce window, never faster than
// once a millisecond.
func tickInterval(debounce time.Duration) time.Duration {
	return max(debounce/3, time.Millisecond)
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.Events++
	w.stats.LastEvent = time.Now()
	w.pending = w.stats.LastEvent
}

func (w *Watcher) due() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending.IsZero() || time.Since(w.pending) < w.debounce {
		return false
	}
	w.pending = time.Time{}
	w.stats.Triggers++
	return true
}

func (w *Watcher) trigger(ctx context.Context, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		logging.WatchWarn("Re-run after change to %s failed: %v", w.path, err)
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
	}
}

// File watches path and blocks until ctx is done, calling fn after each
// debounced change.
func File(ctx context.Context, path string, debounce time.Duration, fn func(context.Context) error) error {
	w, err := New(path, debounce)
	if err != nil {
		return err
	}
	return w.Run(ctx, fn)
}
