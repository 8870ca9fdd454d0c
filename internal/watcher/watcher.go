// Package watcher triggers an index refresh when the processed
// document directory changes on disk. Events are debounced so a batch
// of file writes produces one refresh, not one per file.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// TriggerFunc is invoked after the debounce window closes. It receives
// the number of coalesced file events.
type TriggerFunc func(ctx context.Context, events int)

// Watcher observes a directory and fires a debounced trigger.
type Watcher struct {
	dir      string
	debounce time.Duration
	trigger  TriggerFunc
	logger   *slog.Logger

	fsw    *fsnotify.Watcher
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending int
	timer   *time.Timer
}

// New creates a watcher over dir. The trigger fires debounce after the
// last relevant event.
func New(dir string, debounce time.Duration, trigger TriggerFunc, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	return &Watcher{
		dir:      dir,
		debounce: debounce,
		trigger:  trigger,
		logger:   logger.With(slog.String("component", "watcher")),
		fsw:      fsw,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start launches the event loop.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.logger.Info("watching for document changes",
			slog.String("dir", w.dir),
			slog.Duration("debounce", w.debounce))
		for {
			select {
			case event, ok := <-w.fsw.Events:
				if !ok {
					return
				}
				if w.relevant(event) {
					w.record(ctx)
				}
			case err, ok := <-w.fsw.Errors:
				if !ok {
					return
				}
				w.logger.Warn("watch error", slog.String("error", err.Error()))
			case <-w.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// relevant filters events down to text-file content changes.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	ext := strings.ToLower(filepath.Ext(event.Name))
	return ext == ".txt" || ext == ".md"
}

// record counts an event and (re)arms the debounce timer.
func (w *Watcher) record(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending++
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		count := w.pending
		w.pending = 0
		w.mu.Unlock()

		if count == 0 {
			return
		}
		// The timer can outlive the watcher; never fire the trigger
		// after Stop or with a cancelled context.
		select {
		case <-w.stopCh:
			return
		default:
		}
		if ctx.Err() != nil {
			return
		}
		w.logger.Info("document changes detected, triggering refresh",
			slog.Int("events", count))
		w.trigger(ctx, count)
	})
}

// Stop halts the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	close(w.stopCh)
	_ = w.fsw.Close()
	w.wg.Wait()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
}
