package config

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/affect-triage/internal/graph"
)

// GraphReloadFunc receives each successfully rebuilt graph.
type GraphReloadFunc func(g *graph.StateGraph)

// GraphReloadErrorFunc is told about reloads that failed validation. The
// previous graph stays in service.
type GraphReloadErrorFunc func(err error)

// GraphWatcher watches the graph file and reloads it after a debounce period,
// so editor save sequences trigger one rebuild.
type GraphWatcher struct {
	path     string
	debounce time.Duration
	onReload GraphReloadFunc
	onError  GraphReloadErrorFunc
	logger   *zap.Logger

	cancel  context.CancelFunc
	stopped chan struct{}
	ready   chan struct{}

	mu    sync.Mutex
	timer *time.Timer
}

// NewGraphWatcher creates a watcher for path. onError may be nil.
func NewGraphWatcher(path string, debounce time.Duration, onReload GraphReloadFunc, onError GraphReloadErrorFunc, logger *zap.Logger) (*GraphWatcher, error) {
	if path == "" {
		return nil, errors.New("graph watcher: path cannot be empty")
	}
	if onReload == nil {
		return nil, errors.New("graph watcher: reload callback cannot be nil")
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if onError == nil {
		onError = func(error) {}
	}
	return &GraphWatcher{
		path:     path,
		debounce: debounce,
		onReload: onReload,
		onError:  onError,
		logger:   logger.Named("config"),
		stopped:  make(chan struct{}),
		ready:    make(chan struct{}),
	}, nil
}

// Start begins watching and returns once the watch is in place.
func (w *GraphWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(w.path); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", w.path, err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go w.loop(watchCtx, watcher)

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *GraphWatcher) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer close(w.stopped)
	defer watcher.Close()
	defer w.stopTimer()

	w.logger.Info("watching graph file", zap.String("path", w.path), zap.Duration("debounce", w.debounce))
	close(w.ready)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			// Atomic saves replace the inode; the watch must be re-added.
			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				time.Sleep(50 * time.Millisecond)
				if err := watcher.Add(w.path); err != nil {
					w.logger.Warn("re-add watch failed", zap.String("op", event.Op.String()), zap.Error(err))
				}
			}
			w.schedule()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *GraphWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *GraphWatcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *GraphWatcher) reload() {
	g, err := LoadGraph(w.path)
	if err != nil {
		w.logger.Error("graph reload rejected, keeping previous graph", zap.Error(err))
		w.onError(err)
		return
	}
	w.logger.Info("graph reloaded", zap.String("version", g.Version()))
	w.onReload(g)
}

// Stop ends the watch loop and waits for it to exit.
func (w *GraphWatcher) Stop() error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	select {
	case <-w.stopped:
		return nil
	case <-time.After(5 * time.Second):
		return errors.New("graph watcher: timeout waiting for stop")
	}
}
