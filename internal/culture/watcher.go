package culture

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultWatchDebounce = 500 * time.Millisecond

// Watcher reports template file changes in a directory.
type Watcher struct {
	dir      string
	debounce time.Duration
	logger   *zap.Logger
	onChange func(context.Context) error
}

// WatcherOption customises a Watcher.
type WatcherOption func(*Watcher)

// WithWatchDebounce coalesces bursts of file events into one callback.
func WithWatchDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatchLogger sets the watcher logger.
func WithWatchLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher builds a watcher that calls onChange after template files in dir change.
func NewWatcher(dir string, onChange func(context.Context) error, opts ...WatcherOption) (*Watcher, error) {
	if dir == "" {
		return nil, errors.New("culture: watch directory is required")
	}
	if onChange == nil {
		return nil, errors.New("culture: watch callback is required")
	}
	w := &Watcher{
		dir:      dir,
		debounce: defaultWatchDebounce,
		logger:   zap.NewNop(),
		onChange: onChange,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Run blocks until ctx is cancelled, invoking the callback for each settled burst of changes.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("culture: create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("culture: watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching culture templates", zap.String("dir", w.dir))

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !IsTemplateFile(filepath.Base(event.Name)) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug("culture template changed", zap.String("file", event.Name), zap.String("op", event.Op.String()))
			if pending && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
			pending = true
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("culture watcher error", zap.Error(err))
		case <-timer.C:
			pending = false
			if err := w.onChange(ctx); err != nil {
				w.logger.Error("culture reload failed", zap.Error(err))
			}
		}
	}
}
