package scene

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchLogger is the minimal logger interface used by Watch.
type watchLogger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type nopWatchLogger struct{}

func (nopWatchLogger) Info(msg string, args ...any) {}
func (nopWatchLogger) Warn(msg string, args ...any) {}

type watchOptions struct {
	debounce time.Duration
	logger   watchLogger
	onReload func(ids []string, err error)
}

// WatchOption configures Watch.
type WatchOption func(*watchOptions)

// WithDebounce sets how long Watch waits for writes to settle before reloading.
func WithDebounce(d time.Duration) WatchOption {
	return func(o *watchOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// WithWatchLogger sets the logger used for reload results.
func WithWatchLogger(l watchLogger) WatchOption {
	return func(o *watchOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithReloadHook is called after every reload attempt.
func WithReloadHook(fn func(ids []string, err error)) WatchOption {
	return func(o *watchOptions) {
		o.onReload = fn
	}
}

// Watch reloads table from path whenever the file changes. Loaded profiles are
// merged over DefaultProfiles. A file that fails to load or validate leaves the
// table unchanged. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, table *Table, opts ...WatchOption) error {
	o := watchOptions{
		debounce: 500 * time.Millisecond,
		logger:   nopWatchLogger{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so editors that replace the file are still seen.
	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch scene file %s: %w", path, err)
	}

	reload := func() {
		profiles, err := LoadFile(target)
		if err == nil {
			err = table.Replace(Merge(DefaultProfiles(), profiles))
		}
		if err != nil {
			o.logger.Warn("scene profile reload failed", "path", target, "error", err)
		} else {
			o.logger.Info("scene profiles reloaded", "path", target, "count", len(profiles))
		}
		if o.onReload != nil {
			var ids []string
			if err == nil {
				ids = table.IDs()
			}
			o.onReload(ids, err)
		}
	}

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(o.debounce, reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			o.logger.Warn("scene watcher error", "error", err)
		}
	}
}
