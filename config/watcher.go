package config

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

type watchLogger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopWatchLogger struct{}

func (nopWatchLogger) Info(string, ...any)  {}
func (nopWatchLogger) Warn(string, ...any)  {}
func (nopWatchLogger) Error(string, ...any) {}

// Watcher reloads the configuration file when it changes and hands every
// valid result to the registered callbacks. Invalid files are logged and
// skipped; the previous configuration stays in effect.
type Watcher struct {
	mu        sync.RWMutex
	watcher   *fsnotify.Watcher
	path      string
	overrides map[string]interface{}
	callbacks []func(*Config)
	debounce  time.Duration
	logger    watchLogger
	stopOnce  sync.Once
	stopCh    chan struct{}
	running   bool
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long the file must be quiet before reloading.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithOverrides reapplies command line overrides on every reload.
func WithOverrides(overrides map[string]interface{}) WatcherOption {
	return func(w *Watcher) {
		w.overrides = overrides
	}
}

// WithWatcherLogger sets the logger for reload outcomes.
func WithWatcherLogger(l watchLogger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWatcher creates a watcher for configPath.
func NewWatcher(configPath string, opts ...WatcherOption) (*Watcher, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config path is required for watching")
	}

	fswatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		watcher:  fswatcher,
		path:     configPath,
		debounce: 500 * time.Millisecond,
		logger:   nopWatchLogger{},
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Watch blocks until ctx is done or Stop is called. The parent directory is
// watched so editors that replace the file by rename are still seen.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher is already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch config file %s: %w", w.path, err)
	}

	target := filepath.Clean(w.path)
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-w.stopCh:
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := NewLoader().Load(w.path, w.overrides)
	if err != nil {
		w.logger.Error("config reload rejected", "path", w.path, "error", err)
		return
	}
	w.logger.Info("config reloaded", "path", w.path)

	w.mu.RLock()
	callbacks := append([]func(*Config) nil, w.callbacks...)
	w.mu.RUnlock()

	for _, cb := range callbacks {
		w.runCallback(cb, cfg)
	}
}

func (w *Watcher) runCallback(cb func(*Config), cfg *Config) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("config callback panic", "panic", r)
		}
	}()
	cb(cfg)
}

// OnChange registers a callback. Callbacks run in registration order on the
// watch goroutine.
func (w *Watcher) OnChange(callback func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Stop stops the watcher and releases resources. It is safe to call twice.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		err = w.watcher.Close()
	})
	return err
}

// IsRunning reports whether Watch is active.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// ConfigPath returns the watched path.
func (w *Watcher) ConfigPath() string {
	return w.path
}

// HotReloadableConfig holds the settings applied without a restart.
type HotReloadableConfig struct {
	LogLevel string
}

// ExtractHotReloadable extracts hot-reloadable values from cfg.
func ExtractHotReloadable(cfg *Config) HotReloadableConfig {
	return HotReloadableConfig{LogLevel: cfg.Log.Level}
}

// RestartRequired lists the top-level sections that differ between old and
// next but only take effect on restart.
func RestartRequired(old, next *Config) []string {
	var sections []string
	ov, nv := reflect.ValueOf(*old), reflect.ValueOf(*next)
	typ := ov.Type()
	for i := 0; i < typ.NumField(); i++ {
		key := typ.Field(i).Tag.Get("mapstructure")
		a, b := ov.Field(i).Interface(), nv.Field(i).Interface()
		if key == "log" {
			a, b = withoutLevel(a.(LogConfig)), withoutLevel(b.(LogConfig))
		}
		if !reflect.DeepEqual(a, b) {
			sections = append(sections, key)
		}
	}
	return sections
}

func withoutLevel(l LogConfig) LogConfig {
	l.Level = ""
	return l
}
