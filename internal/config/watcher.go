package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watcher watches the configuration file and triggers callbacks with the
// reloaded configuration.
type Watcher struct {
	v         *viper.Viper
	mu        sync.RWMutex
	callbacks []func(*Config)
	onError   func(error)
	last      *Config
	stopped   bool
}

// NewWatcher creates a watcher for cfgFile, or for the file found on the
// search paths when cfgFile is empty.
func NewWatcher(cfgFile string) (*Watcher, error) {
	v := newViper(AppName)
	if err := readConfig(v, cfgFile); err != nil {
		return nil, err
	}
	if v.ConfigFileUsed() == "" {
		return nil, fmt.Errorf("no config file to watch")
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	return &Watcher{
		v:    v,
		last: cfg,
	}, nil
}

// File returns the watched config file path.
func (w *Watcher) File() string {
	return w.v.ConfigFileUsed()
}

// OnChange registers a callback invoked with each successfully reloaded config.
func (w *Watcher) OnChange(callback func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// OnError registers a callback invoked when a reload fails. The previous
// configuration stays active.
func (w *Watcher) OnError(callback func(error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = callback
}

// Start begins watching for configuration changes.
func (w *Watcher) Start() {
	w.v.OnConfigChange(func(e fsnotify.Event) {
		if e.Has(fsnotify.Write) || e.Has(fsnotify.Create) {
			w.handleChange()
		}
	})
	w.v.WatchConfig()
}

// Stop stops delivering changes. viper keeps its watch goroutine, but
// callbacks are no longer invoked.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
}

// Current returns the last successfully loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.last
}

// Reload forces a configuration reload.
func (w *Watcher) Reload() error {
	if err := w.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}
	return w.apply()
}

func (w *Watcher) handleChange() {
	if err := w.apply(); err != nil {
		w.mu.RLock()
		onError := w.onError
		w.mu.RUnlock()
		if onError != nil {
			onError(err)
		}
	}
}

func (w *Watcher) apply() error {
	cfg, err := decode(w.v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.last = cfg
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	for _, cb := range callbacks {
		cb(cfg)
	}
	return nil
}
