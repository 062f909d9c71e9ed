package config

import (
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Watcher observes the config overlay file and republishes Tunables when it
// changes. Only tunables are hot-reloadable; structural settings need a
// restart.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	mu       sync.RWMutex
	current  Tunables
	onChange []func(Tunables)
	stopCh   chan struct{}
}

// NewWatcher starts watching the overlay file. A missing or empty path
// returns a nil watcher, which is safe to Stop.
func NewWatcher(path string, initial Tunables, logger *zap.Logger) (*Watcher, error) {
	if path == "" {
		return nil, nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}
	w := &Watcher{
		path:    path,
		watcher: fsw,
		logger:  logger,
		current: initial,
		stopCh:  make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Tunables returns the current tunables snapshot.
func (w *Watcher) Tunables() Tunables {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers a callback invoked after each successful reload. Safe
// on a nil watcher.
func (w *Watcher) OnChange(fn func(Tunables)) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Stop ends the watch loop. Safe on a nil watcher.
func (w *Watcher) Stop() {
	if w == nil {
		return
	}
	close(w.stopCh)
	w.watcher.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Warn("failed to re-read config overlay", zap.Error(err))
		return
	}
	var overlay struct {
		Tunables Tunables `yaml:"tunables"`
	}
	overlay.Tunables = w.Tunables()
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		w.logger.Warn("ignoring malformed config overlay", zap.Error(err))
		return
	}
	w.mu.Lock()
	w.current = overlay.Tunables
	callbacks := append([]func(Tunables){}, w.onChange...)
	w.mu.Unlock()

	w.logger.Info("config tunables reloaded",
		zap.Int("retryMaxAttempts", overlay.Tunables.RetryMaxAttempts),
		zap.Duration("retryBaseDelay", overlay.Tunables.RetryBaseDelay),
	)
	for _, fn := range callbacks {
		fn(overlay.Tunables)
	}
}
