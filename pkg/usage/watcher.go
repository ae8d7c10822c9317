package usage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a config change is applied.
const DefaultDebounce = 200 * time.Millisecond

// ConfigWatcher reloads the configuration file when it changes. Editors
// often replace files via rename, so the parent directory is watched and
// events are filtered by file name.
type ConfigWatcher struct {
	path     string
	debounce time.Duration
	reload   func(path string) error
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// NewConfigWatcher creates a watcher for path. reload is called with path
// once changes settle; config.ReloadConfig is the usual choice.
func NewConfigWatcher(path string, debounce time.Duration, reload func(string) error) (*ConfigWatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config watcher: empty path")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", filepath.Dir(abs), err)
	}
	return &ConfigWatcher{
		path:     abs,
		debounce: debounce,
		reload:   reload,
		watcher:  w,
		logger:   slog.Default().With("component", "usage.watcher"),
	}, nil
}

// Run processes events until ctx is cancelled, then closes the watcher.
func (cw *ConfigWatcher) Run(ctx context.Context) error {
	defer cw.stop()

	cw.logger.Info("config watcher started", "path", cw.path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !cw.relevant(event) {
				continue
			}
			cw.logger.Debug("config file event", "op", event.Op.String())
			cw.trigger()

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			cw.logger.Error("config watcher error", "error", err)
		}
	}
}

func (cw *ConfigWatcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	name, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return name == cw.path
}

func (cw *ConfigWatcher) trigger() {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.timer = time.AfterFunc(cw.debounce, func() {
		if err := cw.reload(cw.path); err != nil {
			cw.logger.Error("config reload failed, keeping previous pricing", "error", err)
			return
		}
		cw.logger.Info("config reloaded", "path", cw.path)
	})
}

func (cw *ConfigWatcher) stop() {
	cw.mu.Lock()
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.mu.Unlock()
	cw.watcher.Close()
}
