package embed

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatcherConfig configures the embedding source watcher.
type WatcherConfig struct {
	// Debounce is the duration to wait before invalidating after a change.
	// Multiple writes within this window (e.g. a table being rewritten in
	// chunks) collapse into one invalidation.
	Debounce time.Duration
}

// DefaultWatcherConfig returns sensible defaults for the watcher.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{Debounce: 500 * time.Millisecond}
}

// Watcher invalidates cached tables when any of their source files change
// on disk. Tables are otherwise cached for the process lifetime, so an
// external rewrite of an embedding file (a fresh prune run, a re-downloaded
// model) must drop the stale copy.
type Watcher struct {
	cache  *TableCache
	paths  []string
	config WatcherConfig
	logger *zap.Logger

	fsw *fsnotify.Watcher
}

// NewWatcher creates a Watcher that invalidates the given path set in cache
// when one of the paths is written, removed, or renamed.
func NewWatcher(cache *TableCache, paths []string, cfg WatcherConfig, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultWatcherConfig().Debounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch parent directories: editors and atomic writers replace files
	// by rename, which drops a direct file watch.
	dirs := make(map[string]bool)
	for _, p := range paths {
		dirs[filepath.Dir(p)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	return &Watcher{
		cache:  cache,
		paths:  paths,
		config: cfg,
		logger: logger,
		fsw:    fsw,
	}, nil
}

// Run processes file system events until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	watched := make(map[string]bool, len(w.paths))
	for _, p := range w.paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		watched[abs] = true
	}

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil {
				abs = event.Name
			}
			if !watched[abs] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("embedding source changed",
				zap.String("path", event.Name),
				zap.String("op", event.Op.String()))
			if timer == nil {
				timer = time.NewTimer(w.config.Debounce)
				timerC = timer.C
			} else {
				// Drain a stale tick before Reset so an already-fired
				// timer cannot trigger an early invalidation.
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.config.Debounce)
			}

		case <-timerC:
			w.cache.Invalidate(w.paths)
			w.logger.Info("invalidated cached embedding table",
				zap.Strings("paths", w.paths))
			timer = nil
			timerC = nil

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}
