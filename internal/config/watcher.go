package config

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads the configuration file on change and hands the result to a
// callback. Reload failures keep the previous snapshot.
type Watcher struct {
	path     string
	onReload func(Config, error)
	log      zerolog.Logger

	mu      sync.RWMutex
	current Config
	reloads atomic.Uint32

	done chan struct{}
}

// NewWatcher loads path once, then watches it for writes (debounced).
func NewWatcher(path string, log zerolog.Logger, onReload func(Config, error)) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("initial config load: %w", err)
	}
	w := &Watcher{
		path:     path,
		onReload: onReload,
		log:      log,
		current:  cfg,
		done:     make(chan struct{}),
	}
	go w.watch()
	return w, nil
}

// SetOnReload installs the reload callback. Useful when the consumer of
// reloads is constructed from the initial snapshot.
func (w *Watcher) SetOnReload(fn func(Config, error)) {
	w.mu.Lock()
	w.onReload = fn
	w.mu.Unlock()
}

// Snapshot returns the most recently loaded config.
func (w *Watcher) Snapshot() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Close stops the watch loop. Safe to call once.
func (w *Watcher) Close() { close(w.done) }

func (w *Watcher) watch() {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Error().Err(err).Msg("config watcher init failed")
		return
	}
	defer fw.Close()

	if err := fw.Add(w.path); err != nil {
		w.log.Error().Err(err).Str("path", w.path).Msg("config watch failed")
		return
	}

	var timer *time.Timer
	const debounce = 500 * time.Millisecond

	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			switch {
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, w.reload)
			case event.Op&(fsnotify.Rename|fsnotify.Remove) != 0:
				// Editors and configmap updates replace the file by rename,
				// leaving the watch bound to the dead inode. Rebind to the
				// path once the replacement lands, then reload.
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, func() {
					w.rebind(fw)
					w.reload()
				})
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("config watcher error")
		case <-w.done:
			return
		}
	}
}

// rebind re-attaches the watch after the file was replaced. The replacement
// may land shortly after the event fires; retry briefly.
func (w *Watcher) rebind(fw *fsnotify.Watcher) {
	for i := 0; i < 20; i++ {
		if err := fw.Add(w.path); err == nil {
			return
		}
		select {
		case <-w.done:
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
	w.log.Error().Str("path", w.path).Msg("config watch rebind failed")
}

func (w *Watcher) reload() {
	count := w.reloads.Add(1)
	w.log.Info().Str("path", w.path).Uint32("count", count).Msg("reloading config")

	cfg, err := Load(w.path)
	w.mu.Lock()
	if err == nil {
		w.current = cfg
	}
	fn := w.onReload
	w.mu.Unlock()
	if fn != nil {
		fn(cfg, err)
	}
}
