// Package watcher notifies the service when its settings file changes.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 200 * time.Millisecond

// changeOps are the events that count as a settings change.
const changeOps = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

// Watcher calls onChange after the watched file is written, replaced or
// removed. The parent directory is watched so that atomic replacements
// (write to temp file, rename over target) are seen.
type Watcher struct {
	watcher  *fsnotify.Watcher
	onChange func()
	cancel   context.CancelFunc
	ctx      context.Context
	path     string
	dir      string
	debounce time.Duration
	mu       sync.Mutex
	running  bool
}

// New creates a Watcher for path. Start must be called to begin watching.
func New(path string, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		watcher:  fsw,
		onChange: onChange,
		path:     filepath.Clean(abs),
		dir:      filepath.Dir(filepath.Clean(abs)),
		debounce: DefaultDebounce,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start begins watching. It fails if the parent directory does not exist.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if _, err := os.Stat(w.dir); err != nil {
		return err
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}

	w.running = true
	go w.loop()
	return nil
}

// Stop stops watching and releases the underlying notifier.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	w.cancel()
	return w.watcher.Close()
}

func (w *Watcher) loop() {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path || event.Op&changeOps == 0 {
				continue
			}

			log.Debug().Str("path", w.path).Str("op", event.Op.String()).Msg("Settings file event")
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.fire)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Str("path", w.path).Msg("Watcher error")
		}
	}
}

func (w *Watcher) fire() {
	if w.ctx.Err() != nil {
		return
	}
	log.Info().Str("path", w.path).Msg("Settings file changed")
	if w.onChange != nil {
		w.onChange()
	}
}
