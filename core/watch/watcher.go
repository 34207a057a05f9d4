// Package watch turns new recordings under a local audio root into storage
// paths ready for processing.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"smileslot/logger"
	"smileslot/storage"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long a file must stay unchanged before it is handed off.
const DefaultSettle = 2 * time.Second

// Handler receives the storage path of a settled recording.
type Handler func(ctx context.Context, key string)

// Watcher follows every directory below the local root recursively.
type Watcher struct {
	store   *storage.LocalStore
	settle  time.Duration
	handle  Handler
	fs      *fsnotify.Watcher
	pending map[string]time.Time // abs path -> last change
}

// New registers watches on the whole tree before returning, so files created
// afterwards are never missed.
func New(store *storage.LocalStore, settle time.Duration, handle Handler) (*Watcher, error) {
	if settle <= 0 {
		settle = DefaultSettle
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	w := &Watcher{
		store:   store,
		settle:  settle,
		handle:  handle,
		fs:      fw,
		pending: make(map[string]time.Time),
	}
	if err := w.addTree(store.Root(), false); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// addTree watches dir and its subdirectories. With schedule set, audio files
// already present are queued; they may have landed before the watch existed.
func (w *Watcher) addTree(dir string, schedule bool) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := w.fs.Add(p); err != nil {
				return fmt.Errorf("failed to watch %s: %w", p, err)
			}
			return nil
		}
		if schedule && storage.IsAudio(p) {
			w.pending[p] = time.Now()
		}
		return nil
	})
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()

	logger.Info("watching for recordings",
		logger.String("root", w.store.Root()),
		logger.Duration("settle", w.settle))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.onEvent(event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", logger.ErrorField(err))

		case now := <-ticker.C:
			w.flush(ctx, now)
		}
	}
}

func (w *Watcher) onEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name, true); err != nil {
				logger.Warn("failed to watch new directory",
					logger.String("dir", event.Name),
					logger.ErrorField(err))
			}
			return
		}
	}
	if storage.IsAudio(event.Name) {
		w.pending[event.Name] = time.Now()
	}
}

// flush hands off every file that has been quiet for the settle period.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	for path, changed := range w.pending {
		if now.Sub(changed) < w.settle {
			continue
		}
		delete(w.pending, path)
		key, err := w.store.KeyFor(path)
		if err != nil {
			logger.Warn("recording outside audio root ignored",
				logger.String("file", path),
				logger.ErrorField(err))
			continue
		}
		w.handle(ctx, key)
	}
}
