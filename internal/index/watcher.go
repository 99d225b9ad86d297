package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/gridedit/internal/storage"
)

// syncDelay is how long the watcher waits for a burst of events to settle.
// A single renumber renames every shifted sibling twice.
const syncDelay = 200 * time.Millisecond

// EventCallback is called after a watcher-driven index change.
// op is one of "created", "updated", "deleted".
type EventCallback func(op string, path string)

// Watch starts an fsnotify watcher on the content root and keeps the index
// in sync until ctx is cancelled. Events are debounced into a single Sync
// pass; cb (if non-nil) is called for every change that pass makes.
//
// New directories created at runtime are automatically added to the watch
// list.
func Watch(ctx context.Context, db *DB, store storage.Provider, root, indexFile string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var syncTimer *time.Timer
	var syncCh <-chan time.Time

	scheduleSync := func() {
		if syncTimer == nil {
			syncTimer = time.NewTimer(syncDelay)
			syncCh = syncTimer.C
		} else {
			syncTimer.Reset(syncDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if syncTimer != nil {
				syncTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-syncCh:
			changes, err := Sync(db, store, indexFile, logger)
			if err != nil {
				logger.Warn("watcher: sync failed", slog.String("error", err.Error()))
				continue
			}
			if cb == nil {
				continue
			}
			for _, c := range changes {
				cb(c.Op, c.Path)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
				}
			}
			scheduleSync()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A staging directory can vanish between listing and Add.
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if addErr := w.Add(path); addErr != nil && !os.IsNotExist(addErr) {
				return addErr
			}
		}
		return nil
	})
}
