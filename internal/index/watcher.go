package index

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/nbweb/internal/apperr"
)

// Event kinds passed to EventCallback.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// reconcileDelay debounces the reconcile pass that follows renames.
const reconcileDelay = 200 * time.Millisecond

// EventCallback is called after a watcher-driven index change with the
// logical path of the document.
type EventCallback func(kind string, logicalPath string)

// Watch starts an fsnotify watcher on the source root and keeps the index
// current until ctx is cancelled. It calls cb (if non-nil) after each
// successful index mutation.
//
// New directories are added to the watch list unless excluded. Renames
// delete the old record and schedule a debounced Reconcile that picks up
// the new name.
func (s *Syncer) Watch(ctx context.Context, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := s.paths.Root()
	if err := s.addDirsRecursive(w, root); err != nil {
		return err
	}

	s.logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	emit := func(kind, logical string) {
		if cb != nil {
			cb(kind, logical)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			s.logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			if _, err := s.Reconcile(ctx, false); err != nil {
				s.logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			logical, err := s.paths.LogicalPath(ev.Name)
			if err != nil || logical == "/" {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if s.paths.Excluded(logical, true) || s.paths.ExcludedTree(logical) {
						continue
					}
					if addErr := s.addDirsRecursive(w, ev.Name); addErr != nil {
						s.logger.Warn("watcher: add new dir failed",
							slog.String("path", logical),
							slog.String("error", addErr.Error()))
					}
					// Files may land before the directory is watched.
					scheduleReconcile()
					continue
				}
			}

			if !s.paths.Recognized(path.Ext(logical)) {
				// A removed or renamed directory takes its documents along.
				if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					scheduleReconcile()
				}
				continue
			}
			if s.paths.ExcludedTree(logical) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				// Two writes inside StaleTolerance would otherwise look unchanged.
				doc, syncErr := s.SyncOne(ctx, ev.Name, true)
				if errors.Is(syncErr, apperr.ErrNotFound) {
					continue
				}
				if syncErr != nil {
					s.logger.Warn("watcher: sync failed", slog.String("path", logical), slog.String("error", syncErr.Error()))
					continue
				}
				if doc == nil || doc.Cached {
					continue
				}
				kind := EventUpdated
				if ev.Op&fsnotify.Create != 0 {
					kind = EventCreated
				}
				s.logger.Debug("watcher: indexed", slog.String("path", logical), slog.String("op", kind))
				emit(kind, logical)

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// fsnotify reports a rename on the old name only; the new
				// name arrives as a Create when it stays under the root.
				if delErr := s.Remove(ctx, logical); delErr != nil {
					s.logger.Warn("watcher: delete failed", slog.String("path", logical), slog.String("error", delErr.Error()))
					continue
				}
				s.logger.Debug("watcher: deleted", slog.String("path", logical))
				emit(EventDeleted, logical)
				if ev.Op&fsnotify.Rename != 0 {
					scheduleReconcile()
				}
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and its non-excluded subdirectories to the watcher.
func (s *Syncer) addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if logical, lerr := s.paths.LogicalPath(p); lerr == nil && logical != "/" && s.paths.Excluded(logical, true) {
			return fs.SkipDir
		}
		return w.Add(p)
	})
}
