package source

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for the library to go quiet.
const DefaultDebounce = 2 * time.Second

// Watcher reports new or changed images under a Directory. Bursts of file
// events are coalesced: one notification is sent once no event has arrived
// for the debounce interval.
type Watcher struct {
	dir      *Directory
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	changes  chan []string
	pending  map[string]struct{}
	debounce time.Duration
}

// NewWatcher creates a watcher over dir and registers every existing subdirectory.
func NewWatcher(dir *Directory, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		dir:      dir,
		logger:   logger,
		watcher:  fw,
		changes:  make(chan []string, 1),
		pending:  make(map[string]struct{}),
		debounce: debounce,
	}

	if err := w.watchDir(dir.Root()); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

// Changes delivers the sorted paths of images that settled since the last
// notification. It is closed when Run returns.
func (w *Watcher) Changes() <-chan []string {
	return w.changes
}

// Run processes file events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer func() {
		timer.Stop()
		if err := w.watcher.Close(); err != nil {
			w.logger.Warn("failed to close watcher", "error", err)
		}
		close(w.changes)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if w.handle(event) {
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		case <-timer.C:
			w.flush()
		}
	}
}

func (w *Watcher) watchDir(root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("failed to watch %s: %w", root, err)
			}
			w.logger.Warn("failed to access path", "path", path, "error", err)
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if path != root && isHidden(entry.Name()) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Error("failed to add watch", "path", path, "error", err)
			return nil
		}
		w.logger.Debug("added watch", "path", path)
		return nil
	})
}

// handle records an event and reports whether anything became pending.
func (w *Watcher) handle(event fsnotify.Event) bool {
	if isHidden(filepath.Base(event.Name)) {
		return false
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watchDir(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
			// Files moved in with the directory produce no events of their own.
			return w.markDirectory(event.Name)
		}
	}

	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return false
	}
	if !w.dir.IsImage(event.Name) {
		return false
	}
	w.pending[event.Name] = struct{}{}
	return true
}

func (w *Watcher) markDirectory(dir string) bool {
	marked := false
	_ = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err == nil && !entry.IsDir() && w.dir.IsImage(path) {
			w.pending[path] = struct{}{}
			marked = true
		}
		return nil
	})
	return marked
}

// flush publishes pending paths that still exist. Only Run sends on changes,
// so after draining an undelivered notification there is room to send.
func (w *Watcher) flush() {
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		if _, err := os.Stat(path); err == nil {
			paths = append(paths, path)
		}
	}
	w.pending = make(map[string]struct{})
	if len(paths) == 0 {
		return
	}
	slices.Sort(paths)

	select {
	case w.changes <- paths:
		return
	default:
	}
	select {
	case prev := <-w.changes:
		paths = mergeSorted(prev, paths)
	default:
	}
	w.changes <- paths
}

func mergeSorted(a, b []string) []string {
	out := slices.Concat(a, b)
	slices.Sort(out)
	return slices.Compact(out)
}
