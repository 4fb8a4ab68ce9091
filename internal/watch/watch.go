// Package watch turns filesystem changes under the api tree into serialized
// regeneration tasks.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/broady/routetree/internal/tree"
)

// Watcher watches a directory tree recursively. fsnotify only watches single
// directories, so new subdirectories are added as they appear.
type Watcher struct {
	fs     *fsnotify.Watcher
	root   string
	logger *slog.Logger
}

// New watches root and every directory below it.
func New(root string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{fs: fw, root: root, logger: logger}
	if err := w.addTree(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// Relevant reports whether ev should trigger a regeneration. Hidden files,
// such as the writer's temp files, and the creation or modification of
// generated files are ignored so a pass does not trigger itself.
func Relevant(ev fsnotify.Event) bool {
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, ".") {
		return false
	}
	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		return true
	}
	if tree.IsGenerated(name) {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)
}

// Run delivers relevant events to handle until ctx is done. handle is
// called on the watcher goroutine; it should hand work to a Serializer.
func (w *Watcher) Run(ctx context.Context, handle func(fsnotify.Event)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) && !strings.HasPrefix(filepath.Base(ev.Name), ".") {
				// A new route directory must be watched before its files appear.
				if err := w.addTree(ev.Name); err != nil {
					w.logger.Debug("not watching new path", "path", ev.Name, "error", err)
				}
			}
			if !Relevant(ev) {
				continue
			}
			w.logger.Debug("change detected", "op", ev.Op.String(), "path", ev.Name)
			handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
