// Package clean removes route directories that hold nothing but generated
// files, which happens when a user deletes the last file of a route.
package clean

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/broady/routetree/internal/tree"
)

// IsStale reports whether dir has at least one entry and every entry is a
// generated file. Unreadable directories are not stale.
func IsStale(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) == 0 {
		return false
	}
	for _, e := range entries {
		if e.IsDir() || !tree.IsGenerated(e.Name()) {
			return false
		}
	}
	return true
}

// Dir deletes the generated files of a stale directory and then the
// directory itself. It does nothing to a directory that is not stale.
func Dir(dir string) error {
	if !IsStale(dir) {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return os.Remove(dir)
}

// OnEvent cleans the parent of a removed or renamed path. Other events and
// deeper directories are left alone.
func OnEvent(ev fsnotify.Event) error {
	if !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return nil
	}
	return Dir(filepath.Dir(ev.Name))
}

// All sweeps the tree under apiDir depth first, cleaning children before
// their parents. apiDir itself is never removed.
func All(apiDir string) error {
	return sweep(apiDir, true)
}

func sweep(dir string, root bool) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := sweep(filepath.Join(dir, e.Name()), false); err != nil {
				return err
			}
		}
	}
	if root {
		return nil
	}
	return Dir(dir)
}
