package tree

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
)

// Module identifies the Go module containing a project.
type Module struct {
	Path string // module path from go.mod
	Dir  string // absolute directory of go.mod
}

// FindModule locates the go.mod governing start. start may be a go.mod file
// or any directory inside the module.
func FindModule(start string) (Module, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return Module{}, err
	}
	if filepath.Base(abs) == "go.mod" {
		return readModule(abs)
	}
	for dir := abs; ; {
		gomod := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(gomod); err == nil {
			return readModule(gomod)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Module{}, fmt.Errorf("no go.mod found above %s", abs)
		}
		dir = parent
	}
}

func readModule(gomod string) (Module, error) {
	data, err := os.ReadFile(gomod)
	if err != nil {
		return Module{}, err
	}
	path := modfile.ModulePath(data)
	if path == "" {
		return Module{}, fmt.Errorf("%s: missing module directive", gomod)
	}
	return Module{Path: path, Dir: filepath.Dir(gomod)}, nil
}

// ImportPath returns the import path of the package in dir.
func (m Module) ImportPath(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(m.Dir, abs)
	if err != nil {
		return "", err
	}
	if rel == "." {
		return m.Path, nil
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.New(dir + " is outside module " + m.Path)
	}
	return m.Path + "/" + filepath.ToSlash(rel), nil
}
