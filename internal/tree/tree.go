// Package tree reads the route directory tree.
//
// Each directory under the api root is one URL segment. A directory whose
// name starts with "_" is a path parameter; an optional ".type" suffix
// selects its primitive type ("_userId.int"). Children are visited in a fixed
// order: static children in listing order, then the single parameter child.
package tree

import (
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

// Special file names inside a route directory.
const (
	IndexFile      = "index.go"
	HooksFile      = "hooks.go"
	ControllerFile = "controller.go"
	RelayFile      = "zz_relay.go"
	ServerFile     = "zz_server.go"
	CommonFile     = "zz_common.go"
)

// ErrMultipleParamDirs is returned when a directory has more than one
// path parameter child.
var ErrMultipleParamDirs = errors.New("two or more path param folders")

var generatedFile = regexp.MustCompile(`^zz_.*\.go$`)

// IsGenerated reports whether name is a generator-owned file name.
func IsGenerated(name string) bool {
	return generatedFile.MatchString(name)
}

// Segment is one parsed directory name.
type Segment struct {
	Name      string // directory name as on disk
	IsParam   bool
	ParamName string // without the "_" marker and type suffix
	ParamType string // "string" unless a suffix is given
}

// ParseSegment parses a directory name.
func ParseSegment(name string) Segment {
	s := Segment{Name: name}
	if !strings.HasPrefix(name, "_") {
		return s
	}
	s.IsParam = true
	s.ParamName, s.ParamType, _ = strings.Cut(name[1:], ".")
	if s.ParamType == "" {
		s.ParamType = "string"
	}
	return s
}

// IsInt reports whether the parameter is cast to an integer at runtime.
func (s Segment) IsInt() bool {
	return s.IsParam && (s.ParamType == "int" || s.ParamType == "number")
}

// Pattern returns the segment in router pattern syntax.
func (s Segment) Pattern() string {
	if s.IsParam {
		return "{" + s.ParamName + "}"
	}
	return s.Name
}

// Param is a path parameter visible at a directory.
type Param struct {
	Name string
	Type string // "int" or "string"
}

// GoType returns the Go type used for the parameter in relay files.
func (p Param) GoType() string {
	if p.Type == "int" {
		return "int"
	}
	return "string"
}

// Dir is one route directory.
type Dir struct {
	Path     string    // absolute path
	Rel      string    // slash separated, relative to the api root; "" for the root
	Segments []Segment // from the root, excluding the root itself
	Params   []Param   // accumulated from the root
	Children []*Dir    // static children in listing order, then the param child
	Parent   *Dir
}

// Walk reads the route tree rooted at apiDir.
func Walk(apiDir string) (*Dir, error) {
	abs, err := filepath.Abs(apiDir)
	if err != nil {
		return nil, err
	}
	root := &Dir{Path: abs}
	if err := root.readChildren(); err != nil {
		return nil, err
	}
	return root, nil
}

func (d *Dir) readChildren() error {
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return err
	}
	var static []*Dir
	var param *Dir
	for _, e := range entries {
		if !e.IsDir() || skipDir(e.Name()) {
			continue
		}
		seg := ParseSegment(e.Name())
		child := &Dir{
			Path:     filepath.Join(d.Path, e.Name()),
			Rel:      pathJoin(d.Rel, e.Name()),
			Segments: append(append([]Segment(nil), d.Segments...), seg),
			Params:   d.Params,
			Parent:   d,
		}
		if seg.IsParam {
			if param != nil {
				return fmt.Errorf("%s: %w", d.Path, ErrMultipleParamDirs)
			}
			typ := "string"
			if seg.IsInt() {
				typ = "int"
			}
			child.Params = append(append([]Param(nil), d.Params...), Param{Name: seg.ParamName, Type: typ})
			param = child
			continue
		}
		static = append(static, child)
	}
	d.Children = static
	if param != nil {
		d.Children = append(d.Children, param)
	}
	for _, c := range d.Children {
		if err := c.readChildren(); err != nil {
			return err
		}
	}
	return nil
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "testdata"
}

func pathJoin(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// Each calls fn for d and its descendants in traversal order.
func (d *Dir) Each(fn func(*Dir) error) error {
	if err := fn(d); err != nil {
		return err
	}
	for _, c := range d.Children {
		if err := c.Each(fn); err != nil {
			return err
		}
	}
	return nil
}

// Ancestors returns the directories from the root down to d's parent.
func (d *Dir) Ancestors() []*Dir {
	var out []*Dir
	for p := d.Parent; p != nil; p = p.Parent {
		out = append([]*Dir{p}, out...)
	}
	return out
}

// URLPath returns the route path in router pattern syntax, e.g.
// "/users/{userId}". The root is "".
func (d *Dir) URLPath() string {
	var b strings.Builder
	for _, s := range d.Segments {
		b.WriteByte('/')
		b.WriteString(s.Pattern())
	}
	return b.String()
}

// IntParams returns the names of integer path parameters in root to leaf order.
func (d *Dir) IntParams() []string {
	var out []string
	for _, p := range d.Params {
		if p.Type == "int" {
			out = append(out, p.Name)
		}
	}
	return out
}

// Has reports whether d currently contains the regular file name.
func (d *Dir) Has(name string) bool {
	fi, err := os.Stat(filepath.Join(d.Path, name))
	return err == nil && fi.Mode().IsRegular()
}

// File returns the path of name inside d.
func (d *Dir) File(name string) string {
	return filepath.Join(d.Path, name)
}

// PackageName returns the package name declared by the user files in d, or a
// name derived from the directory name when there are none.
func (d *Dir) PackageName() string {
	for _, name := range []string{IndexFile, HooksFile, ControllerFile} {
		if !d.Has(name) {
			continue
		}
		f, err := parser.ParseFile(token.NewFileSet(), d.File(name), nil, parser.PackageClauseOnly)
		if err == nil && f.Name != nil {
			return f.Name.Name
		}
	}
	if d.Parent == nil {
		return "api"
	}
	return SanitizePackageName(d.Segments[len(d.Segments)-1].Name)
}

// SanitizePackageName turns a directory name into a valid package name.
func SanitizePackageName(dirName string) string {
	seg := ParseSegment(dirName)
	name := dirName
	if seg.IsParam {
		name = seg.ParamName
	}
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" || unicode.IsDigit(rune(out[0])) {
		out = "p" + out
	}
	if token.IsKeyword(out) {
		out += "_"
	}
	return out
}
