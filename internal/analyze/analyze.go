// Package analyze type-checks the route tree and extracts what the server
// synthesizer needs: per-method query shapes, schema bindings, hook
// presence and integer route parameters.
package analyze

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/printer"
	"go/token"
	"go/types"
	"log/slog"
	"path/filepath"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/tools/go/packages"

	"github.com/broady/routetree"
	"github.com/broady/routetree/internal/relay"
	"github.com/broady/routetree/internal/tree"
)

// ErrMissingController is returned for a directory that declares Methods
// without a Controller variable.
var ErrMissingController = errors.New("missing Controller variable for declared Methods")

// QueryField is one field of a method's query contract.
type QueryField struct {
	Name     string
	Kind     byte // routetree.KindBool, KindInt or KindString
	Optional bool
	Array    bool
}

// MethodSpec is the extracted shape of one HTTP method.
type MethodSpec struct {
	Field         string // "Get"
	HTTP          string // "GET"
	HasQuery      bool
	QueryOptional bool
	QueryFields   []QueryField
	Schemas       map[Binding]SchemaRef
}

// EventSpec describes one hook event of a hook source.
type EventSpec struct {
	Present bool
	Array   bool
}

// HookSpec describes the hook events returned by a hook source.
type HookSpec struct {
	OnRequest  EventSpec
	PreHandler EventSpec
}

// RouteNode is one analyzed route directory.
type RouteNode struct {
	Dir             *tree.Dir
	PkgPath         string
	PkgName         string
	Methods         []MethodSpec
	Hooks           *HookSpec // from var Hooks
	ControllerHooks *HookSpec // from var ControllerHooks
	HasController   bool
}

// Result is the analysis of a whole tree.
type Result struct {
	Nodes   []*RouteNode // traversal order
	Schemas []SchemaRef  // distinct, sorted
}

// Options configures Analyze.
type Options struct {
	Module tree.Module
	Logger *slog.Logger
	// Env overrides the environment of the go command used for loading.
	Env []string
}

// tolerated lists the files whose type errors do not abort analysis.
// Controllers and hooks often reference relay types that are regenerated
// in the same pass.
var tolerated = map[string]bool{
	tree.HooksFile:      true,
	tree.ControllerFile: true,
	tree.RelayFile:      true,
}

// Analyze loads every route package under root and extracts the route table.
func Analyze(ctx context.Context, root *tree.Dir, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var dirs []*tree.Dir
	var patterns []string
	byPath := make(map[string]*tree.Dir)
	err := root.Each(func(d *tree.Dir) error {
		p, err := opts.Module.ImportPath(d.Path)
		if err != nil {
			return err
		}
		dirs = append(dirs, d)
		patterns = append(patterns, p)
		byPath[p] = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	cfg := &packages.Config{
		Context: ctx,
		Mode: packages.NeedName |
			packages.NeedFiles |
			packages.NeedTypes |
			packages.NeedSyntax |
			packages.NeedTypesInfo |
			packages.NeedModule,
		Dir: opts.Module.Dir,
		Env: opts.Env,
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("load packages: %w", err)
	}
	loaded := make(map[string]*packages.Package, len(pkgs))
	for _, pkg := range pkgs {
		if err := checkErrors(pkg, logger); err != nil {
			return nil, err
		}
		loaded[pkg.PkgPath] = pkg
	}

	res := &Result{}
	schemas := make(map[SchemaRef]bool)
	for i, d := range dirs {
		pkg := loaded[patterns[i]]
		if pkg == nil || pkg.Types == nil {
			return nil, fmt.Errorf("package %s was not loaded", patterns[i])
		}
		node, err := analyzeDir(d, pkg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.Path, err)
		}
		for _, m := range node.Methods {
			for _, s := range m.Schemas {
				schemas[s] = true
			}
		}
		res.Nodes = append(res.Nodes, node)
	}

	for s := range schemas {
		res.Schemas = append(res.Schemas, s)
	}
	sort.Slice(res.Schemas, func(i, j int) bool {
		a, b := res.Schemas[i], res.Schemas[j]
		if a.ImportPath != b.ImportPath {
			return a.ImportPath < b.ImportPath
		}
		return a.Name < b.Name
	})
	return res, nil
}

// checkErrors fails on errors outside the tolerated files and logs the rest.
func checkErrors(pkg *packages.Package, logger *slog.Logger) error {
	for _, e := range pkg.Errors {
		if tolerable(pkg, e) {
			logger.Debug("ignoring package error", "package", pkg.PkgPath, "error", e.Msg, "pos", e.Pos)
			continue
		}
		return fmt.Errorf("package %s: %s", pkg.PkgPath, e)
	}
	return nil
}

// compilerLine matches one diagnostic of a go list compile failure, such as
// "api/users/controller.go:4:18: undefined: DefineController".
var compilerLine = regexp.MustCompile(`^(.+\.go):\d+(?::\d+)?: `)

// tolerable reports whether e only concerns tolerated files. Type errors
// carry their position. The go command reports the same failures a second
// time as a list error without a position, whose message is a
// "# importpath" header followed by one line per diagnostic.
func tolerable(pkg *packages.Package, e packages.Error) bool {
	switch e.Kind {
	case packages.TypeError:
		file := e.Pos
		if i := strings.Index(file, ".go:"); i >= 0 {
			file = file[:i+3]
		}
		return tolerated[filepath.Base(file)]
	case packages.ListError:
		lines := strings.Split(e.Msg, "\n")
		if len(lines) < 2 || strings.TrimSpace(lines[0]) != "# "+pkg.PkgPath {
			return false
		}
		files := 0
		for _, line := range lines[1:] {
			// Continuation lines are indented.
			if strings.TrimSpace(line) == "" || line[0] == ' ' || line[0] == '\t' {
				continue
			}
			m := compilerLine.FindStringSubmatch(line)
			if m == nil || !tolerated[filepath.Base(m[1])] {
				return false
			}
			files++
		}
		return files > 0
	}
	return false
}

func analyzeDir(d *tree.Dir, pkg *packages.Package) (*RouteNode, error) {
	node := &RouteNode{
		Dir:     d,
		PkgPath: pkg.PkgPath,
		PkgName: pkg.Name,
	}
	scope := pkg.Types.Scope()

	node.Hooks = hookSpec(scope.Lookup("Hooks"), pkg.Types)
	node.ControllerHooks = hookSpec(scope.Lookup("ControllerHooks"), pkg.Types)
	_, node.HasController = scope.Lookup("Controller").(*types.Var)

	obj, ok := scope.Lookup("Methods").(*types.TypeName)
	if !ok {
		return node, nil
	}
	st, ok := obj.Type().Underlying().(*types.Struct)
	if !ok {
		return nil, errors.New("type Methods must be a struct")
	}

	fields := fieldIndex(pkg)
	for i := range st.NumFields() {
		f := st.Field(i)
		httpMethod, ok := relay.HTTPMethod(f.Name())
		if !ok {
			return nil, fmt.Errorf("Methods.%s is not an HTTP method", f.Name())
		}
		ms, err := methodSpec(f, httpMethod, fields, pkg.PkgPath)
		if err != nil {
			return nil, fmt.Errorf("Methods.%s: %w", f.Name(), err)
		}
		node.Methods = append(node.Methods, ms)
	}
	if len(node.Methods) > 0 && !node.HasController {
		return nil, ErrMissingController
	}
	return node, nil
}

func methodSpec(f *types.Var, httpMethod string, fields map[token.Pos]fieldDecl, pkgPath string) (MethodSpec, error) {
	ms := MethodSpec{Field: f.Name(), HTTP: httpMethod}
	st, ok := f.Type().Underlying().(*types.Struct)
	if !ok {
		return ms, errors.New("must be a struct")
	}
	for i := range st.NumFields() {
		part := st.Field(i)
		var binding Binding
		switch part.Name() {
		case "Query":
			binding = BindQuery
			ms.HasQuery = true
			qt := types.Unalias(part.Type())
			if p, ok := qt.(*types.Pointer); ok {
				ms.QueryOptional = true
				qt = p.Elem()
			}
			qf, err := queryFields(qt)
			if err != nil {
				return ms, fmt.Errorf("Query: %w", err)
			}
			ms.QueryFields = qf
		case "ReqBody":
			binding = BindBody
		case "ReqHeaders":
			binding = BindHeaders
		default:
			continue
		}
		if ref, ok := schemaRef(part, fields, pkgPath); ok {
			if ms.Schemas == nil {
				ms.Schemas = make(map[Binding]SchemaRef)
			}
			ms.Schemas[binding] = ref
		}
	}
	return ms, nil
}

// queryFields describes the exported fields of a query struct.
func queryFields(t types.Type) ([]QueryField, error) {
	st, ok := t.Underlying().(*types.Struct)
	if !ok {
		return nil, fmt.Errorf("must be a struct, got %s", t)
	}
	var out []QueryField
	for i := range st.NumFields() {
		f := st.Field(i)
		if !f.Exported() || f.Embedded() {
			continue
		}
		name, opts := f.Name(), ""
		if tag, ok := reflect.StructTag(st.Tag(i)).Lookup("query"); ok {
			var key string
			key, opts, _ = strings.Cut(tag, ",")
			if key == "-" {
				continue
			}
			if key != "" {
				name = key
			}
		}
		qf := QueryField{Name: name}
		ft := types.Unalias(f.Type())
		if p, ok := ft.(*types.Pointer); ok {
			qf.Optional = true
			ft = p.Elem()
		}
		for _, o := range strings.Split(opts, ",") {
			if o == "omitempty" {
				qf.Optional = true
			}
		}
		switch u := ft.Underlying().(type) {
		case *types.Slice:
			qf.Array = true
			ft = u.Elem()
		case *types.Array:
			qf.Array = true
			ft = u.Elem()
		}
		qf.Kind = kindOf(ft)
		out = append(out, qf)
	}
	return out, nil
}

func kindOf(t types.Type) byte {
	t = types.Unalias(t)
	if p, ok := t.(*types.Pointer); ok {
		t = p.Elem()
	}
	b, ok := t.Underlying().(*types.Basic)
	if !ok {
		return routetree.KindString
	}
	switch {
	case b.Info()&types.IsInteger != 0:
		return routetree.KindInt
	case b.Info()&types.IsBoolean != 0:
		return routetree.KindBool
	default:
		return routetree.KindString
	}
}

// schemaRef applies SchemaBinding to the declaration of part.
func schemaRef(part *types.Var, fields map[token.Pos]fieldDecl, pkgPath string) (SchemaRef, bool) {
	decl, ok := fields[part.Pos()]
	if !ok {
		return SchemaRef{}, false
	}
	var buf bytes.Buffer
	if err := printer.Fprint(&buf, token.NewFileSet(), decl.field.Type); err != nil {
		return SchemaRef{}, false
	}
	qual, name, ok := SchemaBinding(buf.String())
	if !ok {
		return SchemaRef{}, false
	}
	if qual == "" {
		return SchemaRef{ImportPath: pkgPath, Name: name}, true
	}
	p, ok := decl.imports[qual]
	if !ok {
		return SchemaRef{}, false
	}
	return SchemaRef{ImportPath: p, Name: name}, true
}

// fieldDecl is a struct field declaration and the imports of its file.
type fieldDecl struct {
	field   *ast.Field
	imports map[string]string // local name -> import path
}

// fieldIndex maps the position of every named struct field in pkg to its
// declaration.
func fieldIndex(pkg *packages.Package) map[token.Pos]fieldDecl {
	out := make(map[token.Pos]fieldDecl)
	for _, f := range pkg.Syntax {
		imports := fileImports(pkg, f)
		ast.Inspect(f, func(n ast.Node) bool {
			if field, ok := n.(*ast.Field); ok {
				for _, name := range field.Names {
					out[name.Pos()] = fieldDecl{field: field, imports: imports}
				}
			}
			return true
		})
	}
	return out
}

func fileImports(pkg *packages.Package, f *ast.File) map[string]string {
	names := make(map[string]string)
	for _, imp := range f.Imports {
		p, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		local := relay.DefaultImportName(p)
		if imp.Name != nil {
			local = imp.Name.Name
		} else if pn, ok := pkg.TypesInfo.Implicits[imp].(*types.PkgName); ok {
			local = pn.Name()
		}
		names[local] = p
	}
	return names
}

// hookSpec inspects the value a hook provider yields. obj is a package-level
// variable whose type has a Provide method, as returned by DefineHooks.
func hookSpec(obj types.Object, pkg *types.Package) *HookSpec {
	v, ok := obj.(*types.Var)
	if !ok {
		return nil
	}
	m, _, _ := types.LookupFieldOrMethod(v.Type(), true, pkg, "Provide")
	fn, ok := m.(*types.Func)
	if !ok {
		return nil
	}
	sig := fn.Type().(*types.Signature)
	if sig.Results().Len() != 1 {
		return nil
	}
	t := types.Unalias(sig.Results().At(0).Type())
	if p, ok := t.(*types.Pointer); ok {
		t = p.Elem()
	}
	st, ok := t.Underlying().(*types.Struct)
	if !ok {
		return nil
	}
	spec := &HookSpec{}
	for i := range st.NumFields() {
		f := st.Field(i)
		var ev *EventSpec
		switch f.Name() {
		case "OnRequest":
			ev = &spec.OnRequest
		case "PreHandler":
			ev = &spec.PreHandler
		default:
			continue
		}
		ev.Present = true
		switch f.Type().Underlying().(type) {
		case *types.Slice, *types.Array:
			ev.Array = true
		}
	}
	return spec
}
