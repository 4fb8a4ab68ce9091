package relay

import (
	"bytes"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// HTTPMethods maps contract field names to HTTP methods, in emission order.
var HTTPMethods = []struct{ Field, Method string }{
	{"Get", "GET"},
	{"Post", "POST"},
	{"Put", "PUT"},
	{"Patch", "PATCH"},
	{"Delete", "DELETE"},
	{"Head", "HEAD"},
	{"Options", "OPTIONS"},
}

// HTTPMethod returns the HTTP method for a contract field name.
func HTTPMethod(field string) (string, bool) {
	for _, m := range HTTPMethods {
		if m.Field == field {
			return m.Method, true
		}
	}
	return "", false
}

// Import is an import used by a contract type expression.
type Import struct {
	Name string // explicit name, or "" for the default
	Path string
}

// Method is one entry of the Methods struct.
type Method struct {
	Field string // "Get"
	HTTP  string // "GET"

	// Printed Go type expressions, "" when the part is not declared.
	// Query is the element type when QueryOptional.
	Query         string
	QueryOptional bool
	Body          string
	Headers       string
	ResBody       string
}

// Contract is the parsed Methods declaration of an index.go file.
type Contract struct {
	Package string
	Methods []Method // declaration order
	Imports []Import // sorted by path
}

// ParseContract reads the Methods struct from the index file at filename
// using only the parser, so it works before the package type-checks.
// A missing file yields an empty contract.
func ParseContract(filename string) (*Contract, error) {
	src, err := os.ReadFile(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return &Contract{}, nil
	}
	if err != nil {
		return nil, err
	}
	return parseContract(filename, src)
}

func parseContract(filename string, src []byte) (*Contract, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, filename, src, parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}

	c := &Contract{Package: f.Name.Name}
	specs := typeSpecs(f)
	methods, ok := specs["Methods"]
	if !ok {
		return c, nil
	}
	st, ok := methods.Type.(*ast.StructType)
	if !ok {
		return nil, fmt.Errorf("%s: Methods must be a struct type", filename)
	}

	p := &exprPrinter{fset: fset, used: map[string]bool{}}
	for _, field := range st.Fields.List {
		for _, name := range field.Names {
			httpMethod, ok := HTTPMethod(name.Name)
			if !ok {
				return nil, fmt.Errorf("%s: Methods.%s is not an HTTP method", filename, name.Name)
			}
			body := resolveStruct(field.Type, specs)
			if body == nil {
				return nil, fmt.Errorf("%s: Methods.%s must be a struct", filename, name.Name)
			}
			m := Method{Field: name.Name, HTTP: httpMethod}
			for _, part := range body.Fields.List {
				for _, pn := range part.Names {
					switch pn.Name {
					case "Query":
						typ := part.Type
						if star, ok := typ.(*ast.StarExpr); ok {
							typ = star.X
							m.QueryOptional = true
						}
						m.Query = p.print(typ)
					case "ReqBody":
						m.Body = p.print(part.Type)
					case "ReqHeaders":
						m.Headers = p.print(part.Type)
					case "ResBody":
						m.ResBody = p.print(part.Type)
					}
				}
			}
			c.Methods = append(c.Methods, m)
		}
	}

	for _, imp := range f.Imports {
		importPath, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		var name string
		if imp.Name != nil {
			name = imp.Name.Name
		}
		local := name
		if local == "" {
			local = DefaultImportName(importPath)
		}
		if p.used[local] {
			c.Imports = append(c.Imports, Import{Name: name, Path: importPath})
		}
	}
	sort.Slice(c.Imports, func(i, j int) bool { return c.Imports[i].Path < c.Imports[j].Path })
	return c, nil
}

func typeSpecs(f *ast.File) map[string]*ast.TypeSpec {
	specs := make(map[string]*ast.TypeSpec)
	for _, decl := range f.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, spec := range gd.Specs {
			ts := spec.(*ast.TypeSpec)
			specs[ts.Name.Name] = ts
		}
	}
	return specs
}

// resolveStruct returns the struct behind a method field: a literal or a
// struct type declared in the same file.
func resolveStruct(expr ast.Expr, specs map[string]*ast.TypeSpec) *ast.StructType {
	for range len(specs) + 1 {
		switch e := expr.(type) {
		case *ast.StructType:
			return e
		case *ast.Ident:
			ts, ok := specs[e.Name]
			if !ok {
				return nil
			}
			expr = ts.Type
		default:
			return nil
		}
	}
	return nil
}

// exprPrinter prints type expressions and records the package names they use.
type exprPrinter struct {
	fset *token.FileSet
	used map[string]bool
}

func (p *exprPrinter) print(expr ast.Expr) string {
	ast.Inspect(expr, func(n ast.Node) bool {
		if sel, ok := n.(*ast.SelectorExpr); ok {
			if id, ok := sel.X.(*ast.Ident); ok {
				p.used[id.Name] = true
			}
		}
		return true
	})
	var buf bytes.Buffer
	printer.Fprint(&buf, p.fset, expr)
	return buf.String()
}

var majorVersion = regexp.MustCompile(`^v[0-9]+$`)

// DefaultImportName guesses the package name of an import path the way
// goimports does: the last element, skipping a major version suffix and
// dropping a "go-" prefix or ".vN" suffix.
func DefaultImportName(importPath string) string {
	base := path.Base(importPath)
	if majorVersion.MatchString(base) {
		if dir := path.Dir(importPath); dir != "." {
			base = path.Base(dir)
		}
	}
	if i := strings.Index(base, ".v"); i > 0 && majorVersion.MatchString(base[i+1:]) {
		base = base[:i]
	}
	base = strings.TrimPrefix(base, "go-")
	return strings.Map(func(r rune) rune {
		if r == '-' || r == '.' {
			return '_'
		}
		return r
	}, base)
}
