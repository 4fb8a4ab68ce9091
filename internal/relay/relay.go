// Package relay synthesizes the zz_relay.go file of a route directory.
//
// The relay binds the directory's accumulated request context to typed
// DefineHooks and DefineController helpers, declares the per-method request
// and response types derived from index.go, and exposes UseContext.
package relay

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/broady/routetree/internal/tree"
)

// RuntimePath is the import path of the runtime package.
const RuntimePath = "github.com/broady/routetree"

// Context type names that contribute to the request context.
const (
	AdditionalContext = "AdditionalContext" // hooks.go, cascades to descendants
	ControllerContext = "ControllerContext" // controller.go, this directory only
)

// Contribution is a named context type merged into CurrentContext.
type Contribution struct {
	ImportPath string // "" for the directory's own package
	TypeName   string
}

// Input describes one relay file.
type Input struct {
	Package       string
	Params        []tree.Param
	Contributions []Contribution
	Contract      *Contract
}

// DeclaresType reports whether the Go file at filename declares the
// package-level type name. Missing or unparsable files declare nothing.
func DeclaresType(filename, name string) bool {
	src, err := os.ReadFile(filename)
	if err != nil {
		return false
	}
	f, err := parser.ParseFile(token.NewFileSet(), filename, src, parser.SkipObjectResolution)
	if err != nil {
		return false
	}
	for _, decl := range f.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, spec := range gd.Specs {
			if spec.(*ast.TypeSpec).Name.Name == name {
				return true
			}
		}
	}
	return false
}

// Build renders the relay file.
func Build(in Input) ([]byte, error) {
	contract := in.Contract
	if contract == nil {
		contract = &Contract{}
	}
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "// Code generated by routetree. DO NOT EDIT.\n\n")
	fmt.Fprintf(&buf, "package %s\n\n", in.Package)

	buf.WriteString("import (\n")
	buf.WriteString("\t\"net/http\"\n\n")
	fmt.Fprintf(&buf, "\t%q\n", RuntimePath)
	// The same path may be imported under a second, explicit name.
	seen := map[Import]bool{{Path: "net/http"}: true, {Path: RuntimePath}: true}
	for _, imp := range contract.Imports {
		if imp.Name == DefaultImportName(imp.Path) {
			imp.Name = ""
		}
		if seen[imp] {
			continue
		}
		seen[imp] = true
		if imp.Name != "" {
			fmt.Fprintf(&buf, "\t%s %q\n", imp.Name, imp.Path)
		} else {
			fmt.Fprintf(&buf, "\t%q\n", imp.Path)
		}
	}
	aliases := make(map[string]string)
	for _, c := range in.Contributions {
		if c.ImportPath == "" || aliases[c.ImportPath] != "" {
			continue
		}
		alias := fmt.Sprintf("rtctx%d", len(aliases))
		aliases[c.ImportPath] = alias
		fmt.Fprintf(&buf, "\t%s %q\n", alias, c.ImportPath)
	}
	buf.WriteString(")\n\n")

	writeContext(&buf, in, aliases)
	for _, m := range contract.Methods {
		writeMethodTypes(&buf, m)
	}
	writeController(&buf, contract.Methods)
	writeDefines(&buf)

	out, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("format relay for package %s: %w\n%s", in.Package, err, buf.Bytes())
	}
	return out, nil
}

func writeContext(buf *bytes.Buffer, in Input, aliases map[string]string) {
	for i, c := range in.Contributions {
		typ := c.TypeName
		if c.ImportPath != "" {
			typ = aliases[c.ImportPath] + "." + c.TypeName
		}
		fmt.Fprintf(buf, "type additionalContext%d = %s\n", i, typ)
	}
	if len(in.Contributions) > 0 {
		buf.WriteString("\n")
	}

	buf.WriteString("// CurrentContext is the request context visible to this directory.\n")
	if len(in.Contributions) == 0 && len(in.Params) == 0 {
		buf.WriteString("type CurrentContext struct{}\n\n")
	} else {
		writeContextStruct(buf, in)
	}

	buf.WriteString("// UseContext returns the context of a request handled by this directory.\n")
	buf.WriteString("func UseContext(r *http.Request) *CurrentContext {\n")
	if len(in.Contributions) > 0 {
		buf.WriteString("\tst := routetree.StateOf(r)\n")
		buf.WriteString("\tctx := &CurrentContext{\n")
		for i := range in.Contributions {
			fmt.Fprintf(buf, "\t\tadditionalContext%d: routetree.Contribution[additionalContext%d](st),\n", i, i)
		}
		buf.WriteString("\t}\n")
	} else {
		buf.WriteString("\tctx := &CurrentContext{}\n")
	}
	for _, p := range in.Params {
		fmt.Fprintf(buf, "\tctx.Params.%s = routetree.Param[%s](r, %q)\n", exported(p.Name), p.GoType(), p.Name)
	}
	buf.WriteString("\treturn ctx\n}\n\n")
}

func writeContextStruct(buf *bytes.Buffer, in Input) {
	buf.WriteString("type CurrentContext struct {\n")
	for i := range in.Contributions {
		fmt.Fprintf(buf, "\t*additionalContext%d\n", i)
	}
	if len(in.Params) > 0 {
		buf.WriteString("\tParams struct {\n")
		for _, p := range in.Params {
			fmt.Fprintf(buf, "\t\t%s %s\n", exported(p.Name), p.GoType())
		}
		buf.WriteString("\t}\n")
	}
	buf.WriteString("}\n\n")
}

func writeMethodTypes(buf *bytes.Buffer, m Method) {
	f := m.Field
	buf.WriteString("type (\n")
	if m.Query != "" {
		fmt.Fprintf(buf, "\t%sQuery = %s\n", f, m.Query)
	}
	if m.Body != "" {
		fmt.Fprintf(buf, "\t%sBody = %s\n", f, m.Body)
	}
	if m.Headers != "" {
		fmt.Fprintf(buf, "\t%sHeaders = %s\n", f, m.Headers)
	}
	resBody := m.ResBody
	if resBody == "" {
		resBody = "any"
	}
	fmt.Fprintf(buf, "\t%sResBody = %s\n", f, resBody)
	fmt.Fprintf(buf, "\t%sResponse = routetree.Response[%sResBody]\n", f, f)
	buf.WriteString(")\n\n")

	fmt.Fprintf(buf, "type %sRequest struct {\n", f)
	buf.WriteString("\t*CurrentContext\n")
	if m.Query != "" {
		if m.QueryOptional {
			fmt.Fprintf(buf, "\tQuery *%sQuery\n", f)
		} else {
			fmt.Fprintf(buf, "\tQuery %sQuery\n", f)
		}
	}
	if m.Body != "" {
		fmt.Fprintf(buf, "\tBody %sBody\n", f)
	}
	if m.Headers != "" {
		fmt.Fprintf(buf, "\tHeaders %sHeaders\n", f)
	}
	buf.WriteString("\tRequest *http.Request\n")
	buf.WriteString("}\n\n")
}

func writeController(buf *bytes.Buffer, methods []Method) {
	buf.WriteString("// ControllerMethods holds one handler per method declared in index.go.\n")
	if len(methods) == 0 {
		buf.WriteString("type ControllerMethods struct{}\n\n")
	} else {
		buf.WriteString("type ControllerMethods struct {\n")
		for _, m := range methods {
			fmt.Fprintf(buf, "\t%s func(req *%sRequest) (*%sResponse, error)\n", m.Field, m.Field, m.Field)
		}
		buf.WriteString("}\n\n")
	}

	buf.WriteString("// Endpoint adapts the handler for method to the runtime.\n")
	buf.WriteString("func (m ControllerMethods) Endpoint(method string) routetree.Endpoint {\n")
	buf.WriteString("\tswitch method {\n")
	for _, m := range methods {
		f := m.Field
		fmt.Fprintf(buf, "\tcase %q:\n", m.HTTP)
		fmt.Fprintf(buf, "\t\tif m.%s == nil {\n\t\t\tbreak\n\t\t}\n", f)
		buf.WriteString("\t\treturn routetree.Endpoint{\n")
		if m.Query != "" {
			fmt.Fprintf(buf, "\t\t\tQuery: routetree.Target[%sQuery],\n", f)
		}
		if m.Body != "" {
			fmt.Fprintf(buf, "\t\t\tBody: routetree.Target[%sBody],\n", f)
		}
		if m.Headers != "" {
			fmt.Fprintf(buf, "\t\t\tHeaders: routetree.Target[%sHeaders],\n", f)
		}
		buf.WriteString("\t\t\tHandle: func(r *http.Request) (*routetree.Result, error) {\n")
		if m.Query != "" || m.Body != "" || m.Headers != "" {
			buf.WriteString("\t\t\t\tst := routetree.StateOf(r)\n")
		}
		fmt.Fprintf(buf, "\t\t\t\tres, err := m.%s(&%sRequest{\n", f, f)
		buf.WriteString("\t\t\t\t\tCurrentContext: UseContext(r),\n")
		if m.Query != "" {
			if m.QueryOptional {
				fmt.Fprintf(buf, "\t\t\t\t\tQuery: routetree.Pointer[%sQuery](st.Query),\n", f)
			} else {
				fmt.Fprintf(buf, "\t\t\t\t\tQuery: routetree.Value[%sQuery](st.Query),\n", f)
			}
		}
		if m.Body != "" {
			fmt.Fprintf(buf, "\t\t\t\t\tBody: routetree.Value[%sBody](st.Body),\n", f)
		}
		if m.Headers != "" {
			fmt.Fprintf(buf, "\t\t\t\t\tHeaders: routetree.Value[%sHeaders](st.Headers),\n", f)
		}
		buf.WriteString("\t\t\t\t\tRequest: r,\n")
		buf.WriteString("\t\t\t\t})\n")
		buf.WriteString("\t\t\t\treturn routetree.Invoke(res, err)\n")
		buf.WriteString("\t\t\t},\n")
		buf.WriteString("\t\t}\n")
	}
	buf.WriteString("\t}\n")
	buf.WriteString("\tpanic(\"routetree: no controller method for \" + method)\n")
	buf.WriteString("}\n\n")
}

func writeDefines(buf *bytes.Buffer) {
	buf.WriteString(`// DefineHooks declares the hooks of this directory.
func DefineHooks[T any](hooks func(router routetree.Router) T) routetree.Provider[T] {
	return routetree.Plain[T](hooks)
}

// DefineHooksWith declares hooks with replaceable dependencies.
func DefineHooksWith[D, T any](deps D, hooks func(deps D, router routetree.Router) T) *routetree.Injectable[D, T] {
	return routetree.Depend(deps, hooks)
}

// DefineController declares the controller of this directory.
func DefineController(methods func(router routetree.Router) ControllerMethods) routetree.Provider[ControllerMethods] {
	return routetree.Plain[ControllerMethods](methods)
}

// DefineControllerWith declares a controller with replaceable dependencies.
func DefineControllerWith[D any](deps D, methods func(deps D, router routetree.Router) ControllerMethods) *routetree.Injectable[D, ControllerMethods] {
	return routetree.Depend(deps, methods)
}
`)
}

func exported(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

// ContextString renders contributions for log output.
func ContextString(cs []Contribution) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		if c.ImportPath == "" {
			parts[i] = c.TypeName
		} else {
			parts[i] = c.ImportPath + "." + c.TypeName
		}
	}
	return strings.Join(parts, ", ")
}
