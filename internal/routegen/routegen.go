// Package routegen renders the project-level zz_server.go and zz_common.go
// files from an analyzed route tree.
package routegen

import (
	"bytes"
	"fmt"
	"go/format"
	"sort"
	"strconv"
	"strings"

	"github.com/broady/routetree"
	"github.com/broady/routetree/internal/analyze"
	"github.com/broady/routetree/internal/relay"
	"github.com/broady/routetree/internal/tree"
)

// Options describes the package receiving the generated files.
type Options struct {
	Package    string // package name of the project directory
	ImportPath string // import path of the project directory
}

const header = "// Code generated by routetree. DO NOT EDIT.\n\n"

// Common renders zz_common.go. Its content depends only on the package name.
func Common(pkgName string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(header)
	fmt.Fprintf(&buf, "package %s\n\n", pkgName)
	fmt.Fprintf(&buf, "import %q\n\n", relay.RuntimePath)
	buf.WriteString(`type (
	// Router registers handlers by method and path; routetree.NewRouter builds one.
	Router = routetree.Router
	// Config configures the generated server.
	Config = routetree.Config
	// CreateError builds the error returned for a rejected request.
	CreateError = routetree.CreateError
)

// NewConfig returns the default server configuration.
func NewConfig() *Config {
	return routetree.NewConfig()
}
`)
	return format.Source(buf.Bytes())
}

// generator holds the import aliases and variable names of one server file.
type generator struct {
	opts    Options
	aliases map[string]string // import path -> alias
	imports []string          // import paths in alias order
	hooks   map[*tree.Dir]string
	ctrl    map[*tree.Dir]string
	buf     bytes.Buffer
}

// Server renders zz_server.go. The output depends only on res and opts.
func Server(res *analyze.Result, opts Options) ([]byte, error) {
	g := &generator{
		opts:    opts,
		aliases: make(map[string]string),
		hooks:   make(map[*tree.Dir]string),
		ctrl:    make(map[*tree.Dir]string),
	}
	for i, n := range res.Nodes {
		if n.Hooks != nil || n.ControllerHooks != nil || len(n.Methods) > 0 {
			g.addImport(n.PkgPath, "route"+strconv.Itoa(i))
		}
	}
	for _, s := range res.Schemas {
		g.addImport(s.ImportPath, "schemas"+strconv.Itoa(len(g.imports)))
	}

	var body bytes.Buffer
	g.writeProviders(&body, res)
	hasRoutes := g.writeRoutes(&body, res)

	buf := &g.buf
	buf.WriteString(header)
	fmt.Fprintf(buf, "package %s\n\n", opts.Package)
	buf.WriteString("import (\n")
	if hasRoutes {
		buf.WriteString("\t\"net/http\"\n\n")
	}
	fmt.Fprintf(buf, "\t%q\n", relay.RuntimePath)
	for _, p := range g.imports {
		fmt.Fprintf(buf, "\t%s %q\n", g.aliases[p], p)
	}
	buf.WriteString(")\n\n")

	buf.WriteString("// New registers every route of the api tree on router and returns it.\n")
	buf.WriteString("func New(router routetree.Router, cfg *routetree.Config) routetree.Router {\n")
	buf.WriteString("\tif cfg == nil {\n\t\tcfg = routetree.NewConfig()\n\t}\n")
	buf.Write(body.Bytes())
	buf.WriteString("\treturn router\n}\n")

	out, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("format server: %w\n%s", err, buf.Bytes())
	}
	return out, nil
}

func (g *generator) addImport(importPath, alias string) {
	if importPath == g.opts.ImportPath {
		return
	}
	if _, ok := g.aliases[importPath]; ok {
		return
	}
	g.aliases[importPath] = alias
	g.imports = append(g.imports, importPath)
}

// qualify returns the expression naming a package-level identifier.
func (g *generator) qualify(importPath, name string) string {
	if importPath == g.opts.ImportPath {
		return name
	}
	return g.aliases[importPath] + "." + name
}

// writeProviders resolves every hook source and controller once, in
// traversal order. Sources that no route consumes are still resolved.
func (g *generator) writeProviders(w *bytes.Buffer, res *analyze.Result) {
	used := usedHooks(res)
	for i, n := range res.Nodes {
		if n.Hooks == nil {
			continue
		}
		name := "hooks" + strconv.Itoa(i)
		src := g.qualify(n.PkgPath, "Hooks")
		if !used[n.Dir] {
			fmt.Fprintf(w, "\t%s.Provide(router)\n", src)
			continue
		}
		g.hooks[n.Dir] = name
		writeHooks(w, name, src, n.Hooks)
	}
	for i, n := range res.Nodes {
		if n.ControllerHooks == nil {
			continue
		}
		name := "ctrlHooks" + strconv.Itoa(i)
		src := g.qualify(n.PkgPath, "ControllerHooks")
		if len(n.Methods) == 0 {
			fmt.Fprintf(w, "\t%s.Provide(router)\n", src)
			continue
		}
		g.ctrl[n.Dir] = name
		writeHooks(w, name, src, n.ControllerHooks)
	}
	for i, n := range res.Nodes {
		if len(n.Methods) == 0 {
			continue
		}
		fmt.Fprintf(w, "\tcontroller%d := %s.Provide(router)\n", i, g.qualify(n.PkgPath, "Controller"))
	}
	w.WriteString("\n")
}

// usedHooks reports which hook directories have a route at or below them.
func usedHooks(res *analyze.Result) map[*tree.Dir]bool {
	used := make(map[*tree.Dir]bool)
	for _, n := range res.Nodes {
		if len(n.Methods) == 0 {
			continue
		}
		used[n.Dir] = true
		for _, a := range n.Dir.Ancestors() {
			used[a] = true
		}
	}
	return used
}

// writeHooks normalises a provider's hook struct to routetree.Hooks.
func writeHooks(w *bytes.Buffer, name, src string, spec *analyze.HookSpec) {
	if !spec.OnRequest.Present && !spec.PreHandler.Present {
		fmt.Fprintf(w, "\t%s.Provide(router)\n", src)
		fmt.Fprintf(w, "\t%s := routetree.Hooks{}\n", name)
		return
	}
	raw := name + "Fn"
	fmt.Fprintf(w, "\t%s := %s.Provide(router)\n", raw, src)
	fmt.Fprintf(w, "\t%s := routetree.Hooks{\n", name)
	for _, ev := range []struct {
		field string
		spec  analyze.EventSpec
	}{
		{"OnRequest", spec.OnRequest},
		{"PreHandler", spec.PreHandler},
	} {
		if !ev.spec.Present {
			continue
		}
		spread := ""
		if ev.spec.Array {
			spread = "..."
		}
		fmt.Fprintf(w, "\t\t%s: routetree.Flatten(%s.%s%s),\n", ev.field, raw, ev.field, spread)
	}
	w.WriteString("\t}\n")
}

func (g *generator) writeRoutes(w *bytes.Buffer, res *analyze.Result) bool {
	var hasRoutes bool
	for i, n := range res.Nodes {
		var chain []string
		for _, d := range append(n.Dir.Ancestors(), n.Dir) {
			if h, ok := g.hooks[d]; ok {
				chain = append(chain, h)
			}
		}
		if h, ok := g.ctrl[n.Dir]; ok {
			chain = append(chain, h)
		}
		for _, m := range n.Methods {
			hasRoutes = true
			fmt.Fprintf(w, "\trouter.Method(http.Method%s, cfg.Path(%q), cfg.MethodToHandler(controller%d.Endpoint(%q), %s, %s, %s, %s, %t))\n",
				m.Field, n.Dir.URLPath(), i, m.HTTP,
				hookList(chain), g.schemas(m), stringList(n.Dir.IntParams()), queryList(m.QueryFields), m.QueryOptional)
		}
	}
	return hasRoutes
}

func hookList(names []string) string {
	if len(names) == 0 {
		return "nil"
	}
	return "[]routetree.Hooks{" + strings.Join(names, ", ") + "}"
}

func stringList(values []string) string {
	if len(values) == 0 {
		return "nil"
	}
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return "[]string{" + strings.Join(quoted, ", ") + "}"
}

var kindNames = map[byte]string{
	routetree.KindBool:   "routetree.KindBool",
	routetree.KindInt:    "routetree.KindInt",
	routetree.KindString: "routetree.KindString",
}

func queryList(fields []analyze.QueryField) string {
	if len(fields) == 0 {
		return "nil"
	}
	items := make([]string, len(fields))
	for i, f := range fields {
		item := fmt.Sprintf("{Name: %q, Kind: %s", f.Name, kindNames[f.Kind])
		if f.Optional {
			item += ", Optional: true"
		}
		if f.Array {
			item += ", Array: true"
		}
		items[i] = item + "}"
	}
	return "[]routetree.QueryParam{" + strings.Join(items, ", ") + "}"
}

func (g *generator) schemas(m analyze.MethodSpec) string {
	var parts []string
	for _, b := range []struct {
		binding analyze.Binding
		field   string
	}{
		{analyze.BindQuery, "Query"},
		{analyze.BindBody, "Body"},
		{analyze.BindHeaders, "Headers"},
	} {
		ref, ok := m.Schemas[b.binding]
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: routetree.SchemaOf[%s]()", b.field, g.qualify(ref.ImportPath, ref.Name)))
	}
	return "routetree.Schemas{" + strings.Join(parts, ", ") + "}"
}

// SortedRoutes lists "METHOD /path" for every generated route, sorted. It is
// used for log output.
func SortedRoutes(res *analyze.Result) []string {
	var out []string
	for _, n := range res.Nodes {
		p := n.Dir.URLPath()
		if p == "" {
			p = "/"
		}
		for _, m := range n.Methods {
			out = append(out, m.HTTP+" "+p)
		}
	}
	sort.Strings(out)
	return out
}
