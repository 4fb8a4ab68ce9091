// Package build runs generation passes over a project.
//
// A pass walks the api tree, scaffolds and writes a relay for every
// directory in traversal order, type-checks the tree and writes the
// project-level server and common files.
package build

import (
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/broady/routetree/internal/analyze"
	"github.com/broady/routetree/internal/clean"
	"github.com/broady/routetree/internal/relay"
	"github.com/broady/routetree/internal/routegen"
	"github.com/broady/routetree/internal/scaffold"
	"github.com/broady/routetree/internal/tree"
	"github.com/broady/routetree/internal/writer"
)

// APIDir is the route root below the project directory.
const APIDir = "api"

// Options configures a Generator.
type Options struct {
	// Dir is the project directory holding api/.
	Dir string
	// Project optionally selects the go.mod file, or a directory below it.
	// The default is the module containing Dir.
	Project string
	// Writer receives every generated file.
	Writer writer.FileWriter
	Logger *slog.Logger
}

// Generator owns the state of one CLI run: the resolved module and the
// writer, which may carry a content cache across watch-triggered passes.
type Generator struct {
	dir        string
	module     tree.Module
	pkgName    string
	importPath string
	w          writer.FileWriter
	logger     *slog.Logger
}

// New resolves the project's module and package.
func New(opts Options) (*Generator, error) {
	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, err
	}
	start := opts.Project
	if start == "" {
		start = dir
	}
	mod, err := tree.FindModule(start)
	if err != nil {
		return nil, err
	}
	importPath, err := mod.ImportPath(dir)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	w := opts.Writer
	if w == nil {
		w = writer.New(writer.Options{Format: true, Logger: logger})
	}
	return &Generator{
		dir:        dir,
		module:     mod,
		pkgName:    projectPackage(dir),
		importPath: importPath,
		w:          w,
		logger:     logger,
	}, nil
}

// APIDir returns the absolute route root.
func (g *Generator) APIDir() string {
	return filepath.Join(g.dir, APIDir)
}

// Run performs a full pass: sweep stale directories, then write the common
// and server files.
func (g *Generator) Run(ctx context.Context) error {
	if err := clean.All(g.APIDir()); err != nil {
		return err
	}
	if err := g.Common(ctx); err != nil {
		return err
	}
	return g.Server(ctx)
}

// Common writes zz_common.go.
func (g *Generator) Common(ctx context.Context) error {
	src, err := routegen.Common(g.pkgName)
	if err != nil {
		return err
	}
	_, err = g.w.Write(ctx, filepath.Join(g.dir, tree.CommonFile), src)
	return err
}

// Server regenerates every relay and then zz_server.go.
func (g *Generator) Server(ctx context.Context) error {
	root, err := g.Relays(ctx)
	if err != nil {
		return err
	}
	res, err := analyze.Analyze(ctx, root, analyze.Options{Module: g.module, Logger: g.logger})
	if err != nil {
		return err
	}
	src, err := routegen.Server(res, routegen.Options{Package: g.pkgName, ImportPath: g.importPath})
	if err != nil {
		return err
	}
	path := filepath.Join(g.dir, tree.ServerFile)
	changed, err := g.w.Write(ctx, path, src)
	if err != nil {
		return err
	}
	routes := routegen.SortedRoutes(res)
	if changed {
		g.logger.Info("generated server", "path", path, "routes", len(routes))
	}
	for _, r := range routes {
		g.logger.Debug("route", "route", r)
	}
	return nil
}

// Relays walks the api tree, scaffolding and writing the relay of every
// directory in traversal order, and returns the tree.
func (g *Generator) Relays(ctx context.Context) (*tree.Dir, error) {
	root, err := tree.Walk(g.APIDir())
	if err != nil {
		return nil, err
	}
	err = root.Each(func(d *tree.Dir) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return g.relay(ctx, d)
	})
	if err != nil {
		return nil, err
	}
	return root, nil
}

func (g *Generator) relay(ctx context.Context, d *tree.Dir) error {
	pkgName := d.PackageName()
	if err := scaffold.Ensure(d.Path, pkgName); err != nil {
		return fmt.Errorf("scaffold %s: %w", d.Path, err)
	}
	contract, err := relay.ParseContract(d.File(tree.IndexFile))
	if err != nil {
		return err
	}
	contribs, err := g.contributions(d)
	if err != nil {
		return err
	}
	src, err := relay.Build(relay.Input{
		Package:       pkgName,
		Params:        d.Params,
		Contributions: contribs,
		Contract:      contract,
	})
	if err != nil {
		return err
	}
	if len(contribs) > 0 {
		g.logger.Debug("relay context", "dir", d.Rel, "context", relay.ContextString(contribs))
	}
	_, err = g.w.Write(ctx, d.File(tree.RelayFile), src)
	return err
}

// contributions lists the context types visible in d: AdditionalContext of
// every ancestor's hooks.go, then d's own AdditionalContext and
// ControllerContext.
func (g *Generator) contributions(d *tree.Dir) ([]relay.Contribution, error) {
	var out []relay.Contribution
	for _, a := range d.Ancestors() {
		if !relay.DeclaresType(a.File(tree.HooksFile), relay.AdditionalContext) {
			continue
		}
		p, err := g.module.ImportPath(a.Path)
		if err != nil {
			return nil, err
		}
		out = append(out, relay.Contribution{ImportPath: p, TypeName: relay.AdditionalContext})
	}
	if relay.DeclaresType(d.File(tree.HooksFile), relay.AdditionalContext) {
		out = append(out, relay.Contribution{TypeName: relay.AdditionalContext})
	}
	if relay.DeclaresType(d.File(tree.ControllerFile), relay.ControllerContext) {
		out = append(out, relay.Contribution{TypeName: relay.ControllerContext})
	}
	return out, nil
}

// projectPackage returns the package name used by the Go files in dir,
// preferring hand-written files, or one derived from the directory name.
func projectPackage(dir string) string {
	entries, err := os.ReadDir(dir)
	if err == nil {
		var names []string
		for _, e := range entries {
			n := e.Name()
			if e.IsDir() || !strings.HasSuffix(n, ".go") || strings.HasSuffix(n, "_test.go") {
				continue
			}
			names = append(names, n)
		}
		// Hand-written files sort before generated ones.
		sort.SliceStable(names, func(i, j int) bool {
			return !tree.IsGenerated(names[i]) && tree.IsGenerated(names[j])
		})
		for _, n := range names {
			f, err := parser.ParseFile(token.NewFileSet(), filepath.Join(dir, n), nil, parser.PackageClauseOnly)
			if err == nil {
				return f.Name.Name
			}
		}
	}
	return tree.SanitizePackageName(filepath.Base(dir))
}
