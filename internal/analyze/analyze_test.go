package analyze

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/packages"

	"github.com/broady/routetree"
	"github.com/broady/routetree/internal/tree"
)

// rtPackage mirrors the parts of the runtime the analyzer looks at, so the
// fixture module has no external requirements.
const rtPackage = `package rt

import "net/http"

type Infer[T any] = T

type Router interface {
	http.Handler
	Method(method, pattern string, h http.Handler)
}

type HookFunc func(w http.ResponseWriter, r *http.Request) error

type Hooks struct {
	OnRequest  []HookFunc
	PreHandler []HookFunc
}

type Provider[T any] interface{ Provide(router Router) T }

type Plain[T any] func(router Router) T

func (p Plain[T]) Provide(router Router) T { return p(router) }
`

const schemasPackage = `package schemas

type UserInfo struct {
	Name string ` + "`json:\"name\" validate:\"required\"`" + `
}

type Auth struct {
	Token string ` + "`header:\"X-Token\" validate:\"required\"`" + `
}
`

// relayStub stands in for a generated relay. Controllers in the fixture do
// not depend on it so a stale stub cannot break analysis.
const relayStub = `package %s

import "example.com/app/rt"

type ControllerMethods struct{}

func DefineHooks[T any](f func(router rt.Router) T) rt.Provider[T] { return rt.Plain[T](f) }
`

var fixture = map[string]string{
	"go.mod":             "module example.com/app\n\ngo 1.24\n",
	"rt/rt.go":           rtPackage,
	"schemas/schemas.go": schemasPackage,

	"api/index.go": `package api

type Methods struct {
	Get struct {
		ResBody string
	}
}
`,
	"api/controller.go": `package api

var Controller = 1
`,
	"api/hooks.go": `package api

import "example.com/app/rt"

type AdditionalContext struct{ User string }

var Hooks = DefineHooks(func(router rt.Router) rt.Hooks { return rt.Hooks{} })
`,

	"api/users/index.go": `package users

import (
	"example.com/app/rt"
	s "example.com/app/schemas"
)

type Query struct {
	Ids   []int  ` + "`query:\"ids\"`" + `
	Limit *int   ` + "`query:\"limit\"`" + `
	Debug bool   ` + "`query:\"debug,omitempty\"`" + `
	Name  string
	Skip  string ` + "`query:\"-\"`" + `
	inner string
}

type Methods struct {
	Get struct {
		Query   *Query
		ResBody []s.UserInfo
	}
	Post struct {
		ReqBody    rt.Infer[s.UserInfo]
		ReqHeaders rt.Infer[ s.Auth ]
		ResBody    s.UserInfo
	}
	Put struct {
		ReqBody rt.Infer[Local]
	}
}

type Local struct {
	ID int ` + "`validate:\"min=1\"`" + `
}
`,
	"api/users/controller.go": `package users

// A reference to a type that does not exist yet must not fail analysis.
var Controller = DefineController(nil)

type ControllerHooks struct{}
`,

	"api/users/_userId.int/index.go": `package userId

type Methods struct {
	Get struct {
		Query struct {
			Flag bool
		}
	}
}
`,
	"api/users/_userId.int/controller.go": `package userId

var Controller struct{}
`,
	"api/users/_userId.int/hooks.go": `package userId

import (
	"net/http"

	"example.com/app/rt"
)

type single struct {
	OnRequest func(w http.ResponseWriter, r *http.Request) error
}

var Hooks = DefineHooks(func(router rt.Router) single { return single{} })
`,
}

func writeFixture(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func writeRelays(t *testing.T, root *tree.Dir) {
	t.Helper()
	require.NoError(t, root.Each(func(d *tree.Dir) error {
		src := []byte(fmt.Sprintf(relayStub, d.PackageName()))
		return os.WriteFile(d.File(tree.RelayFile), src, 0o644)
	}))
}

func analyzeFixture(t *testing.T, files map[string]string) (*Result, error) {
	t.Helper()
	t.Setenv("GOWORK", "off")

	dir := writeFixture(t, files)
	root, err := tree.Walk(filepath.Join(dir, "api"))
	require.NoError(t, err)
	writeRelays(t, root)

	mod, err := tree.FindModule(dir)
	require.NoError(t, err)
	return Analyze(context.Background(), root, Options{Module: mod})
}

func TestAnalyze(t *testing.T) {
	res, err := analyzeFixture(t, fixture)
	require.NoError(t, err)
	require.Len(t, res.Nodes, 3)

	root := res.Nodes[0]
	assert.Equal(t, "example.com/app/api", root.PkgPath)
	assert.True(t, root.HasController)
	require.NotNil(t, root.Hooks)
	assert.Equal(t, EventSpec{Present: true, Array: true}, root.Hooks.OnRequest)
	assert.Equal(t, EventSpec{Present: true, Array: true}, root.Hooks.PreHandler)
	assert.Nil(t, root.ControllerHooks)
	require.Len(t, root.Methods, 1)
	assert.False(t, root.Methods[0].HasQuery)

	users := res.Nodes[1]
	assert.Equal(t, "example.com/app/api/users", users.PkgPath)
	assert.Nil(t, users.Hooks)
	// ControllerHooks is a type here, not a provider.
	assert.Nil(t, users.ControllerHooks)
	require.Len(t, users.Methods, 3)

	get := users.Methods[0]
	assert.Equal(t, "GET", get.HTTP)
	assert.True(t, get.HasQuery)
	assert.True(t, get.QueryOptional)
	assert.Equal(t, []QueryField{
		{Name: "ids", Kind: routetree.KindInt, Array: true},
		{Name: "limit", Kind: routetree.KindInt, Optional: true},
		{Name: "debug", Kind: routetree.KindBool, Optional: true},
		{Name: "Name", Kind: routetree.KindString},
	}, get.QueryFields)
	assert.Empty(t, get.Schemas)

	post := users.Methods[1]
	assert.Equal(t, map[Binding]SchemaRef{
		BindBody:    {ImportPath: "example.com/app/schemas", Name: "UserInfo"},
		BindHeaders: {ImportPath: "example.com/app/schemas", Name: "Auth"},
	}, post.Schemas)

	put := users.Methods[2]
	assert.Equal(t, map[Binding]SchemaRef{
		BindBody: {ImportPath: "example.com/app/api/users", Name: "Local"},
	}, put.Schemas)

	param := res.Nodes[2]
	assert.Equal(t, "userId", param.PkgName)
	require.NotNil(t, param.Hooks)
	assert.Equal(t, EventSpec{Present: true}, param.Hooks.OnRequest)
	assert.False(t, param.Hooks.PreHandler.Present)
	require.Len(t, param.Methods, 1)
	assert.False(t, param.Methods[0].QueryOptional)
	assert.Equal(t, []QueryField{{Name: "Flag", Kind: routetree.KindBool}}, param.Methods[0].QueryFields)

	assert.Equal(t, []SchemaRef{
		{ImportPath: "example.com/app/api/users", Name: "Local"},
		{ImportPath: "example.com/app/schemas", Name: "Auth"},
		{ImportPath: "example.com/app/schemas", Name: "UserInfo"},
	}, res.Schemas)
}

func TestAnalyzeMissingController(t *testing.T) {
	files := map[string]string{
		"go.mod":   fixture["go.mod"],
		"rt/rt.go": rtPackage,
		"api/index.go": `package api

type Methods struct {
	Get struct{}
}
`,
	}
	_, err := analyzeFixture(t, files)
	assert.ErrorIs(t, err, ErrMissingController)
}

func TestAnalyzeIndexTypeError(t *testing.T) {
	files := map[string]string{
		"go.mod":   fixture["go.mod"],
		"rt/rt.go": rtPackage,
		"api/index.go": `package api

type Methods struct {
	Get struct {
		ResBody Missing
	}
}
`,
		"api/controller.go": "package api\n\nvar Controller = 1\n",
	}
	_, err := analyzeFixture(t, files)
	assert.ErrorContains(t, err, "Missing")
}

func TestCheckErrors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tests := []struct {
		name    string
		errs    []packages.Error
		wantErr string
	}{
		{
			name: "type error in controller",
			errs: []packages.Error{
				{Pos: "/app/api/users/controller.go:4:18", Msg: "undefined: DefineController", Kind: packages.TypeError},
			},
		},
		{
			name: "list error repeating tolerated type errors",
			errs: []packages.Error{
				{Pos: "/app/api/users/controller.go:4:18", Msg: "undefined: DefineController", Kind: packages.TypeError},
				{Msg: "# example.com/app/api/users\napi/users/controller.go:4:18: undefined: DefineController\napi/users/hooks.go:7:2: undefined: UseContext\n", Kind: packages.ListError},
			},
		},
		{
			name: "list error with continuation lines",
			errs: []packages.Error{
				{Msg: "# example.com/app/api/users\napi/users/zz_relay.go:12: cannot use x (variable of type int) as string value\n\tin argument to f", Kind: packages.ListError},
			},
		},
		{
			name: "type error in index",
			errs: []packages.Error{
				{Pos: "/app/api/users/index.go:5:11", Msg: "undefined: Missing", Kind: packages.TypeError},
			},
			wantErr: "undefined: Missing",
		},
		{
			name: "list error naming index",
			errs: []packages.Error{
				{Msg: "# example.com/app/api/users\napi/users/controller.go:4:18: undefined: DefineController\napi/users/index.go:5:11: undefined: Missing", Kind: packages.ListError},
			},
			wantErr: "index.go",
		},
		{
			name: "list error for another package",
			errs: []packages.Error{
				{Msg: "# example.com/app/schemas\nschemas/controller.go:3:1: syntax error", Kind: packages.ListError},
			},
			wantErr: "example.com/app/schemas",
		},
		{
			name: "list error without diagnostics",
			errs: []packages.Error{
				{Msg: "no required module provides package example.com/missing", Kind: packages.ListError},
			},
			wantErr: "no required module",
		},
		{
			name: "parse error in controller",
			errs: []packages.Error{
				{Pos: "/app/api/users/controller.go:3:1", Msg: "expected declaration", Kind: packages.ParseError},
			},
			wantErr: "expected declaration",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg := &packages.Package{PkgPath: "example.com/app/api/users", Errors: tt.errs}
			err := checkErrors(pkg, logger)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestAnalyzeNoMethods(t *testing.T) {
	files := map[string]string{
		"go.mod":         fixture["go.mod"],
		"rt/rt.go":       rtPackage,
		"api/hooks.go":   fixture["api/hooks.go"],
		"api/doc.go":     "package api\n",
		"api/a/doc.go":   "package a\n",
		"api/a/hooks.go": "package a\n\nvar Hooks = 3\n",
	}
	res, err := analyzeFixture(t, files)
	require.NoError(t, err)
	require.Len(t, res.Nodes, 2)
	assert.NotNil(t, res.Nodes[0].Hooks)
	assert.False(t, res.Nodes[0].HasController)
	assert.Empty(t, res.Nodes[0].Methods)
	// A Hooks variable without a Provide method is not a hook source.
	assert.Nil(t, res.Nodes[1].Hooks)
}

func TestSchemaBinding(t *testing.T) {
	tests := []struct {
		expr string
		pkg  string
		name string
		ok   bool
	}{
		{"routetree.Infer[schemas.UserInfo]", "schemas", "UserInfo", true},
		{"rt.Infer[ schemas . UserInfo ]", "schemas", "UserInfo", true},
		{"rt.Infer[Local]", "", "Local", true},
		{"Infer[Local]", "", "", false},
		{"schemas.UserInfo", "", "", false},
		{"rt.Infer[[]schemas.UserInfo]", "", "", false},
		{"rt.Infer[*Local]", "", "", false},
		{"rt.Validated[Local]", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			pkg, name, ok := SchemaBinding(tt.expr)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.pkg, pkg)
			assert.Equal(t, tt.name, name)
		})
	}
}
