package relay

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/broady/routetree/internal/tree"
)

const usersIndex = `package users

import (
	"time"

	"github.com/broady/routetree"
	"example.com/app/schemas"
	yaml "gopkg.in/yaml.v3"
)

type postMethod struct {
	ReqBody routetree.Infer[schemas.UserInfo]
	ResBody schemas.UserInfo
}

type Methods struct {
	Get struct {
		Query *struct {
			Limit *int   ` + "`query:\"limit\"`" + `
			Tags  []string
		}
		ResBody []schemas.UserInfo
	}
	Post postMethod
	Delete struct {
		ReqHeaders struct {
			Token string ` + "`header:\"X-Api-Key\"`" + `
		}
	}
}

var _ = time.Now
var _ yaml.Node
`

func TestParseContract(t *testing.T) {
	c, err := parseContract("index.go", []byte(usersIndex))
	require.NoError(t, err)

	assert.Equal(t, "users", c.Package)
	require.Len(t, c.Methods, 3)

	get := c.Methods[0]
	assert.Equal(t, "Get", get.Field)
	assert.Equal(t, "GET", get.HTTP)
	assert.True(t, get.QueryOptional)
	assert.True(t, strings.HasPrefix(get.Query, "struct {"), get.Query)
	assert.Contains(t, squash(get.Query), "Limit *int")
	assert.Equal(t, "[]schemas.UserInfo", get.ResBody)
	assert.Empty(t, get.Body)

	post := c.Methods[1]
	assert.Equal(t, "POST", post.HTTP)
	assert.Equal(t, "routetree.Infer[schemas.UserInfo]", post.Body)
	assert.Equal(t, "schemas.UserInfo", post.ResBody)

	del := c.Methods[2]
	assert.Equal(t, "DELETE", del.HTTP)
	assert.Contains(t, del.Headers, `header:"X-Api-Key"`)

	// Only imports referenced by method parts are kept.
	assert.Equal(t, []Import{
		{Path: "example.com/app/schemas"},
		{Path: "github.com/broady/routetree"},
	}, c.Imports)
}

func TestParseContractErrors(t *testing.T) {
	_, err := parseContract("index.go", []byte("package a\n\ntype Methods struct { Fetch struct{} }\n"))
	assert.ErrorContains(t, err, "not an HTTP method")

	_, err = parseContract("index.go", []byte("package a\n\ntype Methods struct { Get int }\n"))
	assert.ErrorContains(t, err, "must be a struct")

	_, err = parseContract("index.go", []byte("package a\n\ntype Methods int\n"))
	assert.Error(t, err)

	c, err := parseContract("index.go", []byte("package a\n\ntype Other struct{}\n"))
	require.NoError(t, err)
	assert.Empty(t, c.Methods)
}

func TestParseContractMissingFile(t *testing.T) {
	c, err := ParseContract(filepath.Join(t.TempDir(), tree.IndexFile))
	require.NoError(t, err)
	assert.Empty(t, c.Methods)
}

func TestDefaultImportName(t *testing.T) {
	tests := map[string]string{
		"net/http":                             "http",
		"github.com/go-playground/validator/v10": "validator",
		"gopkg.in/yaml.v3":                     "yaml",
		"github.com/mattn/go-isatty":           "isatty",
		"github.com/broady/routetree":          "routetree",
		"example.com/my-pkg":                   "my_pkg",
	}
	for in, want := range tests {
		assert.Equal(t, want, DefaultImportName(in), in)
	}
}

var spaces = regexp.MustCompile(`[ \t]+`)

// squash collapses runs of blanks so assertions ignore gofmt alignment.
func squash(s string) string {
	return spaces.ReplaceAllString(s, " ")
}

func mustParse(t *testing.T, src []byte) {
	t.Helper()
	_, err := parser.ParseFile(token.NewFileSet(), "zz_relay.go", src, parser.AllErrors)
	require.NoError(t, err, string(src))
}

func TestBuild(t *testing.T) {
	c, err := parseContract("index.go", []byte(usersIndex))
	require.NoError(t, err)

	out, err := Build(Input{
		Package: "users",
		Params:  []tree.Param{{Name: "userId", Type: "int"}, {Name: "slug", Type: "string"}},
		Contributions: []Contribution{
			{ImportPath: "example.com/app/api", TypeName: AdditionalContext},
			{TypeName: AdditionalContext},
			{TypeName: ControllerContext},
		},
		Contract: c,
	})
	require.NoError(t, err)
	mustParse(t, out)
	src := squash(string(out))

	for _, want := range []string{
		"// Code generated by routetree. DO NOT EDIT.",
		`rtctx0 "example.com/app/api"`,
		`"example.com/app/schemas"`,
		"type additionalContext0 = rtctx0.AdditionalContext",
		"type additionalContext1 = AdditionalContext",
		"type additionalContext2 = ControllerContext",
		"*additionalContext0",
		"UserId int",
		"Slug   string",
		`ctx.Params.UserId = routetree.Param[int](r, "userId")`,
		"additionalContext1: routetree.Contribution[additionalContext1](st),",
		"GetResponse = routetree.Response[GetResBody]",
		"Query *GetQuery",
		"PostBody    = routetree.Infer[schemas.UserInfo]",
		"Body    PostBody",
		"DeleteResBody = any",
		"Headers DeleteHeaders",
		"Query: routetree.Pointer[GetQuery](st.Query),",
		"Body: routetree.Target[PostBody],",
		"Get    func(req *GetRequest) (*GetResponse, error)",
		"func DefineControllerWith[D any]",
	} {
		assert.Contains(t, src, squash(want))
	}
	// Imports unused by the relay are not copied.
	assert.NotContains(t, src, "gopkg.in/yaml.v3")
}

func TestBuildDegenerate(t *testing.T) {
	out, err := Build(Input{Package: "api"})
	require.NoError(t, err)
	mustParse(t, out)
	src := string(out)

	assert.Contains(t, src, "type CurrentContext struct{}")
	assert.Contains(t, src, "ctx := &CurrentContext{}")
	assert.NotContains(t, src, "Params")
	assert.NotContains(t, src, "additionalContext")
	assert.Contains(t, src, "type ControllerMethods struct{}")
}

func TestBuildDeterministic(t *testing.T) {
	c, err := parseContract("index.go", []byte(usersIndex))
	require.NoError(t, err)
	in := Input{
		Package:       "users",
		Contributions: []Contribution{{ImportPath: "example.com/app/api", TypeName: AdditionalContext}},
		Contract:      c,
	}
	a, err := Build(in)
	require.NoError(t, err)
	b, err := Build(in)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBuildSecondImportName(t *testing.T) {
	out, err := Build(Input{
		Package: "a",
		Contract: &Contract{
			Methods: []Method{{Field: "Post", HTTP: "POST", Body: "rt.Infer[int]"}},
			Imports: []Import{{Name: "rt", Path: RuntimePath}, {Name: "http", Path: "net/http"}},
		},
	})
	require.NoError(t, err)
	src := string(out)
	assert.Contains(t, src, `rt "github.com/broady/routetree"`)
	assert.Equal(t, 1, strings.Count(src, `"net/http"`))
}

func TestDeclaresType(t *testing.T) {
	dir := t.TempDir()
	hooks := filepath.Join(dir, tree.HooksFile)
	require.NoError(t, os.WriteFile(hooks, []byte("package a\n\ntype AdditionalContext struct{ User string }\n"), 0o644))

	assert.True(t, DeclaresType(hooks, AdditionalContext))
	assert.False(t, DeclaresType(hooks, ControllerContext))
	assert.False(t, DeclaresType(filepath.Join(dir, "missing.go"), AdditionalContext))
}
