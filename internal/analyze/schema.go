package analyze

import (
	"regexp"
	"strings"
	"unicode"
)

// Binding names the request part a schema validates.
type Binding string

const (
	BindQuery   Binding = "query"
	BindBody    Binding = "body"
	BindHeaders Binding = "headers"
)

// SchemaRef identifies a validator-tagged schema type.
type SchemaRef struct {
	ImportPath string
	Name       string
}

func (s SchemaRef) String() string {
	return s.ImportPath + "." + s.Name
}

var inferPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*\.Infer\[(?:([A-Za-z_][A-Za-z0-9_]*)\.)?([A-Za-z_][A-Za-z0-9_]*)\]$`)

// SchemaBinding reports whether a declared type reads as
// "<ident>.Infer[<pkg>.<Name>]" or "<ident>.Infer[<Name>]" and returns the
// package qualifier ("" when unqualified) and schema name.
//
// This is a textual match on the declaration: whitespace is ignored, but
// any other spelling of the same type, such as a local alias, is not
// recognised and the part is left unvalidated.
func SchemaBinding(typeExpr string) (pkg, name string, ok bool) {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, typeExpr)
	m := inferPattern.FindStringSubmatch(compact)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
