package routetree

import (
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
)

// Infer marks a contract field as validated by schema T.
//
//	type Methods struct {
//		Post struct {
//			ReqBody routetree.Infer[schemas.UserInfo]
//		}
//	}
//
// It is an alias, so the field's type is exactly T; the generator reads the
// marker from the declaration and wires [SchemaOf] for T.
type Infer[T any] = T

// Schema validates a decoded request part.
type Schema interface {
	Parse(v *validator.Validate, value any) error
}

// Schemas is the schema bundle of one route method.
type Schemas struct {
	Query   Schema
	Body    Schema
	Headers Schema
}

// SchemaOf returns a Schema validating values of type T with their
// `validate` struct tags.
func SchemaOf[T any]() Schema {
	return structSchema[T]{}
}

type structSchema[T any] struct{}

func (structSchema[T]) Parse(v *validator.Validate, value any) error {
	var target any
	switch x := value.(type) {
	case *T:
		target = x
	case T:
		target = &x
	default:
		return fmt.Errorf("routetree: schema for %s cannot parse %T", reflect.TypeFor[T](), value)
	}
	switch reflect.TypeFor[T]().Kind() {
	case reflect.Struct:
		return v.Struct(target)
	case reflect.Slice, reflect.Array:
		return v.Var(reflect.ValueOf(target).Elem().Interface(), "dive")
	default:
		return nil
	}
}

// newDecoder returns a gorilla/schema decoder keyed by tag.
func newDecoder(tag string) *schema.Decoder {
	d := schema.NewDecoder()
	d.SetAliasTag(tag)
	d.IgnoreUnknownKeys(true)
	return d
}

// Target allocates a decode target for a request part.
// Relay files pass instantiations such as Target[GetQuery] in [Endpoint].
func Target[T any]() any {
	return new(T)
}
