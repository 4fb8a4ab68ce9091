package routetree

import (
	"context"
	"net/http"
	"reflect"

	"github.com/go-chi/chi/v5"
)

type contextKey struct {
	name string
}

var stateKey = &contextKey{"state"}

// State is the per-request context record.
//
// The adapter attaches it before the first hook runs and fills it in order:
// casted route parameters, the decoded query, headers and body. Hooks reach
// it through the relay's UseContext accessor and may attach their own
// context contributions. A State never outlives its request.
type State struct {
	Params  map[string]any
	Query   any
	Headers any
	Body    any

	contributions map[reflect.Type]any
}

func newState(params map[string]any) *State {
	return &State{
		Params:        params,
		contributions: make(map[reflect.Type]any),
	}
}

// StateOf returns the State attached to r, or nil outside the adapter.
func StateOf(r *http.Request) *State {
	if r == nil {
		return nil
	}
	if st, ok := r.Context().Value(stateKey).(*State); ok {
		return st
	}
	return nil
}

// WithState returns a shallow copy of r carrying st.
// It is exported for tests that call hooks or controllers directly.
func WithState(r *http.Request, st *State) *http.Request {
	if st.contributions == nil {
		st.contributions = make(map[reflect.Type]any)
	}
	return r.WithContext(context.WithValue(r.Context(), stateKey, st))
}

// Contribution returns the request's instance of the context contribution T,
// allocating it on first use. Every relay view of the same request shares it,
// so a field set by an ancestor hook is visible to descendant hooks and the
// handler. A nil st yields a fresh, unshared value.
func Contribution[T any](st *State) *T {
	if st == nil {
		return new(T)
	}
	key := reflect.TypeFor[T]()
	if v, ok := st.contributions[key].(*T); ok {
		return v
	}
	v := new(T)
	st.contributions[key] = v
	return v
}

// Param returns the route parameter name as T.
// Integer parameters come from the casted State; string parameters fall back
// to the raw path value.
func Param[T any](r *http.Request, name string) T {
	if st := StateOf(r); st != nil {
		if v, ok := st.Params[name].(T); ok {
			return v
		}
	}
	var zero T
	if v, ok := any(pathParam(r, name)).(T); ok {
		return v
	}
	return zero
}

// pathParam reads a raw route parameter from the request's path values,
// then from chi's route context for routers that do not set them.
func pathParam(r *http.Request, name string) string {
	if v := r.PathValue(name); v != "" {
		return v
	}
	return chi.URLParam(r, name)
}

// Value dereferences a decoded target produced by [Target].
func Value[T any](v any) T {
	if p, ok := v.(*T); ok && p != nil {
		return *p
	}
	var zero T
	return zero
}

// Pointer returns a decoded target produced by [Target], or nil when the
// part was absent.
func Pointer[T any](v any) *T {
	p, _ := v.(*T)
	return p
}
