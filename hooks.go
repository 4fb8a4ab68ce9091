package routetree

import (
	"net/http"
)

// HookFunc is a request-scoped hook. It may read or mutate the request
// context through the relay's UseContext, respond early by writing to w,
// or abort the chain by returning an error.
type HookFunc func(w http.ResponseWriter, r *http.Request) error

// Hooks is the merged hook shape of one hook source.
//
// A directory's hooks.go and a controller's ControllerHooks may return any
// struct with OnRequest and PreHandler fields, each either a single function
// or a slice; the generated server normalises them into Hooks with [Flatten].
type Hooks struct {
	OnRequest  []HookFunc
	PreHandler []HookFunc
}

// Flatten converts hook functions of any named or unnamed hook signature to
// []HookFunc, dropping nil entries.
func Flatten[F ~func(http.ResponseWriter, *http.Request) error](fns ...F) []HookFunc {
	out := make([]HookFunc, 0, len(fns))
	for _, fn := range fns {
		h := HookFunc(fn)
		if h == nil {
			continue
		}
		out = append(out, h)
	}
	return out
}

// MergeHooks concatenates a cascading hook chain.
// hooks must be ordered root to leaf with controller hooks last; within the
// result every OnRequest hook precedes every PreHandler hook by construction.
func MergeHooks(hooks ...Hooks) Hooks {
	var merged Hooks
	for _, h := range hooks {
		merged.OnRequest = append(merged.OnRequest, h.OnRequest...)
		merged.PreHandler = append(merged.PreHandler, h.PreHandler...)
	}
	return merged
}

// runHooks executes hooks in order. It stops and reports done once a hook
// has written a response.
func runHooks(w *responseWriter, r *http.Request, hooks []HookFunc) (done bool, err error) {
	for _, h := range hooks {
		if err := h(w, r); err != nil {
			return false, err
		}
		if w.written {
			return true, nil
		}
	}
	return false, nil
}
