package routetree

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type namedHook func(http.ResponseWriter, *http.Request) error

func TestFlatten(t *testing.T) {
	noop := func(http.ResponseWriter, *http.Request) error { return nil }

	if got := Flatten(noop); len(got) != 1 {
		t.Errorf("expected one hook, got %d", len(got))
	}
	if got := Flatten([]namedHook{namedHook(noop), nil, namedHook(noop)}...); len(got) != 2 {
		t.Errorf("expected nil hooks to be dropped, got %d", len(got))
	}
	if got := Flatten[HookFunc](); len(got) != 0 {
		t.Errorf("expected no hooks, got %d", len(got))
	}
}

func TestMergeHooks(t *testing.T) {
	a := func(http.ResponseWriter, *http.Request) error { return nil }
	merged := MergeHooks(
		Hooks{OnRequest: Flatten(a), PreHandler: Flatten(a, a)},
		Hooks{},
		Hooks{OnRequest: Flatten(a)},
	)
	if len(merged.OnRequest) != 2 || len(merged.PreHandler) != 2 {
		t.Errorf("unexpected merge result: %d onRequest, %d preHandler", len(merged.OnRequest), len(merged.PreHandler))
	}
}

func TestRunHooks(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	boom := errors.New("boom")

	var ran []int
	hook := func(i int, err error) HookFunc {
		return func(http.ResponseWriter, *http.Request) error {
			ran = append(ran, i)
			return err
		}
	}

	w := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	done, err := runHooks(w, r, []HookFunc{hook(1, nil), hook(2, boom), hook(3, nil)})
	if done || !errors.Is(err, boom) {
		t.Errorf("expected boom, got done=%v err=%v", done, err)
	}
	if len(ran) != 2 {
		t.Errorf("expected the chain to stop at the failing hook, ran %v", ran)
	}

	done, err = runHooks(w, r, nil)
	if done || err != nil {
		t.Errorf("expected empty chain to pass, got done=%v err=%v", done, err)
	}
}
