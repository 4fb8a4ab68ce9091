package routetree

import (
	"testing"
)

type greeterDeps struct {
	Greeting string
}

func TestPlainProvide(t *testing.T) {
	mux := NewRouter()
	var seen Router
	p := Plain[string](func(router Router) string {
		seen = router
		return "ok"
	})
	if got := p.Provide(mux); got != "ok" {
		t.Errorf("expected ok, got %q", got)
	}
	if seen != mux {
		t.Error("expected the router to be passed to the factory")
	}
}

func TestInjectable(t *testing.T) {
	base := Depend(greeterDeps{Greeting: "hello"}, func(d greeterDeps, _ Router) string {
		return d.Greeting
	})

	var p Provider[string] = base
	if got := p.Provide(nil); got != "hello" {
		t.Errorf("expected hello, got %q", got)
	}

	injected := base.Inject(greeterDeps{Greeting: "hi"})
	if got := injected.Provide(nil); got != "hi" {
		t.Errorf("expected hi, got %q", got)
	}
	if base.Deps().Greeting != "hello" {
		t.Error("Inject must not modify the original")
	}

	overridden := base.Override(func(d *greeterDeps) {
		d.Greeting += " world"
	})
	if got := overridden.Provide(nil); got != "hello world" {
		t.Errorf("expected hello world, got %q", got)
	}
	if base.Deps().Greeting != "hello" {
		t.Error("Override must not modify the original")
	}
}
