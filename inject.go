package routetree

// Provider yields a hook set or controller once the router is known.
//
// It has exactly two implementations, forming a closed variant:
// [Plain] wraps a bare factory and [*Injectable] carries default
// dependencies that tests may replace. The generated server resolves every
// provider once, before any route is registered.
type Provider[T any] interface {
	Provide(router Router) T
}

// Plain is a factory without dependencies.
type Plain[T any] func(router Router) T

// Provide calls the factory.
func (p Plain[T]) Provide(router Router) T {
	return p(router)
}

// Injectable is a factory with default dependencies.
type Injectable[D, T any] struct {
	deps    D
	factory func(deps D, router Router) T
}

// Depend creates an Injectable from default dependencies and a factory.
func Depend[D, T any](deps D, factory func(deps D, router Router) T) *Injectable[D, T] {
	return &Injectable[D, T]{
		deps:    deps,
		factory: factory,
	}
}

// Deps returns the dependencies the factory will receive.
func (i *Injectable[D, T]) Deps() D {
	return i.deps
}

// Inject returns a copy of i that uses deps instead of the defaults.
func (i *Injectable[D, T]) Inject(deps D) *Injectable[D, T] {
	return &Injectable[D, T]{
		deps:    deps,
		factory: i.factory,
	}
}

// Override returns a copy of i whose dependencies are the defaults modified by fn.
func (i *Injectable[D, T]) Override(fn func(deps *D)) *Injectable[D, T] {
	deps := i.deps
	fn(&deps)
	return i.Inject(deps)
}

// Provide calls the factory with the current dependencies.
func (i *Injectable[D, T]) Provide(router Router) T {
	return i.factory(i.deps, router)
}
