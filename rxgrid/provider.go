package rxgrid

import (
	"context"
	"fmt"

	"github.com/vk/rxgridgo/internal/nodeid"
)

// nodeKind distinguishes the closed set of node kinds. Dispatch over it is
// exhaustive; there is no subclassing.
type nodeKind int

const (
	kindSync nodeKind = iota
	kindAsync
	kindStream
)

// BuildFunc computes a provider's value. It may read other providers through
// r, which records dependency edges for invalidation propagation.
type BuildFunc[T any] func(ctx context.Context, r *Ref) (T, error)

// registration is the kind-erased description of a provider: identity,
// options, and builder hooks. Handles are self-describing; there is no
// global mutable registry, and containers create nodes from registrations
// lazily.
type registration struct {
	id   nodeid.ID
	kind nodeKind
	opts options

	// famName and arg are set for family instances; famName keys container
	// family overrides and arg is the raw argument for substituted builders.
	famName string
	arg     any

	buildSync  func(ctx context.Context, r *Ref) (any, error)
	buildAsync func(ctx context.Context, r *Ref) (any, error)
	runStream  func(ctx context.Context, r *Ref, emit func(any)) error

	// AsyncValue constructors, nil for sync kind. They exist because the
	// container is kind-erased but AsyncValue is generic.
	loadingVal func(prev any, hasPrev bool) any
	readyVal   func(v any) any
	errorVal   func(err error, prev any, hasPrev bool) any
}

// Handle is the kind-erased view of a provider accepted by container-level
// operations such as Invalidate and DisposeProvider.
type Handle interface {
	registration() *registration
}

// Provider is a handle to a single reactive computation unit. The zero value
// is not usable; construct handles with New, NewState, NewAsync, NewStream,
// or a family's Of.
type Provider[T any] struct {
	reg *registration
}

// New registers a synchronous provider. The builder runs lazily on first
// read and must not block: it executes on the container's owning execution
// context. Blocking work belongs in NewAsync.
func New[T any](name string, build BuildFunc[T], opts ...Option) *Provider[T] {
	if name == "" {
		panic("rxgrid: provider name must not be empty")
	}
	if build == nil {
		panic(fmt.Sprintf("rxgrid: provider %q registered without a builder", name))
	}
	reg := &registration{
		id:        nodeid.New(name),
		kind:      kindSync,
		opts:      applyOptions(opts),
		buildSync: eraseBuild(build),
	}
	return &Provider[T]{reg: reg}
}

func (p *Provider[T]) registration() *registration { return p.reg }

// Name returns the registration name of the provider.
func (p *Provider[T]) Name() string { return p.reg.id.Name }

// Key returns the canonical node key, including the family argument key for
// family instances.
func (p *Provider[T]) Key() string { return p.reg.id.String() }

// Read returns the provider's current value, building it first if the node
// is absent, invalidated, or expired. No subscription is created.
func (p *Provider[T]) Read(c *Container) (T, error) {
	var (
		raw any
		err error
	)
	c.runOp(func() {
		raw, err = c.acquire(p.reg, nil, nil)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return raw.(T), nil
}

// Use reads the provider from inside another provider's builder, recording a
// dependency edge: when this provider's value changes, the dependent is
// scheduled for rebuild.
func (p *Provider[T]) Use(r *Ref) (T, error) {
	raw, err := r.depend(p.reg, nil)
	if err != nil {
		var zero T
		return zero, err
	}
	return raw.(T), nil
}

// eraseBuild adapts a typed builder to the kind-erased registration hook.
func eraseBuild[T any](build BuildFunc[T]) func(ctx context.Context, r *Ref) (any, error) {
	return func(ctx context.Context, r *Ref) (any, error) {
		v, err := build(ctx, r)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

// StateProvider is a synchronous provider whose value is mutated directly by
// its own logic via Set and Update — the mutation entry point of the graph.
type StateProvider[T any] struct {
	*Provider[T]
}

// NewState registers a state provider seeded with initial. Each Set or
// Update commits one state transition and produces exactly one notification
// per watcher; mutations are never batched.
func NewState[T any](name string, initial T, opts ...Option) *StateProvider[T] {
	p := New(name, func(ctx context.Context, r *Ref) (T, error) {
		return initial, nil
	}, opts...)
	return &StateProvider[T]{Provider: p}
}

// Set replaces the current value and notifies watchers and dependents.
func (s *StateProvider[T]) Set(c *Container, v T) error {
	var err error
	c.runOp(func() {
		var n *node
		n, err = c.mutableNode(s.reg)
		if err != nil {
			return
		}
		n.generation++
		c.commitValue(n, v)
	})
	return err
}

// Update applies fn to the current value and commits the result, returning
// it. If the node has never been built, the initial value is built first.
func (s *StateProvider[T]) Update(c *Container, fn func(T) T) (T, error) {
	var (
		out T
		err error
	)
	c.runOp(func() {
		var n *node
		n, err = c.mutableNode(s.reg)
		if err != nil {
			return
		}
		if n.phase == phaseError {
			err = n.err
			return
		}
		out = fn(n.value.(T))
		n.generation++
		c.commitValue(n, out)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
