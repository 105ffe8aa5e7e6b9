package rxgrid

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/rxgridgo/internal/nodeid"
)

// FamilyBuildFunc computes one family instance's value from its argument.
type FamilyBuildFunc[A, T any] func(ctx context.Context, r *Ref, arg A) (T, error)

// Family is a parameterized provider: each distinct argument keys an
// independent instance with its own node, cache entry, and watcher set.
// Argument identity is structural; two deeply equal arguments resolve to the
// same instance even across call sites. The default canonicalization rejects
// arguments it cannot compare structurally (functions, channels, untagged
// structs); WithKeyFunc substitutes a caller-supplied key.
type Family[A, T any] struct {
	name  string
	build FamilyBuildFunc[A, T]
	opts  options

	mu        sync.Mutex
	instances map[string]*Provider[T]
}

// NewFamily registers a synchronous provider family.
func NewFamily[A, T any](name string, build FamilyBuildFunc[A, T], opts ...Option) *Family[A, T] {
	if name == "" {
		panic("rxgrid: family name must not be empty")
	}
	if build == nil {
		panic(fmt.Sprintf("rxgrid: family %q registered without a builder", name))
	}
	return &Family[A, T]{
		name:      name,
		build:     build,
		opts:      applyOptions(opts),
		instances: make(map[string]*Provider[T]),
	}
}

// Name returns the family's registration name.
func (f *Family[A, T]) Name() string { return f.name }

// Of resolves the instance handle for arg. Handles are cached per canonical
// argument key, so repeated calls with equal arguments return the same
// provider. A non-canonicalizable argument yields InvalidFamilyArgumentError.
func (f *Family[A, T]) Of(arg A) (*Provider[T], error) {
	key, err := familyArgKey(f.name, f.opts, arg)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.instances[key]; ok {
		return p, nil
	}
	build := f.build
	a := arg
	reg := &registration{
		id:      nodeid.Family(f.name, key),
		kind:    kindSync,
		opts:    f.opts,
		famName: f.name,
		arg:     a,
		buildSync: func(ctx context.Context, r *Ref) (any, error) {
			v, err := build(ctx, r, a)
			if err != nil {
				return nil, err
			}
			return v, nil
		},
	}
	p := &Provider[T]{reg: reg}
	f.instances[key] = p
	return p, nil
}

// MustOf is Of, panicking on a bad argument. Intended for arguments known
// canonicalizable at the call site.
func (f *Family[A, T]) MustOf(arg A) *Provider[T] {
	p, err := f.Of(arg)
	if err != nil {
		panic(err)
	}
	return p
}

// AsyncFamily is the asynchronous counterpart of Family: each instance is an
// AsyncProvider keyed by its argument.
type AsyncFamily[A, T any] struct {
	name  string
	build FamilyBuildFunc[A, T]
	opts  options

	mu        sync.Mutex
	instances map[string]*AsyncProvider[T]
}

// NewAsyncFamily registers an asynchronous provider family.
func NewAsyncFamily[A, T any](name string, build FamilyBuildFunc[A, T], opts ...Option) *AsyncFamily[A, T] {
	if name == "" {
		panic("rxgrid: family name must not be empty")
	}
	if build == nil {
		panic(fmt.Sprintf("rxgrid: family %q registered without a builder", name))
	}
	return &AsyncFamily[A, T]{
		name:      name,
		build:     build,
		opts:      applyOptions(opts),
		instances: make(map[string]*AsyncProvider[T]),
	}
}

// Name returns the family's registration name.
func (f *AsyncFamily[A, T]) Name() string { return f.name }

// Of resolves the async instance handle for arg.
func (f *AsyncFamily[A, T]) Of(arg A) (*AsyncProvider[T], error) {
	key, err := familyArgKey(f.name, f.opts, arg)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.instances[key]; ok {
		return p, nil
	}
	build := f.build
	a := arg
	reg := &registration{
		id:      nodeid.Family(f.name, key),
		kind:    kindAsync,
		opts:    f.opts,
		famName: f.name,
		arg:     a,
		buildAsync: func(ctx context.Context, r *Ref) (any, error) {
			v, err := build(ctx, r, a)
			if err != nil {
				return nil, err
			}
			return v, nil
		},
	}
	attachAsyncValues[T](reg)
	p := &AsyncProvider[T]{Provider: &Provider[AsyncValue[T]]{reg: reg}}
	f.instances[key] = p
	return p, nil
}

// MustOf is Of, panicking on a bad argument.
func (f *AsyncFamily[A, T]) MustOf(arg A) *AsyncProvider[T] {
	p, err := f.Of(arg)
	if err != nil {
		panic(err)
	}
	return p
}

func familyArgKey(family string, opts options, arg any) (string, error) {
	keyFn := opts.keyFn
	if keyFn == nil {
		keyFn = nodeid.Canonical
	}
	key, err := keyFn(arg)
	if err != nil {
		return "", &InvalidFamilyArgumentError{Family: family, Err: err}
	}
	return key, nil
}
