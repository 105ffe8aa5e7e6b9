package rxgrid

import (
	"context"
	"fmt"

	"github.com/vk/rxgridgo/internal/nodeid"
)

// AsyncProvider is a provider whose builder runs on its own goroutine. Its
// observable value is an AsyncValue: reads never block, the node moves
// through Loading into Ready or Error, and every read during an in-flight
// build coalesces onto it.
type AsyncProvider[T any] struct {
	*Provider[AsyncValue[T]]
}

// NewAsync registers an asynchronous provider. The builder receives a
// context cancelled when the build is superseded by invalidation or
// disposal; a superseded build's result is discarded, never committed.
func NewAsync[T any](name string, build BuildFunc[T], opts ...Option) *AsyncProvider[T] {
	if name == "" {
		panic("rxgrid: provider name must not be empty")
	}
	if build == nil {
		panic(fmt.Sprintf("rxgrid: provider %q registered without a builder", name))
	}
	reg := &registration{
		id:         nodeid.New(name),
		kind:       kindAsync,
		opts:       applyOptions(opts),
		buildAsync: eraseBuild(build),
	}
	attachAsyncValues[T](reg)
	return &AsyncProvider[T]{Provider: &Provider[AsyncValue[T]]{reg: reg}}
}

// Await blocks until the provider settles and returns its Ready value or its
// build error. A Loading node is awaited through its current build; if the
// node is invalidated meanwhile, Await follows the replacement build.
func (p *AsyncProvider[T]) Await(ctx context.Context, c *Container) (T, error) {
	return awaitValue(ctx, c, p.Provider)
}

// attachAsyncValues wires the AsyncValue constructors onto a kind-erased
// registration. The prev/hasPrev pair carries the retained Ready value under
// WithKeepPrevious.
func attachAsyncValues[T any](reg *registration) {
	reg.loadingVal = func(prev any, hasPrev bool) any {
		v := AsyncValue[T]{State: AsyncLoading}
		if hasPrev {
			v.Value, v.HasValue = prev.(T), true
		}
		return v
	}
	reg.readyVal = func(raw any) any {
		return AsyncValue[T]{State: AsyncReady, Value: raw.(T), HasValue: true}
	}
	reg.errorVal = func(err error, prev any, hasPrev bool) any {
		v := AsyncValue[T]{State: AsyncError, Err: err}
		if hasPrev {
			v.Value, v.HasValue = prev.(T), true
		}
		return v
	}
}

// awaitValue drives the await loop: read, and if still Loading, park on a
// settle channel. The waiter holds a subscription so auto-dispose cannot
// reclaim the node mid-await.
func awaitValue[T any](ctx context.Context, c *Container, p *Provider[AsyncValue[T]]) (T, error) {
	var zero T
	for {
		var (
			cur AsyncValue[T]
			ch  chan struct{}
			n   *node
			err error
		)
		c.runOp(func() {
			var raw any
			raw, err = c.acquire(p.reg, nil, nil)
			if err != nil {
				return
			}
			cur = raw.(AsyncValue[T])
			if cur.IsLoading() {
				n = c.nodes[p.reg.id.String()]
				ch = c.waiter(n)
				c.retainNode(n)
			}
		})
		if err != nil {
			return zero, err
		}
		if ch == nil {
			if cur.IsError() {
				return zero, cur.Err
			}
			return cur.Value, nil
		}
		select {
		case <-ctx.Done():
			c.runOp(func() { c.releaseNode(n) })
			return zero, ctx.Err()
		case <-ch:
			c.runOp(func() { c.releaseNode(n) })
		}
	}
}
