package rxgrid

import (
	"context"
	"fmt"

	"github.com/vk/rxgridgo/internal/nodeid"
)

// StreamFunc is the run function of a stream provider. It emits values for
// as long as it runs; each emit commits one Ready value. Returning nil ends
// the stream with its last value retained; returning an error moves the node
// to Error. The context is cancelled on invalidation and disposal.
type StreamFunc[T any] func(ctx context.Context, r *Ref, emit func(T)) error

// StreamProvider is a provider fed by a long-running source: a subscription,
// a poll loop, a socket. Observers see the same AsyncValue surface as
// AsyncProvider, updated once per emission.
type StreamProvider[T any] struct {
	*Provider[AsyncValue[T]]
}

// NewStream registers a stream provider. The run function starts on first
// read and keeps running until it returns or the node is invalidated or
// disposed; emissions from a superseded run are discarded.
func NewStream[T any](name string, run StreamFunc[T], opts ...Option) *StreamProvider[T] {
	if name == "" {
		panic("rxgrid: provider name must not be empty")
	}
	if run == nil {
		panic(fmt.Sprintf("rxgrid: provider %q registered without a run function", name))
	}
	reg := &registration{
		id:   nodeid.New(name),
		kind: kindStream,
		opts: applyOptions(opts),
		runStream: func(ctx context.Context, r *Ref, emit func(any)) error {
			return run(ctx, r, func(v T) { emit(v) })
		},
	}
	attachAsyncValues[T](reg)
	return &StreamProvider[T]{Provider: &Provider[AsyncValue[T]]{reg: reg}}
}

// Await blocks until the stream produces its first value or fails.
func (p *StreamProvider[T]) Await(ctx context.Context, c *Container) (T, error) {
	return awaitValue(ctx, c, p.Provider)
}
