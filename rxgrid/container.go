package rxgrid

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/vk/rxgridgo/internal/graph"
	"github.com/vk/rxgridgo/internal/scheduler"
)

// Container owns one provider graph: the node registry, the dependency
// topology, and the scheduler loop that serializes every mutation. Separate
// containers are fully isolated; overrides configure a container at creation
// time instead of mutating any global state.
type Container struct {
	loop *scheduler.Loop
	log  *slog.Logger
	topo *graph.Topology

	nodes      map[string]*node
	tombstones map[string]struct{}

	overrides    map[string]*registration
	famOverrides map[string]func(arg any) func(context.Context, *Ref) (any, error)

	// tunings overlays HCL-loaded settings onto registration options,
	// keyed by provider name.
	defaultCache *CachePolicy
	tunings      map[string]nodeTuning

	closed bool
	seq    uint64

	// Per-operation propagation state, owned by the loop.
	buildStack []string
	dirty      map[string]struct{}
	rebuilt    map[string]struct{}
	flushing   bool

	builds     conc.WaitGroup
	baseCtx    context.Context
	baseCancel context.CancelFunc

	now func() time.Time
}

type nodeTuning struct {
	cache       *CachePolicy
	autoDispose *bool
}

// ContainerOption configures a container at creation time.
type ContainerOption func(*Container)

// WithLogger sets the container's logger. The default is slog.Default().
func WithLogger(l *slog.Logger) ContainerOption {
	return func(c *Container) { c.log = l }
}

// NewContainer creates an empty, isolated container.
func NewContainer(opts ...ContainerOption) *Container {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Container{
		loop:         scheduler.New(),
		log:          slog.Default(),
		topo:         graph.New(),
		nodes:        make(map[string]*node),
		tombstones:   make(map[string]struct{}),
		overrides:    make(map[string]*registration),
		famOverrides: make(map[string]func(arg any) func(context.Context, *Ref) (any, error)),
		tunings:      make(map[string]nodeTuning),
		dirty:        make(map[string]struct{}),
		baseCtx:      ctx,
		baseCancel:   cancel,
		now:          time.Now,
	}
	for _, apply := range opts {
		apply(c)
	}
	return c
}

// runOp executes op as one scheduler tick: exclusive ownership, then a flush
// of the dirty set, then the grace-window sweep of the advancing tick.
func (c *Container) runOp(op func()) {
	c.loop.Exclusive(func() {
		c.rebuilt = make(map[string]struct{})
		op()
		c.flush()
	})
}

// Tick advances the scheduler one tick without performing any operation,
// letting pending grace-window disposals come due.
func (c *Container) Tick() {
	c.loop.Tick()
}

// nodeFor returns the live node for reg, creating it lazily. It never builds.
func (c *Container) nodeFor(reg *registration) (*node, error) {
	key := reg.id.String()
	if _, dead := c.tombstones[key]; dead {
		return nil, &DisposedNodeAccessError{Key: key}
	}
	if n, ok := c.nodes[key]; ok {
		return n, nil
	}

	eff := c.effectiveRegistration(reg)
	c.seq++
	n := &node{
		id:       reg.id,
		key:      key,
		reg:      eff,
		opts:     c.effectiveOptions(eff),
		seq:      c.seq,
		phase:    phaseNotBuilt,
		deps:     make(map[string]*edge),
		watchers: make(map[int]*watcher),
	}
	c.nodes[key] = n
	c.topo.Add(key)
	c.log.Debug("provider node created", "provider", key, "kind", eff.kind)
	return n, nil
}

// effectiveRegistration applies container overrides: an exact-key override
// wins; otherwise a family override substitutes the instance's builder.
func (c *Container) effectiveRegistration(reg *registration) *registration {
	if ov, ok := c.overrides[reg.id.String()]; ok {
		return ov
	}
	if reg.famName != "" {
		if famBuild, ok := c.famOverrides[reg.famName]; ok {
			clone := *reg
			raw := famBuild(reg.arg)
			ready := reg.readyVal
			clone.kind = kindSync
			clone.buildSync = func(ctx context.Context, r *Ref) (any, error) {
				v, err := raw(ctx, r)
				if err != nil {
					return nil, err
				}
				if ready != nil {
					// The family is async-kind: substituted sync builders
					// still surface through its AsyncValue type.
					return ready(v), nil
				}
				return v, nil
			}
			return &clone
		}
	}
	return reg
}

// effectiveOptions overlays container tuning onto registration options.
func (c *Container) effectiveOptions(reg *registration) options {
	o := reg.opts
	if c.defaultCache != nil && o.cache == PolicyManual {
		o.cache = *c.defaultCache
	}
	if t, ok := c.tunings[reg.id.Name]; ok {
		if t.cache != nil {
			o.cache = *t.cache
		}
		if t.autoDispose != nil {
			o.autoDispose = *t.autoDispose
		}
	}
	return o
}

// mutableNode resolves and freshens the node for a direct state mutation.
func (c *Container) mutableNode(reg *registration) (*node, error) {
	if c.closed {
		return nil, ErrContainerClosed
	}
	n, err := c.nodeFor(reg)
	if err != nil {
		return nil, err
	}
	c.ensureFresh(n)
	return n, nil
}

// retainNode adds one subscription and cancels any pending grace sweep.
func (c *Container) retainNode(n *node) {
	n.refCount++
	n.disposeEpoch++
}

// releaseNode drops one subscription; the last release of an auto-dispose
// node schedules a grace-window sweep rather than tearing down immediately.
func (c *Container) releaseNode(n *node) {
	if n == nil {
		return
	}
	n.refCount--
	if n.refCount <= 0 && n.opts.autoDispose {
		c.scheduleDispose(n)
	}
}

// scheduleDispose arms the grace-window sweep. The node survives the rest of
// the current tick and the whole of the next one; any retain in between
// bumps the epoch and the sweep becomes a no-op.
func (c *Container) scheduleDispose(n *node) {
	n.disposeEpoch++
	epoch := n.disposeEpoch
	c.log.Debug("auto-dispose scheduled", "provider", n.key)
	c.loop.Defer(func() {
		if c.closed || n.disposeEpoch != epoch || n.refCount > 0 {
			return
		}
		if c.nodes[n.key] != n {
			return
		}
		c.log.Debug("auto-disposing provider", "provider", n.key)
		c.removeNode(n, false)
	})
}

// removeNode tears one node down: cleanup hooks, in-flight cancellation,
// edge release, and removal from store and topology. When tombstone is set,
// later access to the key fails with DisposedNodeAccessError.
func (c *Container) removeNode(n *node, tombstone bool) {
	c.runCleanups(n)
	c.cancelInflight(n)
	c.settleWaiters(n)
	for depKey := range n.deps {
		c.topo.Unlink(depKey, n.key)
		c.releaseNode(c.nodes[depKey])
	}
	n.deps = make(map[string]*edge)
	c.markDependentsDirty(n)
	c.topo.Remove(n.key)
	delete(c.nodes, n.key)
	if tombstone {
		c.tombstones[n.key] = struct{}{}
	}
}

func (c *Container) runCleanups(n *node) {
	hooks := n.cleanups
	n.cleanups = nil
	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
}

func (c *Container) cancelInflight(n *node) {
	if n.cancelBuild != nil {
		n.cancelBuild()
		n.cancelBuild = nil
	}
	n.inflight = false
}

// waiter registers a channel closed on the node's next settle (Ready or
// Error). The caller must pair it with a retain to keep the node alive.
func (c *Container) waiter(n *node) chan struct{} {
	ch := make(chan struct{})
	n.waiters = append(n.waiters, ch)
	return ch
}

func (c *Container) settleWaiters(n *node) {
	for _, ch := range n.waiters {
		close(ch)
	}
	n.waiters = nil
}

// Invalidate marks the provider's node for rebuild and transitively
// schedules its dependents, deduplicated per propagation pass. Watched nodes
// rebuild before Invalidate returns; unobserved ones rebuild on next read.
// Invalidating a never-built provider is a no-op.
func (c *Container) Invalidate(h Handle) error {
	var err error
	c.runOp(func() {
		if c.closed {
			err = ErrContainerClosed
			return
		}
		key := h.registration().id.String()
		if _, dead := c.tombstones[key]; dead {
			err = &DisposedNodeAccessError{Key: key}
			return
		}
		n, ok := c.nodes[key]
		if !ok {
			return
		}
		c.invalidateNode(n)
	})
	return err
}

func (c *Container) invalidateNode(n *node) {
	c.log.Debug("provider invalidated", "provider", n.key, "generation", n.generation)
	n.generation++
	n.stale = true
	n.selfInvalidated = true
	c.cancelInflight(n)
	c.dirty[n.key] = struct{}{}
	c.markDependentsDirty(n)
}

// DisposeProvider explicitly removes the provider's node, running cleanup
// hooks and cancelling in-flight builds. The key is tombstoned: any later
// operation on it fails with DisposedNodeAccessError.
func (c *Container) DisposeProvider(h Handle) error {
	var err error
	c.runOp(func() {
		if c.closed {
			err = ErrContainerClosed
			return
		}
		key := h.registration().id.String()
		if _, dead := c.tombstones[key]; dead {
			err = &DisposedNodeAccessError{Key: key}
			return
		}
		c.tombstones[key] = struct{}{}
		n, ok := c.nodes[key]
		if !ok {
			return
		}
		c.log.Debug("disposing provider", "provider", key)
		c.removeNode(n, true)
	})
	return err
}

// Close tears down the container: every live node's cleanup hooks run in
// reverse creation order, in-flight builds are cancelled, and the call waits
// for builder goroutines to drain or ctx to expire. All later operations
// fail with ErrContainerClosed.
func (c *Container) Close(ctx context.Context) error {
	c.loop.Exclusive(func() {
		if c.closed {
			return
		}
		c.closed = true
		live := make([]*node, 0, len(c.nodes))
		for _, n := range c.nodes {
			live = append(live, n)
		}
		sort.Slice(live, func(i, j int) bool { return live[i].seq > live[j].seq })
		for _, n := range live {
			c.runCleanups(n)
			c.cancelInflight(n)
			c.settleWaiters(n)
		}
		c.nodes = make(map[string]*node)
		c.topo = graph.New()
		c.dirty = make(map[string]struct{})
		c.baseCancel()
		c.log.Debug("container closed", "nodes", len(live))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.builds.Wait()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight builds: %w", ctx.Err())
	}
}
