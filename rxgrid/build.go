package rxgrid

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sort"

	"github.com/sourcegraph/conc/panics"

	"github.com/vk/rxgridgo/internal/ctxlog"
)

// Ref is the view a builder gets of its own node: the only channel through
// which builders may touch the graph. Reads through it record dependency
// edges; everything else about the container stays out of reach.
type Ref struct {
	c    *Container
	node *node
	// gen pins the build this Ref belongs to. Once the node moves on, the
	// Ref is detached: reads stop recording edges and cleanups fire eagerly.
	gen uint64
	// inline is set for sync builds, which already run on the loop. Async
	// and stream builders run on their own goroutine and re-enter per read.
	inline bool
	// reads collects this build's edges; on commit it replaces node.deps.
	reads map[string]*edge
	// prev is the edge set of the node's previous build. Dependencies present
	// in both keep their subscription instead of being retained twice.
	prev map[string]*edge
}

// depend resolves a dependency read, recording the edge.
func (r *Ref) depend(reg *registration, sel func(any) any) (any, error) {
	if r.inline {
		return r.c.acquire(reg, r, sel)
	}
	var (
		v   any
		err error
	)
	r.c.runOp(func() {
		v, err = r.c.acquire(reg, r, sel)
	})
	return v, err
}

// OnDispose registers a cleanup hook for the current build. Hooks run in
// reverse registration order before the next rebuild and on disposal. A hook
// registered by a build that has already been superseded runs immediately.
func (r *Ref) OnDispose(fn func()) {
	if fn == nil {
		return
	}
	if r.inline {
		r.node.cleanups = append(r.node.cleanups, fn)
		return
	}
	var stale bool
	r.c.runOp(func() {
		if r.gen != r.node.generation || r.c.nodes[r.node.key] != r.node {
			stale = true
			return
		}
		r.node.cleanups = append(r.node.cleanups, fn)
	})
	if stale {
		fn()
	}
}

// UseSelect reads p through a projection, bounding invalidation: the
// dependent is only rebuilt when the projected value changes under deep
// equality, not on every change to p.
func UseSelect[T, S any](r *Ref, p *Provider[T], project func(T) S) (S, error) {
	raw, err := r.depend(p.reg, func(v any) any { return project(v.(T)) })
	if err != nil {
		var zero S
		return zero, err
	}
	return project(raw.(T)), nil
}

// acquire resolves a node to its current value, building or revalidating as
// needed. When r is non-nil the read came from a builder and records an edge.
func (c *Container) acquire(reg *registration, r *Ref, sel func(any) any) (any, error) {
	if c.closed {
		return nil, ErrContainerClosed
	}
	n, err := c.nodeFor(reg)
	if err != nil {
		return nil, err
	}
	if r != nil && slices.Contains(c.buildStack, n.key) {
		chain := append(slices.Clone(c.buildStack), n.key)
		return nil, &CyclicDependencyError{Chain: chain}
	}
	c.ensureFresh(n)
	if n.phase == phaseError && n.reg.kind == kindSync {
		// An errored dependency has no value to project, so the edge is
		// recorded without its selector: any later change, including
		// recovery, dirties the dependent.
		if r != nil {
			if err := c.recordEdge(r, n, nil); err != nil {
				return nil, err
			}
		}
		return nil, n.err
	}
	if r != nil {
		if err := c.recordEdge(r, n, sel); err != nil {
			return nil, err
		}
	}
	return n.value, nil
}

// ensureFresh brings a node up to date with its cache policy before a read.
// An in-flight async build absorbs the read; concurrent demand coalesces
// onto one build.
func (c *Container) ensureFresh(n *node) {
	if n.inflight {
		return
	}
	switch {
	case n.phase == phaseNotBuilt:
		c.rebuildNode(n)
	case n.stale:
		c.revalidate(n)
	case n.opts.cache.mode == cacheTTL && n.phase == phaseReady && c.now().After(n.freshUntil):
		c.log.Debug("cache expired", "provider", n.key)
		c.rebuildNode(n)
	case n.opts.cache.mode == cacheNone && n.refCount == 0:
		c.rebuildNode(n)
	}
}

// revalidate decides whether a stale node actually needs a rebuild. A
// self-invalidated node always rebuilds; one dirtied through propagation
// first pulls its dependencies fresh, then compares recorded edges. A node
// whose selector projections are all unchanged is revalidated in place.
func (c *Container) revalidate(n *node) {
	if !n.stale || n.inflight {
		return
	}
	if _, done := c.rebuilt[n.key]; done {
		return
	}
	if n.selfInvalidated || n.phase == phaseNotBuilt {
		c.rebuildNode(n)
		return
	}

	changed := false
	for depKey, e := range n.deps {
		dep, ok := c.nodes[depKey]
		if !ok {
			// Dependency was disposed out from under us.
			changed = true
			break
		}
		if dep.stale {
			c.revalidate(dep)
		}
		if dep.generation == e.lastGen {
			continue
		}
		// A dependency without a value (a failed sync build) has nothing to
		// project; the dependent must rebuild and receive the error itself.
		if !dep.hasValue {
			changed = true
			break
		}
		if e.unconditional {
			changed = true
			break
		}
		condChanged := false
		for _, cond := range e.conds {
			next := cond.project(dep.value)
			if !valuesEqual(cond.last, next) {
				condChanged = true
			}
			cond.last = next
		}
		e.lastGen = dep.generation
		if condChanged {
			changed = true
			break
		}
	}
	if changed {
		c.rebuildNode(n)
		return
	}
	n.stale = false
}

func (c *Container) rebuildNode(n *node) {
	c.rebuilt[n.key] = struct{}{}
	c.runCleanups(n)
	c.cancelInflight(n)
	switch n.reg.kind {
	case kindSync:
		c.runSync(n)
	case kindAsync:
		c.startAsync(n)
	case kindStream:
		c.startStream(n)
	}
}

// runSync executes a synchronous build to completion on the loop.
func (c *Container) runSync(n *node) {
	n.generation++
	n.phase = phaseBuilding
	n.stale, n.selfInvalidated = false, false

	prev := n.deps
	r := &Ref{
		c:      c,
		node:   n,
		gen:    n.generation,
		inline: true,
		reads:  make(map[string]*edge),
		prev:   prev,
	}
	c.buildStack = append(c.buildStack, n.key)
	ctx := ctxlog.WithLogger(c.baseCtx, c.log.With("provider", n.key))

	var (
		out any
		err error
	)
	rec := panics.Try(func() {
		out, err = n.reg.buildSync(ctx, r)
	})
	c.buildStack = c.buildStack[:len(c.buildStack)-1]
	if rec != nil {
		err = fmt.Errorf("builder panicked: %w", rec.AsError())
	}

	c.commitEdges(n, prev, r.reads)
	if err != nil {
		c.commitError(n, err)
		return
	}
	c.commitValue(n, out)
}

// startAsync launches an asynchronous build. The node transitions to Loading
// immediately; the result lands through the loop and is discarded if the
// node's generation has moved on.
func (c *Container) startAsync(n *node) {
	n.generation++
	gen := n.generation
	c.dropEdges(n)
	n.phase = phaseLoading
	n.stale, n.selfInvalidated = false, false
	keep := n.hasReady && n.opts.keepPrevious
	n.value, n.hasValue = n.reg.loadingVal(n.lastReady, keep), true
	c.notifyWatchers(n)
	c.markDependentsDirty(n)

	ctx, cancel := context.WithCancel(c.baseCtx)
	ctx = ctxlog.WithLogger(ctx, c.log.With("provider", n.key))
	n.cancelBuild = cancel
	n.inflight = true
	r := &Ref{c: c, node: n, gen: gen, reads: n.deps}

	c.builds.Go(func() {
		var (
			out any
			err error
		)
		rec := panics.Try(func() {
			out, err = n.reg.buildAsync(ctx, r)
		})
		if rec != nil {
			err = fmt.Errorf("builder panicked: %w", rec.AsError())
		}
		c.runOp(func() {
			if c.closed || c.nodes[n.key] != n || n.generation != gen {
				c.log.Debug("discarding superseded async result", "provider", n.key)
				return
			}
			n.inflight = false
			n.cancelBuild = nil
			if err != nil {
				c.commitError(n, err)
				return
			}
			n.lastReady, n.hasReady = out, true
			c.commitValue(n, n.reg.readyVal(out))
		})
	})
}

// startStream launches a stream run. Every emit commits one Ready value
// through the loop; the run goroutine stays in flight until its function
// returns, so reads keep coalescing onto it.
func (c *Container) startStream(n *node) {
	n.generation++
	gen := n.generation
	c.dropEdges(n)
	n.phase = phaseLoading
	n.stale, n.selfInvalidated = false, false
	keep := n.hasReady && n.opts.keepPrevious
	n.value, n.hasValue = n.reg.loadingVal(n.lastReady, keep), true
	c.notifyWatchers(n)
	c.markDependentsDirty(n)

	ctx, cancel := context.WithCancel(c.baseCtx)
	ctx = ctxlog.WithLogger(ctx, c.log.With("provider", n.key))
	n.cancelBuild = cancel
	n.inflight = true
	r := &Ref{c: c, node: n, gen: gen, reads: n.deps}

	emit := func(v any) {
		c.runOp(func() {
			if c.closed || c.nodes[n.key] != n || n.generation != gen {
				return
			}
			n.lastReady, n.hasReady = v, true
			c.commitValue(n, n.reg.readyVal(v))
		})
	}

	c.builds.Go(func() {
		var err error
		rec := panics.Try(func() {
			err = n.reg.runStream(ctx, r, emit)
		})
		if rec != nil {
			err = fmt.Errorf("stream panicked: %w", rec.AsError())
		}
		c.runOp(func() {
			if c.closed || c.nodes[n.key] != n || n.generation != gen {
				c.log.Debug("discarding superseded stream result", "provider", n.key)
				return
			}
			n.inflight = false
			n.cancelBuild = nil
			switch {
			case err != nil:
				c.commitError(n, err)
			case n.phase == phaseLoading:
				c.commitError(n, fmt.Errorf("stream ended before producing a value"))
			}
		})
	})
}

// recordEdge notes that r's build read dep, possibly through a selector.
// Reads from a superseded build record nothing.
func (c *Container) recordEdge(r *Ref, dep *node, sel func(any) any) error {
	if r.gen != r.node.generation || c.nodes[r.node.key] != r.node {
		return nil
	}
	if dep == r.node {
		return nil
	}
	e, ok := r.reads[dep.key]
	if !ok {
		if err := c.topo.Link(dep.key, r.node.key); err != nil {
			return &CyclicDependencyError{Chain: []string{dep.key, r.node.key, dep.key}}
		}
		if _, carried := r.prev[dep.key]; !carried {
			c.retainNode(dep)
		}
		e = &edge{}
		r.reads[dep.key] = e
	}
	e.lastGen = dep.generation
	if sel == nil {
		e.unconditional = true
	} else {
		e.conds = append(e.conds, &selCond{project: sel, last: sel(dep.value)})
	}
	return nil
}

// commitEdges installs the new edge set and releases dependencies the build
// no longer reads.
func (c *Container) commitEdges(n *node, prev, reads map[string]*edge) {
	n.deps = reads
	for depKey := range prev {
		if _, kept := reads[depKey]; kept {
			continue
		}
		c.topo.Unlink(depKey, n.key)
		c.releaseNode(c.nodes[depKey])
	}
}

// dropEdges releases all of a node's dependency edges. Async and stream
// builds drop up front and record fresh edges as the new run reads.
func (c *Container) dropEdges(n *node) {
	for depKey := range n.deps {
		c.topo.Unlink(depKey, n.key)
		c.releaseNode(c.nodes[depKey])
	}
	n.deps = make(map[string]*edge)
}

// commitValue lands a successful build result. Watchers and dependents are
// only touched when the value actually changed under deep equality.
func (c *Container) commitValue(n *node, v any) {
	prevVal, prevHas := n.value, n.hasValue
	n.phase = phaseReady
	n.value, n.hasValue = v, true
	n.err = nil
	n.stale, n.selfInvalidated = false, false
	if n.opts.cache.mode == cacheTTL {
		n.freshUntil = c.now().Add(n.opts.cache.ttl)
	}
	c.settleWaiters(n)

	if prevHas && valuesEqual(prevVal, v) {
		// Same value under a new generation: re-stamp dependent edges so
		// they do not rebuild for nothing.
		for _, depKey := range c.topo.Dependents(n.key) {
			if dn, ok := c.nodes[depKey]; ok {
				if e, ok := dn.deps[n.key]; ok {
					e.lastGen = n.generation
				}
			}
		}
		return
	}
	c.notifyWatchers(n)
	c.markDependentsDirty(n)
}

// commitError lands a failed build. Sync nodes surface the error to readers;
// async and stream nodes surface it inside their AsyncValue.
func (c *Container) commitError(n *node, err error) {
	err = wrapBuildErr(n.key, err)
	n.phase = phaseError
	n.err = err
	n.stale, n.selfInvalidated = false, false
	c.log.Debug("provider build failed", "provider", n.key, "error", err)

	if n.reg.kind == kindSync {
		n.value, n.hasValue = nil, false
		c.settleWaiters(n)
		c.markDependentsDirty(n)
		return
	}
	keep := n.hasReady && n.opts.keepPrevious
	n.value, n.hasValue = n.reg.errorVal(err, n.lastReady, keep), true
	c.settleWaiters(n)
	c.notifyWatchers(n)
	c.markDependentsDirty(n)
}

// notifyWatchers delivers the node's current value to its watchers, in
// watcher registration order, skipping any whose projection is unchanged.
// Callbacks run on the loop and must not re-enter the container.
func (c *Container) notifyWatchers(n *node) {
	if len(n.watchers) == 0 {
		return
	}
	ids := make([]int, 0, len(n.watchers))
	for id := range n.watchers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		w, ok := n.watchers[id]
		if !ok {
			continue
		}
		projected := w.project(n.value)
		if w.hasLast && valuesEqual(w.last, projected) {
			continue
		}
		w.last, w.hasLast = projected, true
		w.notify(projected)
	}
}

// markDependentsDirty marks everything downstream of n stale, walking the
// topology transitively so invalidation crosses unobserved intermediates.
// The dirty set deduplicates within one propagation pass.
func (c *Container) markDependentsDirty(n *node) {
	queue := []string{n.key}
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		for _, depKey := range c.topo.Dependents(key) {
			if _, seen := c.dirty[depKey]; seen {
				continue
			}
			dn, ok := c.nodes[depKey]
			if !ok {
				continue
			}
			dn.stale = true
			c.dirty[depKey] = struct{}{}
			queue = append(queue, depKey)
		}
	}
}

// flush drains the dirty set in dependency order. Watched nodes revalidate
// now; unobserved nodes stay stale and rebuild lazily on their next read.
func (c *Container) flush() {
	if c.flushing {
		return
	}
	c.flushing = true
	defer func() { c.flushing = false }()

	for len(c.dirty) > 0 {
		for _, key := range c.topoOrderedDirty() {
			delete(c.dirty, key)
			n, ok := c.nodes[key]
			if !ok || !n.stale {
				continue
			}
			if n.refCount == 0 {
				continue
			}
			c.revalidate(n)
		}
	}
}

// topoOrderedDirty orders the current dirty set dependencies-first so each
// node revalidates at most once per pass.
func (c *Container) topoOrderedDirty() []string {
	keys := make([]string, 0, len(c.dirty))
	for k := range c.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	visited := make(map[string]bool, len(keys))
	order := make([]string, 0, len(keys))
	var visit func(string)
	visit = func(key string) {
		if visited[key] {
			return
		}
		visited[key] = true
		for _, dep := range c.topo.Dependencies(key) {
			if _, in := c.dirty[dep]; in {
				visit(dep)
			}
		}
		order = append(order, key)
	}
	for _, k := range keys {
		visit(k)
	}
	return order
}

// valuesEqual is the change-detection predicate: deep structural equality.
func valuesEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
