package rxgrid

// UnwatchFunc cancels a subscription created by Watch or WatchSelect. It is
// idempotent; the second and later calls are no-ops.
type UnwatchFunc func()

// Watch subscribes to the provider, returning its current value and an
// UnwatchFunc. notify runs on the container's execution context for every
// committed change whose value differs from the last delivered one; it must
// not call back into the container.
//
// notify carries values only. A rebuild that fails leaves the node in its
// error state without a notification; the failure is observed through Read,
// which returns it. Async and stream providers deliver failures as
// Error-state AsyncValues instead.
//
// The subscription holds the node alive: an auto-dispose node is only
// reclaimed once its last watcher unsubscribes, after the grace window.
func (p *Provider[T]) Watch(c *Container, notify func(T)) (T, UnwatchFunc, error) {
	return watchNode(c, p.reg,
		func(v any) any { return v },
		func(v any) { notify(v.(T)) },
		func(raw any) T { return raw.(T) },
	)
}

// WatchSelect subscribes to a projection of the provider's value. notify
// fires only when the projected value changes under deep equality, bounding
// fan-out the same way UseSelect bounds rebuilds.
func WatchSelect[T, S any](c *Container, p *Provider[T], project func(T) S, notify func(S)) (S, UnwatchFunc, error) {
	return watchNode(c, p.reg,
		func(v any) any { return project(v.(T)) },
		func(v any) { notify(v.(S)) },
		func(raw any) S { return project(raw.(T)) },
	)
}

func watchNode[S any](c *Container, reg *registration, project func(any) any, deliver func(any), current func(any) S) (S, UnwatchFunc, error) {
	var (
		out     S
		unwatch UnwatchFunc
		err     error
	)
	c.runOp(func() {
		var raw any
		raw, err = c.acquire(reg, nil, nil)
		if err != nil {
			return
		}
		n := c.nodes[reg.id.String()]
		out = current(raw)

		id := n.nextWatcherID
		n.nextWatcherID++
		n.watchers[id] = &watcher{
			project: project,
			last:    project(raw),
			hasLast: true,
			notify:  deliver,
		}
		c.retainNode(n)
		c.log.Debug("watcher attached", "provider", n.key, "watcher", id)

		unwatch = func() {
			c.runOp(func() {
				if c.closed || c.nodes[n.key] != n {
					return
				}
				if _, ok := n.watchers[id]; !ok {
					return
				}
				delete(n.watchers, id)
				c.log.Debug("watcher detached", "provider", n.key, "watcher", id)
				c.releaseNode(n)
			})
		}
	})
	if err != nil {
		var zero S
		return zero, nil, err
	}
	return out, unwatch, nil
}

// Refresh invalidates the provider and immediately reads it back, returning
// the freshly built value.
func Refresh[T any](c *Container, p *Provider[T]) (T, error) {
	if err := c.Invalidate(p); err != nil {
		var zero T
		return zero, err
	}
	return p.Read(c)
}
