package rxgrid

import (
	"context"
	"time"

	"github.com/vk/rxgridgo/internal/nodeid"
)

// phase is the node's position in the build state machine:
//
//	NotBuilt -> Building -> {Ready | Error}
//	Ready | Error -> Building            (on invalidate)
//	Building -> Loading -> {Ready | Error}   (async and stream kinds)
type phase int

const (
	phaseNotBuilt phase = iota
	phaseBuilding
	phaseReady
	phaseLoading
	phaseError
)

func (p phase) String() string {
	switch p {
	case phaseNotBuilt:
		return "NotBuilt"
	case phaseBuilding:
		return "Building"
	case phaseReady:
		return "Ready"
	case phaseLoading:
		return "Loading"
	case phaseError:
		return "Error"
	default:
		return "Unknown"
	}
}

// node is the live state of one provider inside a container. All fields are
// owned by the container's execution context; nothing here is safe to touch
// from outside the scheduler loop.
type node struct {
	id  nodeid.ID
	key string
	reg *registration
	// opts is the effective configuration: registration options overlaid
	// with container tuning. Kept off the registration so per-container
	// settings never leak into the shared handle.
	opts options
	// seq is the creation order, used for reverse-order teardown on Close.
	seq uint64

	phase    phase
	value    any
	hasValue bool
	err      error

	// stale marks the node for revalidation; selfInvalidated forces a
	// rebuild regardless of selector comparisons.
	stale           bool
	selfInvalidated bool

	// generation increases on every build start, direct set, and
	// invalidation. A completed async build whose generation no longer
	// matches is discarded.
	generation uint64

	// freshUntil is the TTL deadline; zero unless the cache policy is TTL.
	freshUntil time.Time

	// lastReady/hasReady retain the most recent Ready payload of async and
	// stream kinds for refresh semantics (WithKeepPrevious).
	lastReady any
	hasReady  bool

	// deps holds the dependency edges of the most recent completed build,
	// keyed by dependency node key. Inverse edges live in the topology.
	deps map[string]*edge

	watchers      map[int]*watcher
	nextWatcherID int

	// refCount counts active subscriptions: external watchers plus
	// dependent edges. Auto-dispose fires when it returns to zero.
	refCount int
	// disposeEpoch invalidates pending grace-window sweeps; bumped on every
	// retain and on every scheduled sweep.
	disposeEpoch uint64

	cleanups []func()

	// In-flight async/stream build bookkeeping.
	inflight    bool
	cancelBuild context.CancelFunc
	waiters     []chan struct{}
}

// edge is one dependency relation as seen from the dependent: how the
// dependent read the dependency, and at which generation.
type edge struct {
	// unconditional is set when at least one read had no selector; any
	// change to the dependency then dirties the dependent.
	unconditional bool
	// conds holds the selector projections recorded during the dependent's
	// build; the dependent is only dirtied when a projection changes.
	conds []*selCond
	// lastGen is the dependency's generation at the time of the dependent's
	// build; a matching generation means nothing to revalidate.
	lastGen uint64
}

type selCond struct {
	project func(any) any
	last    any
}

// watcher is one external subscription. notify receives the projected value;
// last deduplicates callbacks under value equality.
type watcher struct {
	project func(any) any
	last    any
	hasLast bool
	notify  func(any)
}
