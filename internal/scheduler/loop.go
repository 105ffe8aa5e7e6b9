// Package scheduler provides the single cooperative execution context that
// owns a provider graph. Every graph mutation — public API calls, async
// build completions, stream emissions — enters through Exclusive, so only
// one operation runs at a time and builds never preempt each other.
//
// Each completed operation is one scheduler tick. Work registered with
// Defer runs after the *next* tick settles, which is what gives
// auto-dispose its one-tick grace window: a node released and re-acquired
// within the same cascade, or during the following operation, is never
// torn down.
package scheduler

import "sync"

// Loop serializes graph operations and drives tick-deferred work.
type Loop struct {
	mu       sync.Mutex
	tick     uint64
	deferred []deferredTask
}

type deferredTask struct {
	due uint64
	run func()
}

// New returns a loop at tick zero.
func New() *Loop {
	return &Loop{}
}

// Exclusive runs op with exclusive ownership of the graph, then advances
// the tick and runs any deferred work that has come due. It must not be
// called re-entrantly from code already running on the loop.
func (l *Loop) Exclusive(op func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	op()
	l.advance()
}

// Tick advances the scheduler one tick without performing any operation.
// Pending grace-window work that has come due runs before Tick returns.
func (l *Loop) Tick() {
	l.Exclusive(func() {})
}

// Defer schedules fn to run once the next full tick has settled. It must be
// called from code running inside Exclusive. fn itself runs on the loop and
// may call Defer again.
func (l *Loop) Defer(fn func()) {
	l.deferred = append(l.deferred, deferredTask{due: l.tick + 2, run: fn})
}

// Now returns the current tick. Must be called from inside Exclusive.
func (l *Loop) Now() uint64 {
	return l.tick
}

func (l *Loop) advance() {
	l.tick++
	var due []func()
	kept := l.deferred[:0]
	for _, d := range l.deferred {
		if d.due <= l.tick {
			due = append(due, d.run)
		} else {
			kept = append(kept, d)
		}
	}
	l.deferred = kept
	for _, run := range due {
		run()
	}
}
