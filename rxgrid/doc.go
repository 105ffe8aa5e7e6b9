// Package rxgrid is a reactive dependency graph runtime: providers declare
// how to compute a value, containers own the resulting node graph, and the
// runtime keeps values consistent as their dependencies change.
//
// Providers are lazy and memoized. A node is built on first demand, its
// dependency edges are recorded from what the builder actually read, and a
// change pushes invalidation along those edges while rebuilds are pulled by
// demand: watched nodes rebuild eagerly, unobserved ones on their next read.
//
// All graph mutation is serialized on a per-container execution context, so
// builders, watcher callbacks, and cleanup hooks never race. Asynchronous
// and stream providers run their work on separate goroutines and commit
// results back through that context; a result from a superseded build is
// discarded rather than committed.
//
// Containers are isolated. Handles returned by New, NewState, NewAsync,
// NewStream, and families carry no state; all state lives in the container
// that resolved them, which is also where overrides substitute builders for
// testing.
package rxgrid
