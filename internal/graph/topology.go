// Package graph maintains the dependency topology of the provider graph:
// which node reads which. Edges point from a dependency to its dependent,
// so propagation walks forward along edges.
//
// The topology stores structure only. Node state (values, phases, watcher
// sets) lives with the container that owns the nodes; the two are kept
// separate so structural queries never contend with state mutation.
package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dominikbraun/graph"
)

// ErrCycle is returned by Link when the new edge would close a dependency
// cycle. Callers translate it into their own cycle error carrying the
// offending build chain.
var ErrCycle = errors.New("edge would create a dependency cycle")

// Topology is a directed, cycle-free edge store over node IDs.
// It is not safe for concurrent use; all access must come from the
// container's owning execution context.
type Topology struct {
	g graph.Graph[string, string]
}

// New returns an empty topology.
func New() *Topology {
	return &Topology{
		g: graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles()),
	}
}

// Add registers a node with no edges. Adding an existing node is a no-op.
func (t *Topology) Add(id string) {
	err := t.g.AddVertex(id)
	if err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
		// AddVertex only fails on duplicates for this graph configuration.
		panic(fmt.Sprintf("topology: add vertex %q: %v", id, err))
	}
}

// Link records that dependent reads dep. Re-linking an existing edge is a
// no-op. Returns ErrCycle if the edge would close a cycle.
func (t *Topology) Link(dep, dependent string) error {
	err := t.g.AddEdge(dep, dependent)
	switch {
	case err == nil, errors.Is(err, graph.ErrEdgeAlreadyExists):
		return nil
	case errors.Is(err, graph.ErrEdgeCreatesCycle):
		return fmt.Errorf("%w: %s -> %s", ErrCycle, dep, dependent)
	default:
		return fmt.Errorf("linking %s -> %s: %w", dep, dependent, err)
	}
}

// Unlink removes the edge from dep to dependent, if present.
func (t *Topology) Unlink(dep, dependent string) {
	_ = t.g.RemoveEdge(dep, dependent)
}

// Remove deletes a node and all of its incident edges.
func (t *Topology) Remove(id string) {
	for _, dependent := range t.Dependents(id) {
		_ = t.g.RemoveEdge(id, dependent)
	}
	for _, dep := range t.Dependencies(id) {
		_ = t.g.RemoveEdge(dep, id)
	}
	_ = t.g.RemoveVertex(id)
}

// Dependents returns the IDs of nodes that read id, sorted for
// deterministic propagation order.
func (t *Topology) Dependents(id string) []string {
	adjacency, err := t.g.AdjacencyMap()
	if err != nil {
		return nil
	}
	return sortedKeys(adjacency[id])
}

// Dependencies returns the IDs of nodes that id reads, sorted.
func (t *Topology) Dependencies(id string) []string {
	predecessors, err := t.g.PredecessorMap()
	if err != nil {
		return nil
	}
	return sortedKeys(predecessors[id])
}

func sortedKeys(edges map[string]graph.Edge[string]) []string {
	if len(edges) == 0 {
		return nil
	}
	ids := make([]string, 0, len(edges))
	for id := range edges {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
