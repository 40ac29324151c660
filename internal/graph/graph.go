// Package graph provides a directed project-reference graph with cycle
// detection and dependency ordering.
package graph

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ErrCycleDetected indicates a circular dependency was found in the graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// Cycle is one circular path. The first node is repeated at the end, so
// A -> B -> A is stored as [A B A].
type Cycle []string

// String renders the cycle as "A -> B -> A".
func (c Cycle) String() string {
	return strings.Join(c, " -> ")
}

// DependencyGraph is a directed graph of project -> referenced project edges.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes is the set of known projects.
	nodes map[string]bool
	// edges maps a project to the projects it references.
	edges map[string][]string
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:    make(map[string]bool),
		edges:    make(map[string][]string),
		debugLog: func(format string, args ...interface{}) {}, // no-op by default
	}
}

// SetDebugLog sets the debug logging function.
func (g *DependencyGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// AddNode registers a project.
func (g *DependencyGraph) AddNode(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[id] = true
}

// AddEdge records that from references to. Both nodes are registered.
// Duplicate edges are ignored.
func (g *DependencyGraph) AddEdge(from, to string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes[from] = true
	g.nodes[to] = true
	if slices.Contains(g.edges[from], to) {
		return
	}
	g.edges[from] = append(g.edges[from], to)
	g.debugLog("[graph.AddEdge] %s -> %s", from, to)
}

// Nodes returns all node IDs in sorted order.
func (g *DependencyGraph) Nodes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sortedNodesLocked()
}

// Edges returns the sorted references of id.
func (g *DependencyGraph) Edges(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := slices.Clone(g.edges[id])
	slices.Sort(out)
	return out
}

// HasCycle returns true if the graph contains a circular dependency.
func (g *DependencyGraph) HasCycle() bool {
	return len(g.Cycles()) > 0
}

// Cycles returns every elementary cycle in the graph, each exactly once.
// A cycle is reported starting at its smallest node, so the same loop found
// from different entry points collapses into one entry. Output order is
// deterministic: by starting node, then by sorted edge order.
//
// For each start node s the search only walks nodes greater than s, so
// every circuit is found from its smallest member alone.
func (g *DependencyGraph) Cycles() []Cycle {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var cycles []Cycle
	onPath := make(map[string]bool)
	var path []string

	var walk func(start, id string)
	walk = func(start, id string) {
		onPath[id] = true
		path = append(path, id)

		deps := slices.Clone(g.edges[id])
		slices.Sort(deps)
		for _, dep := range deps {
			switch {
			case dep == start:
				cycle := canonical(path)
				cycles = append(cycles, cycle)
				g.debugLog("[graph.Cycles] found %s", cycle)
			case dep > start && !onPath[dep]:
				walk(start, dep)
			}
		}

		path = path[:len(path)-1]
		onPath[id] = false
	}

	for _, id := range g.sortedNodesLocked() {
		walk(id, id)
	}
	return cycles
}

// canonical rotates path so that it starts at its smallest node and closes
// the loop by repeating that node.
func canonical(path []string) Cycle {
	minIdx := 0
	for i, id := range path {
		if id < path[minIdx] {
			minIdx = i
		}
	}
	out := make(Cycle, 0, len(path)+1)
	out = append(out, path[minIdx:]...)
	out = append(out, path[:minIdx]...)
	out = append(out, path[minIdx])
	return out
}

// TopologicalSort returns node IDs so that every project comes after the
// projects it references. Returns ErrCycleDetected if the graph has a cycle.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	if cycles := g.Cycles(); len(cycles) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrCycleDetected, cycles[0])
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := make(map[string]bool)
	var result []string

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true

		deps := slices.Clone(g.edges[id])
		slices.Sort(deps)
		for _, dep := range deps {
			visit(dep)
		}
		result = append(result, id)
	}

	for _, id := range g.sortedNodesLocked() {
		visit(id)
	}
	return result, nil
}

func (g *DependencyGraph) sortedNodesLocked() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
