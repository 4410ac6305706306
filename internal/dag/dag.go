package dag

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrCycle is matched by every CycleError.
var ErrCycle = errors.New("dependency cycle")

// CycleError reports a dependency cycle. Path starts and ends with the same
// node and follows dependency direction (each node depends on the previous
// one).
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %s", strings.Join(e.Path, " -> "))
}

func (e *CycleError) Is(target error) bool { return target == ErrCycle }

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*node),
	}
}

// AddNode adds a new node with the given ID to the graph. If a node with
// the same ID already exists, the function does nothing.
func (g *Graph) AddNode(id string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, ok := g.nodes[id]; ok {
		return
	}

	g.nodes[id] = &node{
		id:         id,
		index:      len(g.order),
		deps:       make(map[string]*node),
		dependents: make(map[string]*node),
	}
	g.order = append(g.order, id)
}

// HasNode reports whether a node with the given ID exists.
func (g *Graph) HasNode(id string) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.nodes)
}

// Nodes returns node IDs in insertion order.
func (g *Graph) Nodes() []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return slices.Clone(g.order)
}

// AddEdge creates a directed edge from the `fromID` node to the `toID` node.
// This signifies that `toID` has a dependency on `fromID`. An error is returned
// if either node does not exist or if the edge would create a self-reference.
// Adding an existing edge again is a no-op.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromID, fromID)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}

	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	toNode.deps[fromID] = fromNode
	fromNode.dependents[toID] = toNode

	return nil
}

// Dependencies returns the IDs of the nodes the given node depends on, in
// insertion order.
func (g *Graph) Dependencies(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return sortedIDs(n.deps), nil
}

// Dependents returns the IDs of the nodes that depend on the given node, in
// insertion order.
func (g *Graph) Dependents(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return sortedIDs(n.dependents), nil
}

// DetectCycles checks the graph for any cycles. It returns a *CycleError
// naming the full cycle path when one is found.
func (g *Graph) DetectCycles() error {
	_, err := g.TopoSort()
	return err
}

// TopoSort returns every node ordered so that each node comes after all of
// its dependencies. Among nodes that are ready at the same time, the one
// added first wins, so the order is stable for a given construction sequence.
func (g *Graph) TopoSort() ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	indegree := make(map[string]int, len(g.nodes))
	var ready []*node
	for _, id := range g.order {
		n := g.nodes[id]
		indegree[id] = len(n.deps)
		if len(n.deps) == 0 {
			ready = append(ready, n)
		}
	}

	sorted := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		sorted = append(sorted, n.id)

		released := false
		for _, dep := range n.dependents {
			indegree[dep.id]--
			if indegree[dep.id] == 0 {
				ready = append(ready, dep)
				released = true
			}
		}
		if released {
			slices.SortFunc(ready, func(a, b *node) int { return a.index - b.index })
		}
	}

	if len(sorted) < len(g.nodes) {
		return nil, g.findCycle(indegree)
	}
	return sorted, nil
}

// findCycle walks the nodes left over by TopoSort and extracts one cycle.
// Every leftover node has at least one leftover dependency, so following
// dependencies must eventually revisit a node.
func (g *Graph) findCycle(indegree map[string]int) error {
	var start *node
	for _, id := range g.order {
		if indegree[id] > 0 {
			start = g.nodes[id]
			break
		}
	}

	seen := make(map[string]int)
	var walk []string
	for n := start; ; {
		if at, ok := seen[n.id]; ok {
			cycle := slices.Clone(walk[at:])
			slices.Reverse(cycle)
			first := 0
			for i, id := range cycle {
				if g.nodes[id].index < g.nodes[cycle[first]].index {
					first = i
				}
			}
			cycle = slices.Concat(cycle[first:], cycle[:first])
			return &CycleError{Path: append(cycle, cycle[0])}
		}
		seen[n.id] = len(walk)
		walk = append(walk, n.id)

		var next *node
		for _, depID := range sortedIDs(n.deps) {
			if indegree[depID] > 0 {
				next = n.deps[depID]
				break
			}
		}
		n = next
	}
}

func sortedIDs(m map[string]*node) []string {
	nodes := make([]*node, 0, len(m))
	for _, n := range m {
		nodes = append(nodes, n)
	}
	slices.SortFunc(nodes, func(a, b *node) int { return a.index - b.index })
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.id
	}
	return ids
}
