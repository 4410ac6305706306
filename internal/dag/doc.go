// Package dag holds the dependency graph of a configured application. Nodes
// are unit addresses; an edge from A to B means B depends on A and must be
// activated after it. TopoSort yields a deterministic activation order and
// reports cycles with the full path.
package dag
