// Package dag provides directed graph operations over node identifiers.
// It supports cycle detection with full cycle paths and deterministic
// traversal, and backs both composite-index validation and merge-batch checks.
package dag

import (
	"fmt"
	"slices"
	"sort"
)

// Graph is a directed graph keyed by string ids.
type Graph struct {
	nodes map[string]struct{}
	edges map[string][]string // parent -> children
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]struct{}),
		edges: make(map[string][]string),
	}
}

// AddNode adds a node to the graph. Adding an existing node is a no-op.
func (g *Graph) AddNode(id string) {
	if _, exists := g.nodes[id]; exists {
		return
	}
	g.nodes[id] = struct{}{}
	g.edges[id] = []string{}
}

// AddEdge adds a directed edge from parent to child.
func (g *Graph) AddEdge(parentID, childID string) error {
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("child node %q does not exist", childID)
	}

	if parentID == childID {
		return fmt.Errorf("self-loop detected: %s", parentID)
	}

	if !slices.Contains(g.edges[parentID], childID) {
		g.edges[parentID] = append(g.edges[parentID], childID)
	}

	return nil
}

// sortedIDs returns node ids in lexicographic order.
func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasCycle returns true if the graph contains a cycle, along with the first
// cycle found. The path starts and ends with the same id.
func (g *Graph) HasCycle() (bool, []string) {
	cycles := g.findCycles(true)
	if len(cycles) == 0 {
		return false, nil
	}
	return true, cycles[0]
}

// Cycles returns every distinct cycle closed by a back edge during a
// depth-first traversal. Each path starts and ends with the same id and is
// rotated to begin at its lexicographically smallest member.
func (g *Graph) Cycles() [][]string {
	return g.findCycles(false)
}

func (g *Graph) findCycles(stopAtFirst bool) [][]string {
	visited := make(map[string]bool)
	onStack := make(map[string]int) // id -> index in stack
	var stack []string
	var cycles [][]string
	seen := make(map[string]bool)

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		onStack[id] = len(stack)
		stack = append(stack, id)

		for _, childID := range g.edges[id] {
			if idx, active := onStack[childID]; active {
				cycle := canonicalCycle(stack[idx:])
				key := fmt.Sprint(cycle)
				if !seen[key] {
					seen[key] = true
					cycles = append(cycles, cycle)
					if stopAtFirst {
						return true
					}
				}
				continue
			}
			if !visited[childID] {
				if dfs(childID) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		delete(onStack, id)
		return false
	}

	for _, id := range g.sortedIDs() {
		if !visited[id] {
			if dfs(id) {
				break
			}
		}
	}

	return cycles
}

// canonicalCycle rotates members so the smallest id comes first and closes
// the path by repeating it at the end.
func canonicalCycle(members []string) []string {
	start := 0
	for i, id := range members {
		if id < members[start] {
			start = i
		}
	}
	path := make([]string, 0, len(members)+1)
	path = append(path, members[start:]...)
	path = append(path, members[:start]...)
	path = append(path, members[start])
	return path
}
