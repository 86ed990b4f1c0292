// Package registry provides the validated, immutable node registry.
// It maps node ids to their definitions and resolves merged ids to the
// canonical active node they were folded into.
package registry

import (
	"sort"

	"github.com/leapstack-labs/nodecheck/pkg/core"
)

// Registry is an immutable snapshot of node definitions keyed by id.
// Every accessor returns copies, so a Registry can be shared between
// goroutines without locking.
type Registry struct {
	// byID maps node ids to their definitions: "housing_quality" → Node
	byID map[string]core.Node

	// ids holds every id in lexicographic order
	ids []string
}

// newRegistry indexes nodes that have already passed validation.
func newRegistry(nodes []core.Node) *Registry {
	r := &Registry{
		byID: make(map[string]core.Node, len(nodes)),
		ids:  make([]string, 0, len(nodes)),
	}
	for _, n := range nodes {
		r.byID[n.ID] = n.Clone()
		r.ids = append(r.ids, n.ID)
	}
	sort.Strings(r.ids)
	return r
}

// Len returns the number of registered nodes.
func (r *Registry) Len() int {
	return len(r.ids)
}

// Has reports whether id is registered under any status.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// Get returns a copy of the node registered under id.
func (r *Registry) Get(id string) (core.Node, bool) {
	n, ok := r.byID[id]
	if !ok {
		return core.Node{}, false
	}
	return n.Clone(), true
}

// IDs returns every registered id in lexicographic order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.ids...)
}

// Nodes returns copies of every node ordered by id.
func (r *Registry) Nodes() []core.Node {
	nodes := make([]core.Node, 0, len(r.ids))
	for _, id := range r.ids {
		nodes = append(nodes, r.byID[id].Clone())
	}
	return nodes
}

// WithStatus returns the ids of nodes with the given status, sorted.
func (r *Registry) WithStatus(status core.Status) []string {
	var ids []string
	for _, id := range r.ids {
		if r.byID[id].Status == status {
			ids = append(ids, id)
		}
	}
	return ids
}

// Canonical resolves id to the active node it stands for: itself when
// active, its superseded_by target when merged. Returns false for unknown
// and deprecated ids.
func (r *Registry) Canonical(id string) (string, bool) {
	n, ok := r.byID[id]
	if !ok {
		return "", false
	}
	switch n.Status {
	case core.StatusActive:
		return id, true
	case core.StatusMerged:
		// chains are collapsed at build time, so one hop is enough
		return n.SupersededBy, true
	default:
		return "", false
	}
}

// StubsOf returns the merged ids whose superseded_by points at id, sorted.
func (r *Registry) StubsOf(id string) []string {
	var stubs []string
	for _, sid := range r.ids {
		n := r.byID[sid]
		if n.Status == core.StatusMerged && n.SupersededBy == id {
			stubs = append(stubs, sid)
		}
	}
	return stubs
}
