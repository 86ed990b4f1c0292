package consolidate

import (
	"fmt"
	"slices"
	"sort"

	"github.com/leapstack-labs/nodecheck/internal/registry"
	"github.com/leapstack-labs/nodecheck/pkg/core"
)

// workspace is the mutable copy of a snapshot a batch is applied to.
type workspace struct {
	byID map[string]core.Node
	// renames maps every consolidated id to its final canonical id.
	renames map[string]string
}

func newWorkspace(reg *registry.Registry) *workspace {
	ws := &workspace{
		byID:    make(map[string]core.Node, reg.Len()),
		renames: make(map[string]string),
	}
	for _, n := range reg.Nodes() {
		ws.byID[n.ID] = n
	}
	return ws
}

// nodes returns the workspace contents ordered by id.
func (ws *workspace) nodes() []core.Node {
	out := make([]core.Node, 0, len(ws.byID))
	for _, n := range ws.byID {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (ws *workspace) activeTarget(m core.ConsolidationMapping) (core.Node, error) {
	target, ok := ws.byID[m.NewID]
	if !ok {
		return core.Node{}, &core.InvalidMappingError{Mapping: m, Reason: fmt.Sprintf("target %s is not defined", m.NewID)}
	}
	if target.Status != core.StatusActive {
		return core.Node{}, &core.InvalidMappingError{Mapping: m, Reason: fmt.Sprintf("target %s is %s, not active", m.NewID, target.Status)}
	}
	return target, nil
}

// apply performs one mapping and returns its report entry (without
// mechanism counts, which are filled in once the whole batch is applied).
func (ws *workspace) apply(m core.ConsolidationMapping) (Entry, error) {
	entry := Entry{OldID: m.OldID, NewID: m.NewID, Operation: m.Operation}

	switch m.Operation {
	case core.OpRename:
		old, ok := ws.byID[m.OldID]
		if !ok {
			return entry, &core.UnknownSourceError{IDs: []string{m.OldID}}
		}
		if old.Status != core.StatusActive {
			return entry, &core.InvalidMappingError{Mapping: m, Reason: fmt.Sprintf("rename source is %s, not active", old.Status)}
		}
		// A merged or deprecated id may be reclaimed; an active one may not.
		if existing, exists := ws.byID[m.NewID]; exists {
			if existing.Status == core.StatusActive {
				return entry, &core.InvalidMappingError{Mapping: m, Reason: fmt.Sprintf("%s already exists; use merge_into", m.NewID)}
			}
			if _, consolidated := ws.renames[m.NewID]; consolidated {
				return entry, &core.InvalidMappingError{Mapping: m, Reason: fmt.Sprintf("%s is consolidated earlier in this batch", m.NewID)}
			}
		}
		moved := old.Clone()
		moved.ID = m.NewID
		ws.byID[m.NewID] = moved
		ws.byID[m.OldID] = stub(old, m.NewID)

	case core.OpMergeInto:
		old, ok := ws.byID[m.OldID]
		if !ok {
			return entry, &core.UnknownSourceError{IDs: []string{m.OldID}}
		}
		if _, err := ws.activeTarget(m); err != nil {
			return entry, err
		}
		ws.byID[m.OldID] = stub(old, m.NewID)

	case core.OpAlias:
		if existing, exists := ws.byID[m.OldID]; exists {
			return entry, &core.InvalidMappingError{Mapping: m, Reason: fmt.Sprintf("%s is already defined (%s); use merge_into", m.OldID, existing.Status)}
		}
		target, err := ws.activeTarget(m)
		if err != nil {
			return entry, err
		}
		alias := target.Clone()
		alias.ID = m.OldID
		ws.byID[m.OldID] = stub(alias, m.NewID)

	default:
		return entry, &core.UnsupportedOperationError{Mapping: m}
	}

	entry.StubsRepointed = ws.repointStubs(m.OldID, m.NewID)
	entry.CompositesRewritten = ws.rewriteComponents(m.OldID, m.NewID)
	ws.recordRename(m.OldID, m.NewID)
	return entry, nil
}

// stub turns n into a merged pointer at target. Stubs carry no components.
func stub(n core.Node, target string) core.Node {
	s := n.Clone()
	s.Status = core.StatusMerged
	s.SupersededBy = target
	s.Components = nil
	return s
}

// repointStubs collapses chains: stubs that pointed at from now point at to.
func (ws *workspace) repointStubs(from, to string) []string {
	var moved []string
	for id, n := range ws.byID {
		if id == from || n.Status != core.StatusMerged || n.SupersededBy != from {
			continue
		}
		n.SupersededBy = to
		ws.byID[id] = n
		moved = append(moved, id)
	}
	sort.Strings(moved)
	return moved
}

// rewriteComponents replaces from with to in every composite's components.
func (ws *workspace) rewriteComponents(from, to string) []string {
	var touched []string
	for id, n := range ws.byID {
		if !slices.Contains(n.Components, from) {
			continue
		}
		components := make([]string, 0, len(n.Components))
		for _, c := range n.Components {
			if c == from {
				c = to
			}
			if !slices.Contains(components, c) {
				components = append(components, c)
			}
		}
		n.Components = components
		ws.byID[id] = n
		touched = append(touched, id)
	}
	sort.Strings(touched)
	return touched
}

// recordRename adds from -> to and retargets earlier renames that ended at from.
func (ws *workspace) recordRename(from, to string) {
	for old, cur := range ws.renames {
		if cur == from {
			ws.renames[old] = to
		}
	}
	ws.renames[from] = to
}
