package core

import (
	"fmt"
	"strings"
)

// Violation is one schema problem in one input record.
type Violation struct {
	// Index is the record's position in its input batch.
	Index int `json:"index"`
	// ID is the record's identifier when it could be read.
	ID      string `json:"id,omitempty"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	where := fmt.Sprintf("record %d", v.Index)
	if v.ID != "" {
		where = fmt.Sprintf("record %d (%s)", v.Index, v.ID)
	}
	return fmt.Sprintf("%s: %s: %s", where, v.Field, v.Message)
}

// SchemaViolationError aggregates every malformed field found in a batch.
type SchemaViolationError struct {
	// Source names the batch (a file path or "nodes"/"mechanisms").
	Source     string
	Violations []Violation
}

func (e *SchemaViolationError) Error() string {
	lines := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		lines = append(lines, "  "+v.String())
	}
	src := e.Source
	if src == "" {
		src = "input"
	}
	return fmt.Sprintf("schema violations in %s (%d):\n%s", src, len(e.Violations), strings.Join(lines, "\n"))
}

// DuplicateIDError lists every id that appears more than once.
type DuplicateIDError struct {
	IDs []string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate node ids: %s", strings.Join(e.IDs, ", "))
}

// MissingComponent is a composite child id that does not resolve.
type MissingComponent struct {
	NodeID      string `json:"node_id"`
	ComponentID string `json:"component_id"`
}

// BrokenCompositeError reports composite indices whose components are
// undefined, self-referential or cyclic.
type BrokenCompositeError struct {
	Missing  []MissingComponent
	SelfRefs []string
	// Cycles holds full cycle paths, first id repeated at the end.
	Cycles [][]string
}

func (e *BrokenCompositeError) Error() string {
	var parts []string
	for _, m := range e.Missing {
		parts = append(parts, fmt.Sprintf("%s: undefined component %s", m.NodeID, m.ComponentID))
	}
	for _, id := range e.SelfRefs {
		parts = append(parts, fmt.Sprintf("%s: lists itself as a component", id))
	}
	for _, c := range e.Cycles {
		parts = append(parts, "component cycle: "+strings.Join(c, " -> "))
	}
	return "broken composites: " + strings.Join(parts, "; ")
}

// MergeProblem describes one merged node whose chain does not end at an active node.
type MergeProblem struct {
	NodeID string   `json:"node_id"`
	Chain  []string `json:"chain"`
	Reason string   `json:"reason"`
}

// UnresolvableMergeError reports merged nodes whose superseded_by chain
// dangles, cycles, ends at a non-active node or exceeds the hop bound.
type UnresolvableMergeError struct {
	Problems []MergeProblem
}

func (e *UnresolvableMergeError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, fmt.Sprintf("%s: %s (%s)", p.NodeID, p.Reason, strings.Join(p.Chain, " -> ")))
	}
	return "unresolvable merges: " + strings.Join(parts, "; ")
}

// UnknownSourceError lists mapping old_ids missing from the registry.
type UnknownSourceError struct {
	IDs []string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("unknown consolidation source ids: %s", strings.Join(e.IDs, ", "))
}

// MappingConflict is one old_id declared with more than one target.
type MappingConflict struct {
	OldID    string                 `json:"old_id"`
	Mappings []ConsolidationMapping `json:"mappings"`
}

// ConflictingMappingError reports ambiguous batches. Callers must resolve
// them; the mapper never picks a winner.
type ConflictingMappingError struct {
	Conflicts []MappingConflict
}

func (e *ConflictingMappingError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		targets := make([]string, 0, len(c.Mappings))
		for _, m := range c.Mappings {
			targets = append(targets, fmt.Sprintf("%s (%s)", m.NewID, m.Operation))
		}
		parts = append(parts, fmt.Sprintf("%s maps to %s", c.OldID, strings.Join(targets, " and ")))
	}
	return "conflicting mappings: " + strings.Join(parts, "; ")
}

// CycleError reports a merge cycle the batch would create.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("consolidation would create a merge cycle: %s", strings.Join(e.Path, " -> "))
}

// InvalidMappingError reports a mapping whose preconditions do not hold.
type InvalidMappingError struct {
	Mapping ConsolidationMapping
	Reason  string
}

func (e *InvalidMappingError) Error() string {
	return fmt.Sprintf("invalid mapping %s: %s", e.Mapping, e.Reason)
}

// UnsupportedOperationError reports a mapping operation the mapper does not implement.
type UnsupportedOperationError struct {
	Mapping ConsolidationMapping
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("unsupported consolidation operation %q in %s", e.Mapping.Operation, e.Mapping)
}
