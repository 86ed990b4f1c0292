// Package consolidate applies declarative rename/merge batches to a
// registry snapshot and the mechanisms that reference it.
//
// Apply is atomic: it either returns a complete new snapshot with rewritten
// mechanisms and a migration report, or an error and no output. The input
// registry and mechanism slice are never modified.
package consolidate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/nodecheck/internal/dag"
	"github.com/leapstack-labs/nodecheck/internal/integrity"
	"github.com/leapstack-labs/nodecheck/internal/registry"
	"github.com/leapstack-labs/nodecheck/internal/scanner"
	"github.com/leapstack-labs/nodecheck/internal/validation"
	"github.com/leapstack-labs/nodecheck/pkg/core"
)

// Entry is one applied mapping in a MigrationReport.
type Entry struct {
	OldID     string         `json:"old_id" yaml:"old_id"`
	NewID     string         `json:"new_id" yaml:"new_id"`
	Operation core.Operation `json:"operation" yaml:"operation"`
	// MechanismsRewritten counts mechanisms that referenced OldID.
	MechanismsRewritten int      `json:"mechanisms_rewritten" yaml:"mechanisms_rewritten"`
	MechanismIDs        []string `json:"mechanism_ids" yaml:"mechanism_ids"`
	// CompositesRewritten lists composite nodes whose components named OldID.
	CompositesRewritten []string `json:"composites_rewritten,omitempty" yaml:"composites_rewritten,omitempty"`
	// StubsRepointed lists merged nodes that pointed at OldID and now point at NewID.
	StubsRepointed []string `json:"stubs_repointed,omitempty" yaml:"stubs_repointed,omitempty"`
}

// MigrationReport is the mechanism update checklist for one batch.
type MigrationReport struct {
	Entries []Entry        `json:"entries" yaml:"entries"`
	Delta   registry.Delta `json:"delta" yaml:"delta"`
}

// Result is the output of a successful Apply.
type Result struct {
	// Previous is the input snapshot, retained for diffing and audit.
	Previous   *registry.Registry
	Registry   *registry.Registry
	Mechanisms []core.Mechanism
	Report     MigrationReport
	// Check is the integrity report of the new snapshot.
	Check integrity.Report
}

// VerificationError means the post-apply integrity check still found ghost
// or stale references to ids in the batch.
type VerificationError struct {
	Findings []integrity.Finding
}

func (e *VerificationError) Error() string {
	parts := make([]string, 0, len(e.Findings))
	for _, f := range e.Findings {
		parts = append(parts, fmt.Sprintf("%s %s (%s)", f.Kind, f.NodeID, strings.Join(f.MechanismIDs, ",")))
	}
	return "consolidation left unresolved references: " + strings.Join(parts, "; ")
}

// mappingRecord carries the validation rules for a mapping.
type mappingRecord struct {
	OldID     string `yaml:"old_id" validate:"required,node_id"`
	NewID     string `yaml:"new_id" validate:"required,node_id"`
	Operation string `yaml:"operation" validate:"required,operation"`
}

// Apply validates the batch against reg, applies each mapping in order and
// verifies the result. Errors:
//   - *core.SchemaViolationError: malformed mappings or mechanisms
//   - *core.UnsupportedOperationError: split
//   - *core.ConflictingMappingError: one old_id with different targets
//   - *core.UnknownSourceError: rename/merge_into source not in reg
//   - *core.CycleError: the batch would create a merge cycle
//   - *core.InvalidMappingError: a mapping's status preconditions fail
//   - *VerificationError: the post-apply check found leftovers
func Apply(reg *registry.Registry, mechanisms []core.Mechanism, mappings []core.ConsolidationMapping) (*Result, error) {
	batch, err := normalize(mappings)
	if err != nil {
		return nil, err
	}
	if _, err := scanner.Scan(mechanisms); err != nil {
		return nil, fmt.Errorf("input mechanisms: %w", err)
	}
	if err := checkSources(reg, batch); err != nil {
		return nil, err
	}
	if err := checkCycles(reg, batch); err != nil {
		return nil, err
	}

	ws := newWorkspace(reg)
	entries := make([]Entry, 0, len(batch))
	for _, m := range batch {
		entry, err := ws.apply(m)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	next, err := registry.Build(ws.nodes())
	if err != nil {
		return nil, fmt.Errorf("consolidated registry is invalid: %w", err)
	}

	rewritten := make([]core.Mechanism, 0, len(mechanisms))
	for _, mech := range mechanisms {
		out, _ := mech.Rewrite(ws.renames)
		rewritten = append(rewritten, out)
	}
	for i := range entries {
		ids := referencing(mechanisms, entries[i].OldID)
		entries[i].MechanismIDs = ids
		entries[i].MechanismsRewritten = len(ids)
	}

	refs, err := scanner.Scan(rewritten)
	if err != nil {
		return nil, fmt.Errorf("rewritten mechanisms: %w", err)
	}
	check := integrity.Check(next, refs, integrity.Options{})
	if leftovers := check.Concerning(batchIDs(batch)); len(leftovers) > 0 {
		return nil, &VerificationError{Findings: leftovers}
	}

	return &Result{
		Previous:   reg,
		Registry:   next,
		Mechanisms: rewritten,
		Report: MigrationReport{
			Entries: entries,
			Delta:   registry.Diff(reg, next),
		},
		Check: check,
	}, nil
}

// normalize validates mapping records, rejects unsupported operations and
// conflicting declarations, and drops exact duplicates.
func normalize(mappings []core.ConsolidationMapping) ([]core.ConsolidationMapping, error) {
	var violations []core.Violation
	for i, m := range mappings {
		violations = append(violations, validation.Struct(mappingRecord{
			OldID:     m.OldID,
			NewID:     m.NewID,
			Operation: string(m.Operation),
		}, i, m.OldID)...)
	}
	if len(violations) > 0 {
		return nil, &core.SchemaViolationError{Source: "mappings", Violations: violations}
	}

	for _, m := range mappings {
		if m.Operation == core.OpSplit {
			return nil, &core.UnsupportedOperationError{Mapping: m}
		}
	}

	// Only identical records collapse. The same old_id/new_id pair under a
	// different operation is a conflict.
	byOld := make(map[string][]core.ConsolidationMapping)
	var batch []core.ConsolidationMapping
	for _, m := range mappings {
		declared := byOld[m.OldID]
		duplicate := false
		for _, d := range declared {
			if d == m {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		byOld[m.OldID] = append(declared, m)
		batch = append(batch, m)
	}

	var conflicts []core.MappingConflict
	for old, declared := range byOld {
		if len(declared) > 1 {
			conflicts = append(conflicts, core.MappingConflict{OldID: old, Mappings: declared})
		}
	}
	if len(conflicts) > 0 {
		sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].OldID < conflicts[j].OldID })
		return nil, &core.ConflictingMappingError{Conflicts: conflicts}
	}

	return batch, nil
}

// checkSources reports every rename/merge_into source missing from reg.
// Sources created earlier in the same batch (by rename or alias) count as present.
func checkSources(reg *registry.Registry, batch []core.ConsolidationMapping) error {
	created := make(map[string]bool)
	var unknown []string
	for _, m := range batch {
		switch m.Operation {
		case core.OpRename, core.OpMergeInto:
			if !reg.Has(m.OldID) && !created[m.OldID] {
				unknown = append(unknown, m.OldID)
			}
		}
		if m.Operation == core.OpRename || m.Operation == core.OpAlias {
			created[m.NewID] = true
			created[m.OldID] = true
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return &core.UnknownSourceError{IDs: unknown}
	}
	return nil
}

// checkCycles builds the merge graph the batch would leave behind
// (surviving stub pointers plus one edge per mapping) and rejects cycles.
func checkCycles(reg *registry.Registry, batch []core.ConsolidationMapping) error {
	g := dag.NewGraph()
	// Existing stubs stop pointing anywhere once the batch remaps them or a
	// rename reclaims their id.
	remapped := make(map[string]bool, len(batch))

	for _, m := range batch {
		if m.OldID == m.NewID {
			return &core.CycleError{Path: []string{m.OldID, m.NewID}}
		}
		remapped[m.OldID] = true
		if m.Operation == core.OpRename {
			remapped[m.NewID] = true
		}
		g.AddNode(m.OldID)
		g.AddNode(m.NewID)
		_ = g.AddEdge(m.OldID, m.NewID)
	}

	for _, id := range reg.WithStatus(core.StatusMerged) {
		if remapped[id] {
			continue
		}
		n, _ := reg.Get(id)
		g.AddNode(id)
		g.AddNode(n.SupersededBy)
		_ = g.AddEdge(id, n.SupersededBy)
	}

	if hasCycle, path := g.HasCycle(); hasCycle {
		return &core.CycleError{Path: path}
	}
	return nil
}

// referencing returns the ids of mechanisms that reference nodeID, sorted.
func referencing(mechanisms []core.Mechanism, nodeID string) []string {
	ids := []string{}
	for _, mech := range mechanisms {
		for _, ref := range mech.References() {
			if ref == nodeID {
				ids = append(ids, mech.ID)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// batchIDs returns every old and new id named by the batch.
func batchIDs(batch []core.ConsolidationMapping) []string {
	ids := make([]string, 0, 2*len(batch))
	for _, m := range batch {
		ids = append(ids, m.OldID, m.NewID)
	}
	return ids
}
