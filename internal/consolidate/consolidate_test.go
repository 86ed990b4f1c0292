package consolidate

import (
	"errors"
	"testing"

	"github.com/leapstack-labs/nodecheck/internal/integrity"
	"github.com/leapstack-labs/nodecheck/internal/registry"
	"github.com/leapstack-labs/nodecheck/internal/scanner"
	"github.com/leapstack-labs/nodecheck/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(id string) registry.RawNode {
	return registry.RawNode{
		ID:          id,
		DisplayName: id,
		Scale:       "built-environment",
		ValueType:   "proportion",
		Unit:        "percent of housing units",
		Domain:      []string{"housing"},
		Status:      "active",
	}
}

func stubNode(id, into string) registry.RawNode {
	r := node(id)
	r.Status = "merged"
	r.SupersededBy = into
	return r
}

func mustRegistry(t *testing.T, records ...registry.RawNode) *registry.Registry {
	t.Helper()
	reg, err := registry.Load(records)
	require.NoError(t, err)
	return reg
}

func mech(id string, sources, targets []string, moderators ...string) core.Mechanism {
	return core.Mechanism{ID: id, SourceIDs: sources, TargetIDs: targets, ModeratorIDs: moderators}
}

func mapping(oldID, newID string, op core.Operation) core.ConsolidationMapping {
	return core.ConsolidationMapping{OldID: oldID, NewID: newID, Operation: op}
}

func checkOf(t *testing.T, reg *registry.Registry, mechs []core.Mechanism) integrity.Report {
	t.Helper()
	refs, err := scanner.Scan(mechs)
	require.NoError(t, err)
	return integrity.Check(reg, refs, integrity.Options{})
}

func TestApply_MergeInto(t *testing.T) {
	reg := mustRegistry(t, node("indoor_dampness_exposure"), node("indoor_environmental_hazards"), node("asthma_ed_visits"))
	mechs := []core.Mechanism{
		mech("damp_to_asthma", []string{"indoor_dampness_exposure"}, []string{"asthma_ed_visits"}),
		mech("hazards_to_asthma", []string{"indoor_environmental_hazards", "indoor_dampness_exposure"}, []string{"asthma_ed_visits"}),
	}

	res, err := Apply(reg, mechs, []core.ConsolidationMapping{
		mapping("indoor_dampness_exposure", "indoor_environmental_hazards", core.OpMergeInto),
	})
	require.NoError(t, err)

	stub, ok := res.Registry.Get("indoor_dampness_exposure")
	require.True(t, ok)
	assert.Equal(t, core.StatusMerged, stub.Status)
	assert.Equal(t, "indoor_environmental_hazards", stub.SupersededBy)

	assert.Equal(t, []string{"indoor_environmental_hazards"}, res.Mechanisms[0].SourceIDs)
	assert.Equal(t, []string{"indoor_environmental_hazards"}, res.Mechanisms[1].SourceIDs, "rewrite must not duplicate ids")

	require.Len(t, res.Report.Entries, 1)
	entry := res.Report.Entries[0]
	assert.Equal(t, 2, entry.MechanismsRewritten)
	assert.Equal(t, []string{"damp_to_asthma", "hazards_to_asthma"}, entry.MechanismIDs)
	require.Len(t, res.Report.Delta.Changed, 1)
	assert.Equal(t, "indoor_dampness_exposure", res.Report.Delta.Changed[0].ID)

	assert.True(t, res.Check.Clean())
	assert.Same(t, reg, res.Previous)
}

func TestApply_Rename(t *testing.T) {
	reg := mustRegistry(t, node("housing_cost_burden"), node("eviction_rate"))
	mechs := []core.Mechanism{
		mech("burden_to_eviction", []string{"housing_cost_burden"}, []string{"eviction_rate"}),
	}

	res, err := Apply(reg, mechs, []core.ConsolidationMapping{
		mapping("housing_cost_burden", "rent_burden", core.OpRename),
	})
	require.NoError(t, err)

	renamed, ok := res.Registry.Get("rent_burden")
	require.True(t, ok)
	assert.Equal(t, core.StatusActive, renamed.Status)
	assert.Equal(t, "housing_cost_burden", renamed.DisplayName, "attributes move with the rename")

	old, _ := res.Registry.Get("housing_cost_burden")
	assert.Equal(t, core.StatusMerged, old.Status)
	assert.Equal(t, "rent_burden", old.SupersededBy)

	assert.Equal(t, []string{"rent_burden"}, res.Mechanisms[0].SourceIDs)
	assert.Equal(t, []string{"rent_burden"}, res.Report.Delta.Added)
}

func TestApply_RenameOntoExistingIDIsInvalid(t *testing.T) {
	reg := mustRegistry(t, node("a_node"), node("b_node"))

	_, err := Apply(reg, nil, []core.ConsolidationMapping{mapping("a_node", "b_node", core.OpRename)})

	var invalid *core.InvalidMappingError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Reason, "merge_into")
}

func TestApply_RenameReclaimsMergedStub(t *testing.T) {
	reg := mustRegistry(t,
		node("rent_burden"),
		stubNode("housing_cost_burden", "rent_burden"),
		stubNode("shelter_cost_ratio", "rent_burden"),
		node("eviction_rate"),
	)
	mechs := []core.Mechanism{
		mech("burden_to_eviction", []string{"rent_burden"}, []string{"eviction_rate"}),
		mech("legacy_to_eviction", []string{"housing_cost_burden"}, []string{"eviction_rate"}),
	}
	require.Len(t, checkOf(t, reg, mechs).Stale, 1)

	res, err := Apply(reg, mechs, []core.ConsolidationMapping{
		mapping("rent_burden", "housing_cost_burden", core.OpRename),
	})
	require.NoError(t, err)

	reclaimed, ok := res.Registry.Get("housing_cost_burden")
	require.True(t, ok)
	assert.Equal(t, core.StatusActive, reclaimed.Status)
	assert.Empty(t, reclaimed.SupersededBy)

	old, _ := res.Registry.Get("rent_burden")
	assert.Equal(t, core.StatusMerged, old.Status)
	assert.Equal(t, "housing_cost_burden", old.SupersededBy)

	other, _ := res.Registry.Get("shelter_cost_ratio")
	assert.Equal(t, "housing_cost_burden", other.SupersededBy)

	assert.Equal(t, []string{"housing_cost_burden"}, res.Mechanisms[0].SourceIDs)
	assert.Empty(t, res.Check.Stale)
	assert.Empty(t, res.Check.Ghosts)
}

func TestApply_RenameReclaimsDeprecatedID(t *testing.T) {
	deprecated := node("b_node")
	deprecated.Status = "deprecated"
	reg := mustRegistry(t, node("a_node"), deprecated)

	res, err := Apply(reg, nil, []core.ConsolidationMapping{mapping("a_node", "b_node", core.OpRename)})
	require.NoError(t, err)

	b, _ := res.Registry.Get("b_node")
	assert.Equal(t, core.StatusActive, b.Status)
	a, _ := res.Registry.Get("a_node")
	assert.Equal(t, "b_node", a.SupersededBy)
}

func TestApply_RenameOntoIDConsolidatedInBatchIsInvalid(t *testing.T) {
	reg := mustRegistry(t, node("a_node"), node("b_node"), node("c_node"))

	_, err := Apply(reg, nil, []core.ConsolidationMapping{
		mapping("b_node", "c_node", core.OpMergeInto),
		mapping("a_node", "b_node", core.OpRename),
	})

	var invalid *core.InvalidMappingError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Reason, "earlier in this batch")
}

func TestApply_MergeIntoInactiveTargetIsInvalid(t *testing.T) {
	deprecated := node("old_target")
	deprecated.Status = "deprecated"
	reg := mustRegistry(t, node("a_node"), deprecated)

	_, err := Apply(reg, nil, []core.ConsolidationMapping{mapping("a_node", "old_target", core.OpMergeInto)})

	var invalid *core.InvalidMappingError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Reason, "deprecated")
}

func TestApply_UnknownSource(t *testing.T) {
	reg := mustRegistry(t, node("a_node"))

	_, err := Apply(reg, nil, []core.ConsolidationMapping{
		mapping("ghost_two", "a_node", core.OpMergeInto),
		mapping("ghost_one", "b_node", core.OpRename),
	})

	var unknown *core.UnknownSourceError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, []string{"ghost_one", "ghost_two"}, unknown.IDs)
}

func TestApply_AliasClosesGhostLoop(t *testing.T) {
	reg := mustRegistry(t, node("indoor_environmental_hazards"), node("asthma_ed_visits"))
	mechs := []core.Mechanism{
		mech("mold_to_asthma", []string{"mold_exposure"}, []string{"asthma_ed_visits"}),
	}
	before := checkOf(t, reg, mechs)
	require.Len(t, before.Ghosts, 1)

	res, err := Apply(reg, mechs, []core.ConsolidationMapping{
		mapping("mold_exposure", "indoor_environmental_hazards", core.OpAlias),
	})
	require.NoError(t, err)

	stub, ok := res.Registry.Get("mold_exposure")
	require.True(t, ok)
	assert.Equal(t, core.StatusMerged, stub.Status)
	assert.Equal(t, "indoor_environmental_hazards", stub.SupersededBy)
	assert.Equal(t, []string{"indoor_environmental_hazards"}, res.Mechanisms[0].SourceIDs)
	assert.Empty(t, res.Check.Ghosts)
	assert.Empty(t, res.Check.Stale)
	assert.Equal(t, 1, res.Report.Entries[0].MechanismsRewritten)
}

func TestApply_AliasOfDefinedIDIsInvalid(t *testing.T) {
	reg := mustRegistry(t, node("a_node"), node("b_node"))

	_, err := Apply(reg, nil, []core.ConsolidationMapping{mapping("a_node", "b_node", core.OpAlias)})

	var invalid *core.InvalidMappingError
	require.ErrorAs(t, err, &invalid)
}

func TestApply_ConflictingMappings(t *testing.T) {
	reg := mustRegistry(t, node("x_node"), node("a_node"), node("b_node"))

	_, err := Apply(reg, nil, []core.ConsolidationMapping{
		mapping("x_node", "a_node", core.OpMergeInto),
		mapping("x_node", "b_node", core.OpMergeInto),
	})

	var conflict *core.ConflictingMappingError
	require.ErrorAs(t, err, &conflict)
	require.Len(t, conflict.Conflicts, 1)
	assert.Equal(t, "x_node", conflict.Conflicts[0].OldID)
	assert.Contains(t, err.Error(), "a_node")
	assert.Contains(t, err.Error(), "b_node")
}

func TestApply_SameTargetDifferentOperationConflicts(t *testing.T) {
	reg := mustRegistry(t, node("x_node"), node("a_node"))

	_, err := Apply(reg, nil, []core.ConsolidationMapping{
		mapping("x_node", "a_node", core.OpMergeInto),
		mapping("x_node", "a_node", core.OpRename),
	})

	var conflict *core.ConflictingMappingError
	require.ErrorAs(t, err, &conflict)
	require.Len(t, conflict.Conflicts, 1)
	assert.Len(t, conflict.Conflicts[0].Mappings, 2)
}

func TestApply_ExactDuplicateMappingsAreCollapsed(t *testing.T) {
	reg := mustRegistry(t, node("x_node"), node("a_node"))
	m := mapping("x_node", "a_node", core.OpMergeInto)

	res, err := Apply(reg, nil, []core.ConsolidationMapping{m, m})
	require.NoError(t, err)
	assert.Len(t, res.Report.Entries, 1)
}

func TestApply_CycleInBatch(t *testing.T) {
	reg := mustRegistry(t, node("a_node"), node("b_node"))

	_, err := Apply(reg, nil, []core.ConsolidationMapping{
		mapping("a_node", "b_node", core.OpMergeInto),
		mapping("b_node", "a_node", core.OpMergeInto),
	})

	var cycle *core.CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"a_node", "b_node", "a_node"}, cycle.Path)
}

func TestApply_CycleThroughExistingStub(t *testing.T) {
	reg := mustRegistry(t, node("a_node"), stubNode("b_node", "a_node"))

	_, err := Apply(reg, nil, []core.ConsolidationMapping{
		mapping("a_node", "b_node", core.OpMergeInto),
	})

	var cycle *core.CycleError
	require.ErrorAs(t, err, &cycle)
}

func TestApply_SelfMappingIsCycle(t *testing.T) {
	reg := mustRegistry(t, node("a_node"))

	_, err := Apply(reg, nil, []core.ConsolidationMapping{mapping("a_node", "a_node", core.OpMergeInto)})

	var cycle *core.CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"a_node", "a_node"}, cycle.Path)
}

func TestApply_SplitIsUnsupported(t *testing.T) {
	reg := mustRegistry(t, node("a_node"), node("b_node"))

	_, err := Apply(reg, nil, []core.ConsolidationMapping{mapping("a_node", "b_node", core.OpSplit)})

	var unsupported *core.UnsupportedOperationError
	require.ErrorAs(t, err, &unsupported)
}

func TestApply_MalformedMappingsAreSchemaViolations(t *testing.T) {
	reg := mustRegistry(t, node("a_node"))

	_, err := Apply(reg, nil, []core.ConsolidationMapping{
		{OldID: "Bad-ID", NewID: "a_node", Operation: core.OpMergeInto},
		{OldID: "a_node", NewID: "b_node", Operation: "fold"},
		{OldID: "a_node", NewID: "c_node", Operation: "RENAME"},
	})

	var schema *core.SchemaViolationError
	require.ErrorAs(t, err, &schema)
	assert.Equal(t, "mappings", schema.Source)
	require.Len(t, schema.Violations, 3)
	assert.Contains(t, schema.Violations[2].Message, `unknown operation "RENAME"`)
}

func TestApply_ChainInOneBatchCollapses(t *testing.T) {
	reg := mustRegistry(t, node("a_node"), node("b_node"), node("c_node"))
	mechs := []core.Mechanism{mech("m1", []string{"a_node"}, []string{"b_node"}, "c_node")}

	res, err := Apply(reg, mechs, []core.ConsolidationMapping{
		mapping("a_node", "b_node", core.OpMergeInto),
		mapping("b_node", "c_node", core.OpMergeInto),
	})
	require.NoError(t, err)

	a, _ := res.Registry.Get("a_node")
	assert.Equal(t, "c_node", a.SupersededBy, "chains collapse to the terminal id")
	assert.Empty(t, res.Report.Entries[0].StubsRepointed)
	assert.Equal(t, []string{"a_node"}, res.Report.Entries[1].StubsRepointed)

	m := res.Mechanisms[0]
	assert.Equal(t, []string{"c_node"}, m.SourceIDs)
	assert.Equal(t, []string{"c_node"}, m.TargetIDs)
	assert.Equal(t, []string{"c_node"}, m.ModeratorIDs)
}

func TestApply_RepointsExistingStubs(t *testing.T) {
	reg := mustRegistry(t, node("a_node"), node("b_node"), stubNode("old_a", "a_node"))

	res, err := Apply(reg, nil, []core.ConsolidationMapping{mapping("a_node", "b_node", core.OpMergeInto)})
	require.NoError(t, err)

	old, _ := res.Registry.Get("old_a")
	assert.Equal(t, "b_node", old.SupersededBy)
	assert.Equal(t, []string{"old_a"}, res.Report.Entries[0].StubsRepointed)
}

func TestApply_RewritesCompositeComponents(t *testing.T) {
	idx := node("housing_quality_index")
	idx.ValueType = "index"
	idx.Components = []string{"dampness", "lead_paint", "hazards"}
	reg := mustRegistry(t, idx, node("dampness"), node("lead_paint"), node("hazards"))

	res, err := Apply(reg, nil, []core.ConsolidationMapping{mapping("dampness", "hazards", core.OpMergeInto)})
	require.NoError(t, err)

	got, _ := res.Registry.Get("housing_quality_index")
	assert.Equal(t, []string{"hazards", "lead_paint"}, got.Components)
	assert.Equal(t, []string{"housing_quality_index"}, res.Report.Entries[0].CompositesRewritten)
}

func TestApply_IsAtomic(t *testing.T) {
	reg := mustRegistry(t, node("a_node"), node("b_node"), node("c_node"))
	mechs := []core.Mechanism{mech("m1", []string{"a_node"}, []string{"c_node"})}

	_, err := Apply(reg, mechs, []core.ConsolidationMapping{
		mapping("a_node", "b_node", core.OpMergeInto),
		mapping("c_node", "b_node", core.OpRename),
	})
	require.Error(t, err)

	n, _ := reg.Get("a_node")
	assert.Equal(t, core.StatusActive, n.Status)
	assert.Equal(t, []string{"a_node"}, mechs[0].SourceIDs)
}

func TestApply_InputMechanismsAreValidated(t *testing.T) {
	reg := mustRegistry(t, node("a_node"))
	bad := []core.Mechanism{mech("", []string{"a_node"}, nil)}

	_, err := Apply(reg, bad, nil)

	var schema *core.SchemaViolationError
	assert.True(t, errors.As(err, &schema))
}

func TestVerificationError_NamesFindings(t *testing.T) {
	err := &VerificationError{Findings: []integrity.Finding{
		{Kind: integrity.KindStale, NodeID: "a_node", MechanismIDs: []string{"m1", "m2"}},
	}}
	assert.Contains(t, err.Error(), "stale a_node (m1,m2)")
}
