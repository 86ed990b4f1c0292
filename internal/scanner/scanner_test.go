package scanner

import (
	"context"
	"testing"

	"github.com/leapstack-labs/nodecheck/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mech(id string, sources, targets, moderators []string) core.Mechanism {
	return core.Mechanism{ID: id, SourceIDs: sources, TargetIDs: targets, ModeratorIDs: moderators}
}

func TestScan_BuildsRoleAndReverseMaps(t *testing.T) {
	refs, err := Scan([]core.Mechanism{
		mech("asthma_mech_1", []string{"indoor_dampness_exposure"}, []string{"asthma_ed_visits"}, []string{"housing_quality"}),
		mech("asthma_mech_2", []string{"housing_quality"}, []string{"asthma_ed_visits"}, nil),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"asthma_ed_visits", "housing_quality", "indoor_dampness_exposure"}, refs.NodeIDs())
	assert.Equal(t, []string{"asthma_mech_1", "asthma_mech_2"}, refs.MechanismIDs())

	assert.Equal(t, []string{"asthma_mech_1", "asthma_mech_2"}, refs.Mechanisms("housing_quality"))
	assert.Equal(t, []string{"asthma_mech_2"}, refs.MechanismsInRole("housing_quality", core.RoleSource))
	assert.Equal(t, []string{"asthma_mech_1"}, refs.MechanismsInRole("housing_quality", core.RoleModerator))
	assert.Empty(t, refs.MechanismsInRole("housing_quality", core.RoleTarget))
	assert.Equal(t, []core.Role{core.RoleSource, core.RoleModerator}, refs.Roles("housing_quality"))

	assert.Equal(t, []string{"asthma_ed_visits", "housing_quality", "indoor_dampness_exposure"}, refs.NodesReferencedBy("asthma_mech_1"))
	assert.True(t, refs.IsReferenced("asthma_ed_visits"))
	assert.False(t, refs.IsReferenced("medicaid_expansion"))
}

func TestScan_SchemaViolations(t *testing.T) {
	records := []core.Mechanism{
		mech("ok", []string{"a"}, []string{"b"}, nil),
		mech("no_sources", nil, []string{"b"}, nil),
		mech("no_targets", []string{"a"}, []string{}, nil),
		mech("blank_moderator", []string{"a"}, []string{"b"}, []string{""}),
		mech("ok", []string{"a"}, []string{"c"}, nil),
		mech("", []string{"a"}, []string{"b"}, nil),
	}
	for i := range records {
		records[i].File = "mechanisms/asthma.yaml"
	}

	_, err := Scan(records)
	var schemaErr *core.SchemaViolationError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "mechanisms/asthma.yaml", schemaErr.Source)

	got := make(map[int]string)
	for _, v := range schemaErr.Violations {
		got[v.Index] = v.Field
	}
	assert.Equal(t, map[int]string{
		1: "source_ids",
		2: "target_ids",
		3: "moderator_ids[0]",
		4: "mechanism_id",
		5: "mechanism_id",
	}, got)
}

func TestScan_ModeratorsMayBeEmpty(t *testing.T) {
	refs, err := Scan([]core.Mechanism{mech("m", []string{"a"}, []string{"b"}, nil)})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, refs.NodeIDs())
}

func TestReferenceMap_MergeIsUnionAndPure(t *testing.T) {
	left, err := Scan([]core.Mechanism{mech("m1", []string{"a"}, []string{"b"}, nil)})
	require.NoError(t, err)
	right, err := Scan([]core.Mechanism{mech("m2", []string{"a"}, []string{"c"}, nil)})
	require.NoError(t, err)

	merged := left.Merge(right)

	assert.Equal(t, []string{"m1", "m2"}, merged.Mechanisms("a"))
	assert.Equal(t, []string{"m1"}, left.Mechanisms("a"), "inputs are not modified")
	assert.True(t, merged.Equal(right.Merge(left)))
	assert.True(t, left.Equal(left.Merge(nil)))
	assert.False(t, left.Equal(nil))
}

func TestScanAll_MatchesSequentialScan(t *testing.T) {
	f1 := []core.Mechanism{
		mech("m1", []string{"a"}, []string{"b"}, nil),
		mech("m2", []string{"b"}, []string{"c"}, []string{"d"}),
	}
	f2 := []core.Mechanism{
		mech("m3", []string{"a", "c"}, []string{"e"}, nil),
	}

	sequential, err := Scan(append(append([]core.Mechanism{}, f1...), f2...))
	require.NoError(t, err)

	parallel, err := ScanAll(context.Background(), [][]core.Mechanism{f1, f2}, 2)
	require.NoError(t, err)

	assert.True(t, sequential.Equal(parallel))
}

func TestScanAll_FailsWithoutPartialResult(t *testing.T) {
	good := []core.Mechanism{mech("m1", []string{"a"}, []string{"b"}, nil)}
	bad := []core.Mechanism{mech("m2", nil, []string{"b"}, nil)}

	refs, err := ScanAll(context.Background(), [][]core.Mechanism{good, bad}, 0)
	assert.Nil(t, refs)
	var schemaErr *core.SchemaViolationError
	assert.ErrorAs(t, err, &schemaErr)
}

func TestScanAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	refs, err := ScanAll(ctx, [][]core.Mechanism{{mech("m1", []string{"a"}, []string{"b"}, nil)}}, 1)
	assert.Nil(t, refs)
	assert.ErrorIs(t, err, context.Canceled)
}
