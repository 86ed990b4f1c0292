package scanner

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/leapstack-labs/nodecheck/pkg/core"
)

// genBatch generates a batch of valid mechanisms whose ids carry prefix,
// so batches never collide on mechanism_id.
func genBatch(prefix string) gopter.Gen {
	nodeID := gen.IntRange(0, 12).Map(func(i int) string { return fmt.Sprintf("node_%d", i) })
	ids := gen.SliceOfN(3, nodeID)
	return gen.SliceOfN(4, gopter.CombineGens(ids, ids, ids)).Map(func(rows [][]any) []core.Mechanism {
		out := make([]core.Mechanism, 0, len(rows))
		for i, parts := range rows {
			out = append(out, core.Mechanism{
				ID:           fmt.Sprintf("%s_mech_%d", prefix, i),
				SourceIDs:    parts[0].([]string),
				TargetIDs:    parts[1].([]string),
				ModeratorIDs: parts[2].([]string),
			})
		}
		return out
	})
}

// TestScanProperties verifies that splitting mechanisms across files and
// scanning them in parallel never changes the combined reference map.
func TestScanProperties(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping property-based test in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("parallel scan equals sequential scan", prop.ForAll(
		func(f1, f2, f3 []core.Mechanism) bool {
			all := append(append(append([]core.Mechanism{}, f1...), f2...), f3...)
			sequential, err := Scan(all)
			if err != nil {
				return false
			}
			parallel, err := ScanAll(context.Background(), [][]core.Mechanism{f3, f1, f2}, 3)
			if err != nil {
				return false
			}
			return sequential.Equal(parallel)
		},
		genBatch("f1"),
		genBatch("f2"),
		genBatch("f3"),
	))

	properties.Property("merge is associative and commutative", prop.ForAll(
		func(f1, f2, f3 []core.Mechanism) bool {
			a, errA := Scan(f1)
			b, errB := Scan(f2)
			c, errC := Scan(f3)
			if errA != nil || errB != nil || errC != nil {
				return false
			}
			left := a.Merge(b).Merge(c)
			right := a.Merge(b.Merge(c))
			swapped := c.Merge(a).Merge(b)
			return left.Equal(right) && left.Equal(swapped)
		},
		genBatch("f1"),
		genBatch("f2"),
		genBatch("f3"),
	))

	properties.TestingRun(t)
}
