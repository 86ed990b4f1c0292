// Package scanner extracts node-id references from mechanism records.
// It is purely structural: it never consults the registry, so reference
// extraction can be tested and parallelized independently of node content.
package scanner

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/nodecheck/internal/validation"
	"github.com/leapstack-labs/nodecheck/pkg/core"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the fan-out used by ScanAll when workers <= 0.
const DefaultWorkers = 4

// mechanismRecord carries the validation rules for a mechanism.
type mechanismRecord struct {
	ID           string   `yaml:"mechanism_id" validate:"nonblank"`
	SourceIDs    []string `yaml:"source_ids" validate:"min=1,dive,nonblank"`
	TargetIDs    []string `yaml:"target_ids" validate:"min=1,dive,nonblank"`
	ModeratorIDs []string `yaml:"moderator_ids" validate:"omitempty,dive,nonblank"`
}

// Scan builds a ReferenceMap from one batch of mechanism records.
// Records with an empty mechanism_id, source_ids or target_ids, blank ids,
// or a mechanism_id repeated within the batch fail the whole batch with a
// *core.SchemaViolationError listing every problem.
func Scan(records []core.Mechanism) (*ReferenceMap, error) {
	var violations []core.Violation
	seen := make(map[string]int, len(records))

	for i, mech := range records {
		v := validation.Struct(mechanismRecord{
			ID:           mech.ID,
			SourceIDs:    mech.SourceIDs,
			TargetIDs:    mech.TargetIDs,
			ModeratorIDs: mech.ModeratorIDs,
		}, i, mech.ID)
		if first, dup := seen[mech.ID]; dup && mech.ID != "" {
			v = append(v, core.Violation{
				Index:   i,
				ID:      mech.ID,
				Field:   "mechanism_id",
				Message: fmt.Sprintf("duplicates record %d", first),
			})
		} else {
			seen[mech.ID] = i
		}
		violations = append(violations, v...)
	}

	if len(violations) > 0 {
		return nil, &core.SchemaViolationError{Source: batchSource(records), Violations: violations}
	}

	refs := NewReferenceMap()
	for _, mech := range records {
		refs.add(mech)
	}
	return refs, nil
}

// batchSource names a batch by its file when all records share one.
func batchSource(records []core.Mechanism) string {
	if len(records) == 0 {
		return "mechanisms"
	}
	file := records[0].File
	for _, r := range records[1:] {
		if r.File != file {
			return "mechanisms"
		}
	}
	if file == "" {
		return "mechanisms"
	}
	return file
}

// ScanAll scans independent batches (typically one per file) concurrently
// and unions the results. The output is identical to scanning the batches
// sequentially and merging in any order. The first failing batch cancels
// the rest; no partial map is returned.
func ScanAll(ctx context.Context, batches [][]core.Mechanism, workers int) (*ReferenceMap, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	results := make([]*ReferenceMap, len(batches))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, batch := range batches {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			refs, err := Scan(batch)
			if err != nil {
				return err
			}
			results[i] = refs
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	combined := NewReferenceMap()
	for _, refs := range results {
		combined = combined.Merge(refs)
	}
	return combined, nil
}
