package registry

import (
	"slices"

	"github.com/leapstack-labs/nodecheck/pkg/core"
)

// Change describes one node present in both snapshots with different fields.
type Change struct {
	ID     string    `json:"id" yaml:"id"`
	Fields []string  `json:"fields" yaml:"fields"`
	Before core.Node `json:"before" yaml:"before"`
	After  core.Node `json:"after" yaml:"after"`
}

// Delta is the difference between two registry snapshots. All lists are
// ordered by id.
type Delta struct {
	Added   []string `json:"added" yaml:"added"`
	Removed []string `json:"removed" yaml:"removed"`
	Changed []Change `json:"changed" yaml:"changed"`
}

// Empty reports whether the snapshots are identical.
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Diff compares two snapshots. Neither registry is modified.
func Diff(before, after *Registry) Delta {
	var d Delta
	for _, id := range before.ids {
		if !after.Has(id) {
			d.Removed = append(d.Removed, id)
		}
	}
	for _, id := range after.ids {
		old, ok := before.byID[id]
		if !ok {
			d.Added = append(d.Added, id)
			continue
		}
		cur := after.byID[id]
		if fields := changedFields(old, cur); len(fields) > 0 {
			d.Changed = append(d.Changed, Change{ID: id, Fields: fields, Before: old.Clone(), After: cur.Clone()})
		}
	}
	return d
}

func changedFields(a, b core.Node) []string {
	var fields []string
	if a.DisplayName != b.DisplayName {
		fields = append(fields, "display_name")
	}
	if a.Scale != b.Scale {
		fields = append(fields, "scale")
	}
	if a.ValueType != b.ValueType {
		fields = append(fields, "value_type")
	}
	if a.Unit != b.Unit {
		fields = append(fields, "unit")
	}
	if !slices.Equal(a.Domain, b.Domain) {
		fields = append(fields, "domain")
	}
	if a.Status != b.Status {
		fields = append(fields, "status")
	}
	if a.SupersededBy != b.SupersededBy {
		fields = append(fields, "superseded_by")
	}
	if !slices.Equal(a.Components, b.Components) {
		fields = append(fields, "components")
	}
	return fields
}
