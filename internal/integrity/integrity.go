// Package integrity cross-references scanned mechanism references against
// the node registry.
//
// Check is a pure function of its inputs: it never mutates the registry or
// the reference map, and identical inputs always produce an identical
// Report ordered by node id.
package integrity

import (
	"github.com/leapstack-labs/nodecheck/internal/registry"
	"github.com/leapstack-labs/nodecheck/internal/scanner"
	"github.com/leapstack-labs/nodecheck/pkg/core"
)

// Kind classifies a finding.
type Kind string

// Finding kinds.
const (
	// KindGhost is a referenced id that is undefined or deprecated.
	KindGhost Kind = "ghost"
	// KindStale is a referenced id that was merged into another node.
	KindStale Kind = "stale"
	// KindOrphan is an active node no mechanism references.
	KindOrphan Kind = "orphan"
)

// Severity returns the gate severity of the kind.
func (k Kind) Severity() core.Severity {
	if k == KindOrphan {
		return core.SeverityWarning
	}
	return core.SeverityError
}

// Ghost reasons.
const (
	ReasonUndefined  = "undefined"
	ReasonDeprecated = "deprecated"
)

// Finding is one registry/mechanism mismatch.
type Finding struct {
	Kind   Kind   `json:"kind" yaml:"kind"`
	NodeID string `json:"node_id" yaml:"node_id"`
	// MechanismIDs lists referencing mechanisms, sorted. Empty for orphans.
	MechanismIDs []string `json:"mechanism_ids" yaml:"mechanism_ids"`
	// Canonical is the active id a stale reference resolves to.
	Canonical string `json:"canonical,omitempty" yaml:"canonical,omitempty"`
	// Reason explains a ghost: undefined or deprecated.
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Report holds the three disjoint finding classes, each ordered by node id.
type Report struct {
	Ghosts  []Finding `json:"ghosts" yaml:"ghosts"`
	Stale   []Finding `json:"stale" yaml:"stale"`
	Orphans []Finding `json:"orphans" yaml:"orphans"`
}

// Options tunes a check.
type Options struct {
	// IgnoreOrphans lists active ids exempt from orphan warnings.
	IgnoreOrphans []string
}

// Check compares the registry with the reference map.
//
// A referenced id is a ghost when the registry lacks it or marks it
// deprecated, and stale when it is a merged stub. An active node is an
// orphan when neither it nor any stub merged into it is referenced.
func Check(reg *registry.Registry, refs *scanner.ReferenceMap, opts Options) Report {
	report := Report{
		Ghosts:  []Finding{},
		Stale:   []Finding{},
		Orphans: []Finding{},
	}

	// active ids reached directly or through a merged stub
	reached := make(map[string]struct{})

	for _, id := range refs.NodeIDs() {
		mechs := refs.Mechanisms(id)
		node, ok := reg.Get(id)
		if canonical, resolves := reg.Canonical(id); resolves {
			reached[canonical] = struct{}{}
		}
		switch {
		case !ok:
			report.Ghosts = append(report.Ghosts, Finding{Kind: KindGhost, NodeID: id, MechanismIDs: mechs, Reason: ReasonUndefined})
		case node.Status == core.StatusDeprecated:
			report.Ghosts = append(report.Ghosts, Finding{Kind: KindGhost, NodeID: id, MechanismIDs: mechs, Reason: ReasonDeprecated})
		case node.Status == core.StatusMerged:
			report.Stale = append(report.Stale, Finding{Kind: KindStale, NodeID: id, MechanismIDs: mechs, Canonical: node.SupersededBy})
		}
	}

	ignored := make(map[string]struct{}, len(opts.IgnoreOrphans))
	for _, id := range opts.IgnoreOrphans {
		ignored[id] = struct{}{}
	}

	for _, id := range reg.WithStatus(core.StatusActive) {
		if _, skip := ignored[id]; skip {
			continue
		}
		if _, ok := reached[id]; ok {
			continue
		}
		report.Orphans = append(report.Orphans, Finding{Kind: KindOrphan, NodeID: id, MechanismIDs: []string{}})
	}

	return report
}

// Findings returns every finding: ghosts, then stale, then orphans.
func (r Report) Findings() []Finding {
	out := make([]Finding, 0, len(r.Ghosts)+len(r.Stale)+len(r.Orphans))
	out = append(out, r.Ghosts...)
	out = append(out, r.Stale...)
	out = append(out, r.Orphans...)
	return out
}

// HasErrors reports whether any ghost or stale finding exists.
func (r Report) HasErrors() bool {
	return len(r.Ghosts) > 0 || len(r.Stale) > 0
}

// HasWarnings reports whether any orphan finding exists.
func (r Report) HasWarnings() bool {
	return len(r.Orphans) > 0
}

// Clean reports whether the report has no findings at all.
func (r Report) Clean() bool {
	return !r.HasErrors() && !r.HasWarnings()
}

// Concerning returns the ghost and stale findings whose node id is in ids.
func (r Report) Concerning(ids []string) []Finding {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []Finding
	for _, f := range append(append([]Finding{}, r.Ghosts...), r.Stale...) {
		if _, ok := want[f.NodeID]; ok {
			out = append(out, f)
		}
	}
	return out
}
