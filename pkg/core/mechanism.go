package core

import "slices"

// Role is the position a node id occupies in a mechanism.
type Role string

// Reference roles.
const (
	RoleSource    Role = "source"
	RoleTarget    Role = "target"
	RoleModerator Role = "moderator"
)

// Roles lists the roles in the order they appear on a mechanism record.
var Roles = []Role{RoleSource, RoleTarget, RoleModerator}

// Mechanism is a directed causal-pathway record naming source, target and
// moderator nodes. Every id it lists is a reference, never ownership.
type Mechanism struct {
	ID           string   `yaml:"mechanism_id" json:"mechanism_id"`
	SourceIDs    []string `yaml:"source_ids" json:"source_ids"`
	TargetIDs    []string `yaml:"target_ids" json:"target_ids"`
	ModeratorIDs []string `yaml:"moderator_ids,omitempty" json:"moderator_ids,omitempty"`

	// Extra holds fields the engine does not interpret (name, evidence, notes)
	// so rewritten files keep them.
	Extra map[string]any `yaml:",inline" json:"-"`

	// File is the path the record was read from, empty for in-memory records.
	File string `yaml:"-" json:"-"`
}

// IDsFor returns the ids listed under the given role.
func (m Mechanism) IDsFor(role Role) []string {
	switch role {
	case RoleSource:
		return m.SourceIDs
	case RoleTarget:
		return m.TargetIDs
	case RoleModerator:
		return m.ModeratorIDs
	default:
		return nil
	}
}

// References returns every referenced node id once, in record order.
func (m Mechanism) References() []string {
	seen := make(map[string]struct{})
	var refs []string
	for _, role := range Roles {
		for _, id := range m.IDsFor(role) {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			refs = append(refs, id)
		}
	}
	return refs
}

// Clone returns a deep copy of the mechanism. Extra is copied shallowly.
func (m Mechanism) Clone() Mechanism {
	m.SourceIDs = slices.Clone(m.SourceIDs)
	m.TargetIDs = slices.Clone(m.TargetIDs)
	m.ModeratorIDs = slices.Clone(m.ModeratorIDs)
	if m.Extra != nil {
		extra := make(map[string]any, len(m.Extra))
		for k, v := range m.Extra {
			extra[k] = v
		}
		m.Extra = extra
	}
	return m
}

// Rewrite returns a copy with every id found in renames replaced by its
// mapped value. Duplicates produced by the rewrite are dropped, keeping the
// first occurrence. The bool reports whether anything changed.
func (m Mechanism) Rewrite(renames map[string]string) (Mechanism, bool) {
	out := m.Clone()
	changed := false
	rewrite := func(ids []string) []string {
		if len(ids) == 0 {
			return ids
		}
		seen := make(map[string]struct{}, len(ids))
		result := make([]string, 0, len(ids))
		for _, id := range ids {
			if to, ok := renames[id]; ok {
				id = to
				changed = true
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			result = append(result, id)
		}
		return result
	}
	out.SourceIDs = rewrite(out.SourceIDs)
	out.TargetIDs = rewrite(out.TargetIDs)
	out.ModeratorIDs = rewrite(out.ModeratorIDs)
	return out, changed
}
