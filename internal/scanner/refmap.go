package scanner

import (
	"maps"
	"sort"

	"github.com/leapstack-labs/nodecheck/pkg/core"
)

// set is an unordered collection of ids.
type set map[string]struct{}

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// index maps a key to the set of ids associated with it.
type index map[string]set

func (ix index) add(key, id string) {
	s, ok := ix[key]
	if !ok {
		s = make(set)
		ix[key] = s
	}
	s[id] = struct{}{}
}

// union adds every entry of other into ix.
func (ix index) union(other index) {
	for key, ids := range other {
		for id := range ids {
			ix.add(key, id)
		}
	}
}

func (ix index) clone() index {
	out := make(index, len(ix))
	for key, ids := range ix {
		out[key] = maps.Clone(ids)
	}
	return out
}

func (ix index) equal(other index) bool {
	return maps.EqualFunc(ix, other, func(a, b set) bool { return maps.Equal(a, b) })
}

func (ix index) keys() []string {
	keys := make([]string, 0, len(ix))
	for k := range ix {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ReferenceMap records which mechanisms reference which node ids, per role
// and across all roles, plus the reverse mapping. It makes no judgement on
// whether the ids exist.
//
// A ReferenceMap is not modified after Scan or Merge returns it.
type ReferenceMap struct {
	byRole      map[core.Role]index // role -> node id -> mechanism ids
	anyRole     index               // node id -> mechanism ids
	byMechanism index               // mechanism id -> node ids
}

// NewReferenceMap returns an empty map.
func NewReferenceMap() *ReferenceMap {
	m := &ReferenceMap{
		byRole:      make(map[core.Role]index, len(core.Roles)),
		anyRole:     make(index),
		byMechanism: make(index),
	}
	for _, role := range core.Roles {
		m.byRole[role] = make(index)
	}
	return m
}

func (m *ReferenceMap) add(mech core.Mechanism) {
	// a mechanism with no references still belongs in the reverse map
	if _, ok := m.byMechanism[mech.ID]; !ok {
		m.byMechanism[mech.ID] = make(set)
	}
	for _, role := range core.Roles {
		for _, nodeID := range mech.IDsFor(role) {
			m.byRole[role].add(nodeID, mech.ID)
			m.anyRole.add(nodeID, mech.ID)
			m.byMechanism.add(mech.ID, nodeID)
		}
	}
}

// Mechanisms returns the mechanism ids referencing nodeID in any role, sorted.
func (m *ReferenceMap) Mechanisms(nodeID string) []string {
	return m.anyRole[nodeID].sorted()
}

// MechanismsInRole returns the mechanism ids referencing nodeID in role, sorted.
func (m *ReferenceMap) MechanismsInRole(nodeID string, role core.Role) []string {
	return m.byRole[role][nodeID].sorted()
}

// IsReferenced reports whether any mechanism references nodeID.
func (m *ReferenceMap) IsReferenced(nodeID string) bool {
	return len(m.anyRole[nodeID]) > 0
}

// NodeIDs returns every referenced node id, sorted.
func (m *ReferenceMap) NodeIDs() []string {
	return m.anyRole.keys()
}

// MechanismIDs returns every scanned mechanism id, sorted.
func (m *ReferenceMap) MechanismIDs() []string {
	return m.byMechanism.keys()
}

// NodesReferencedBy returns the node ids a mechanism references, sorted.
func (m *ReferenceMap) NodesReferencedBy(mechanismID string) []string {
	return m.byMechanism[mechanismID].sorted()
}

// Merge returns the union of m and other. Neither input is modified.
// Merge is associative and commutative, so per-file scans can be combined
// in any order.
func (m *ReferenceMap) Merge(other *ReferenceMap) *ReferenceMap {
	out := m.clone()
	if other == nil {
		return out
	}
	for _, role := range core.Roles {
		out.byRole[role].union(other.byRole[role])
	}
	out.anyRole.union(other.anyRole)
	out.byMechanism.union(other.byMechanism)
	return out
}

func (m *ReferenceMap) clone() *ReferenceMap {
	out := &ReferenceMap{
		byRole:      make(map[core.Role]index, len(core.Roles)),
		anyRole:     m.anyRole.clone(),
		byMechanism: m.byMechanism.clone(),
	}
	for _, role := range core.Roles {
		out.byRole[role] = m.byRole[role].clone()
	}
	return out
}

// Equal reports whether two maps hold the same references.
func (m *ReferenceMap) Equal(other *ReferenceMap) bool {
	if other == nil {
		return false
	}
	for _, role := range core.Roles {
		if !m.byRole[role].equal(other.byRole[role]) {
			return false
		}
	}
	return m.anyRole.equal(other.anyRole) && m.byMechanism.equal(other.byMechanism)
}

// Roles returns the roles in which nodeID is referenced, in record order.
func (m *ReferenceMap) Roles(nodeID string) []core.Role {
	var roles []core.Role
	for _, role := range core.Roles {
		if len(m.byRole[role][nodeID]) > 0 {
			roles = append(roles, role)
		}
	}
	return roles
}
