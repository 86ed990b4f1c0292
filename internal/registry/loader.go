package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/nodecheck/internal/dag"
	"github.com/leapstack-labs/nodecheck/internal/validation"
	"github.com/leapstack-labs/nodecheck/pkg/core"
)

// RawNode is a node record as read from an external registry file, before
// any enum or id checks.
type RawNode struct {
	ID           string   `yaml:"id" json:"id" validate:"required,node_id"`
	DisplayName  string   `yaml:"display_name" json:"display_name" validate:"nonblank"`
	Scale        string   `yaml:"scale" json:"scale" validate:"required,scale"`
	ValueType    string   `yaml:"value_type" json:"value_type" validate:"required,value_type"`
	Unit         string   `yaml:"unit" json:"unit" validate:"nonblank"`
	Domain       []string `yaml:"domain" json:"domain" validate:"min=1,dive,nonblank"`
	Status       string   `yaml:"status" json:"status" validate:"required,status"`
	SupersededBy string   `yaml:"superseded_by,omitempty" json:"superseded_by,omitempty" validate:"omitempty,node_id"`
	Components   []string `yaml:"components,omitempty" json:"components,omitempty" validate:"omitempty,dive,node_id"`
}

// FromNode converts a typed node back into its record form.
func FromNode(n core.Node) RawNode {
	return RawNode{
		ID:           n.ID,
		DisplayName:  n.DisplayName,
		Scale:        string(n.Scale),
		ValueType:    string(n.ValueType),
		Unit:         n.Unit,
		Domain:       append([]string(nil), n.Domain...),
		Status:       string(n.Status),
		SupersededBy: n.SupersededBy,
		Components:   append([]string(nil), n.Components...),
	}
}

// Load validates raw node records and builds a Registry.
//
// Checks run in phases and each phase reports every problem it finds:
//  1. schema (missing fields, unknown enums, bad ids): *core.SchemaViolationError
//  2. duplicate ids: *core.DuplicateIDError
//  3. composites and merges: *core.BrokenCompositeError and/or
//     *core.UnresolvableMergeError, joined when both occur
func Load(records []RawNode) (*Registry, error) {
	nodes, err := convert(records)
	if err != nil {
		return nil, err
	}
	return Build(nodes)
}

// convert runs schema validation and turns records into typed nodes.
func convert(records []RawNode) ([]core.Node, error) {
	var violations []core.Violation
	nodes := make([]core.Node, 0, len(records))

	for i, rec := range records {
		rec.Unit = strings.TrimSpace(rec.Unit)
		rec.DisplayName = strings.TrimSpace(rec.DisplayName)

		v := validation.Struct(rec, i, rec.ID)
		switch {
		case rec.Status == string(core.StatusMerged) && rec.SupersededBy == "":
			v = append(v, core.Violation{Index: i, ID: rec.ID, Field: "superseded_by", Message: "is required for merged nodes"})
		case rec.Status != string(core.StatusMerged) && rec.SupersededBy != "":
			v = append(v, core.Violation{Index: i, ID: rec.ID, Field: "superseded_by", Message: fmt.Sprintf("is only allowed on merged nodes (status %q)", rec.Status)})
		}
		if len(v) > 0 {
			violations = append(violations, v...)
			continue
		}

		nodes = append(nodes, core.Node{
			ID:           rec.ID,
			DisplayName:  rec.DisplayName,
			Scale:        core.Scale(rec.Scale),
			ValueType:    core.ValueType(rec.ValueType),
			Unit:         rec.Unit,
			Domain:       dedupe(rec.Domain),
			Status:       core.Status(rec.Status),
			SupersededBy: rec.SupersededBy,
			Components:   append([]string(nil), rec.Components...),
		})
	}

	if len(violations) > 0 {
		return nil, &core.SchemaViolationError{Source: "nodes", Violations: violations}
	}
	return nodes, nil
}

// dedupe drops repeated domain tags, keeping first-seen order.
func dedupe(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Build checks the structural invariants of already-typed nodes and
// returns a Registry. Merge chains are collapsed so every merged node
// points directly at an active node.
func Build(nodes []core.Node) (*Registry, error) {
	if dups := duplicateIDs(nodes); len(dups) > 0 {
		return nil, &core.DuplicateIDError{IDs: dups}
	}

	byID := make(map[string]core.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n.Clone()
	}

	compositeErr := checkComposites(byID)
	resolved, mergeErr := resolveMerges(byID)
	if err := errors.Join(compositeErr, mergeErr); err != nil {
		return nil, err
	}

	out := make([]core.Node, 0, len(byID))
	for id, n := range byID {
		if target, ok := resolved[id]; ok {
			n.SupersededBy = target
		}
		out = append(out, n)
	}
	return newRegistry(out), nil
}

// duplicateIDs returns every id seen more than once, sorted.
func duplicateIDs(nodes []core.Node) []string {
	counts := make(map[string]int, len(nodes))
	for _, n := range nodes {
		counts[n.ID]++
	}
	var dups []string
	for id, c := range counts {
		if c > 1 {
			dups = append(dups, id)
		}
	}
	sort.Strings(dups)
	return dups
}

// checkComposites verifies every component resolves, no node lists itself,
// and the component graph is acyclic.
func checkComposites(byID map[string]core.Node) error {
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	g := dag.NewGraph()
	broken := &core.BrokenCompositeError{}

	for _, id := range ids {
		n := byID[id]
		if !n.IsComposite() {
			continue
		}
		g.AddNode(id)
		selfRef := false
		for _, child := range n.Components {
			switch {
			case child == id:
				selfRef = true
			case !hasNode(byID, child):
				broken.Missing = append(broken.Missing, core.MissingComponent{NodeID: id, ComponentID: child})
			default:
				g.AddNode(child)
				_ = g.AddEdge(id, child)
			}
		}
		if selfRef {
			broken.SelfRefs = append(broken.SelfRefs, id)
		}
	}

	broken.Cycles = g.Cycles()

	if len(broken.Missing) == 0 && len(broken.SelfRefs) == 0 && len(broken.Cycles) == 0 {
		return nil
	}
	return broken
}

func hasNode(byID map[string]core.Node, id string) bool {
	_, ok := byID[id]
	return ok
}

// resolveMerges follows each merged node's superseded_by chain for at most
// len(byID) hops and returns merged id -> terminal active id.
func resolveMerges(byID map[string]core.Node) (map[string]string, error) {
	ids := make([]string, 0, len(byID))
	for id, n := range byID {
		if n.Status == core.StatusMerged {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	maxHops := len(byID)
	resolved := make(map[string]string, len(ids))
	unresolvable := &core.UnresolvableMergeError{}

	for _, id := range ids {
		chain := []string{id}
		visited := map[string]bool{id: true}
		cur := byID[id]
		var problem string

		for hops := 0; ; hops++ {
			if hops >= maxHops {
				problem = fmt.Sprintf("chain exceeds %d hops", maxHops)
				break
			}
			next := cur.SupersededBy
			if next == "" {
				problem = "merged node has no superseded_by"
				break
			}
			chain = append(chain, next)
			if visited[next] {
				problem = "merge cycle"
				break
			}
			visited[next] = true

			target, ok := byID[next]
			if !ok {
				problem = fmt.Sprintf("superseded_by %s is not defined", next)
				break
			}
			if target.Status == core.StatusActive {
				resolved[id] = next
				break
			}
			if target.Status != core.StatusMerged {
				problem = fmt.Sprintf("chain ends at %s node %s", target.Status, next)
				break
			}
			cur = target
		}

		if problem != "" {
			unresolvable.Problems = append(unresolvable.Problems, core.MergeProblem{NodeID: id, Chain: chain, Reason: problem})
		}
	}

	if len(unresolvable.Problems) > 0 {
		return nil, unresolvable
	}
	return resolved, nil
}
