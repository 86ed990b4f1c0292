package core

import (
	"regexp"
	"slices"
)

// IDPattern is the required shape of every node identifier.
var IDPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// ValidID reports whether id matches IDPattern.
func ValidID(id string) bool {
	return IDPattern.MatchString(id)
}

// Scale is the causal-distance tier a node belongs to.
type Scale string

// Scale tiers, ordered from structural determinants to crisis endpoints.
const (
	ScaleStructural       Scale = "structural"
	ScaleBuiltEnvironment Scale = "built-environment"
	ScaleInstitutional    Scale = "institutional"
	ScaleIndividual       Scale = "individual"
	ScaleBehavioral       Scale = "behavioral"
	ScaleIntermediate     Scale = "intermediate"
	ScaleCrisis           Scale = "crisis"
)

// Scales lists every recognized scale in tier order.
var Scales = []Scale{
	ScaleStructural,
	ScaleBuiltEnvironment,
	ScaleInstitutional,
	ScaleIndividual,
	ScaleBehavioral,
	ScaleIntermediate,
	ScaleCrisis,
}

// ParseScale converts a string to a Scale.
// Returns false for anything that is not an exact tier name; values are never defaulted.
func ParseScale(s string) (Scale, bool) {
	sc := Scale(s)
	return sc, slices.Contains(Scales, sc)
}

// ValueType is the measurement type of a node.
type ValueType string

// Value types.
const (
	ValueBinary      ValueType = "binary"
	ValueCount       ValueType = "count"
	ValueRate        ValueType = "rate"
	ValueProportion  ValueType = "proportion"
	ValueReal        ValueType = "real"
	ValueIndex       ValueType = "index"
	ValueCategorical ValueType = "categorical"
)

// ValueTypes lists every recognized value type.
var ValueTypes = []ValueType{
	ValueBinary,
	ValueCount,
	ValueRate,
	ValueProportion,
	ValueReal,
	ValueIndex,
	ValueCategorical,
}

// ParseValueType converts a string to a ValueType.
func ParseValueType(s string) (ValueType, bool) {
	vt := ValueType(s)
	return vt, slices.Contains(ValueTypes, vt)
}

// Status is the lifecycle state of a node.
type Status string

// Node statuses.
const (
	StatusActive     Status = "active"
	StatusDeprecated Status = "deprecated"
	StatusMerged     Status = "merged"
)

// Statuses lists every recognized status.
var Statuses = []Status{StatusActive, StatusDeprecated, StatusMerged}

// ParseStatus converts a string to a Status.
func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	return st, slices.Contains(Statuses, st)
}

// Node is a single measurable variable in the taxonomy.
// Nodes are shared by id; mechanisms reference them but never own them.
type Node struct {
	ID          string    `yaml:"id" json:"id"`
	DisplayName string    `yaml:"display_name" json:"display_name"`
	Scale       Scale     `yaml:"scale" json:"scale"`
	ValueType   ValueType `yaml:"value_type" json:"value_type"`
	Unit        string    `yaml:"unit" json:"unit"`
	Domain      []string  `yaml:"domain" json:"domain"`
	Status      Status    `yaml:"status" json:"status"`
	// SupersededBy is set only on merged nodes and always names an active node.
	SupersededBy string `yaml:"superseded_by,omitempty" json:"superseded_by,omitempty"`
	// Components lists child node ids for composite indices, in declared order.
	Components []string `yaml:"components,omitempty" json:"components,omitempty"`
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	n.Domain = slices.Clone(n.Domain)
	n.Components = slices.Clone(n.Components)
	return n
}

// IsComposite reports whether the node declares components.
func (n Node) IsComposite() bool {
	return len(n.Components) > 0
}

// Equal reports whether two nodes carry identical field values.
func (n Node) Equal(o Node) bool {
	return n.ID == o.ID &&
		n.DisplayName == o.DisplayName &&
		n.Scale == o.Scale &&
		n.ValueType == o.ValueType &&
		n.Unit == o.Unit &&
		slices.Equal(n.Domain, o.Domain) &&
		n.Status == o.Status &&
		n.SupersededBy == o.SupersededBy &&
		slices.Equal(n.Components, o.Components)
}
