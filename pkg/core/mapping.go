package core

import "fmt"

// Operation is the kind of consolidation a mapping declares.
type Operation string

// Consolidation operations.
const (
	// OpRename moves an active node to a new id and leaves a merged stub behind.
	OpRename Operation = "rename"
	// OpMergeInto folds a node into an existing active node.
	OpMergeInto Operation = "merge_into"
	// OpAlias registers an id that mechanisms reference but the registry lacks
	// as a merged stub of an existing active node.
	OpAlias Operation = "alias"
	// OpSplit is recognized but not supported.
	OpSplit Operation = "split"
)

// ParseOperation converts a string to an Operation. Split parses but is
// rejected later by the mapper.
func ParseOperation(s string) (Operation, bool) {
	switch op := Operation(s); op {
	case OpRename, OpMergeInto, OpAlias, OpSplit:
		return op, true
	default:
		return op, false
	}
}

// ConsolidationMapping is one declared rename or merge between two node ids.
type ConsolidationMapping struct {
	OldID     string    `yaml:"old_id" json:"old_id"`
	NewID     string    `yaml:"new_id" json:"new_id"`
	Operation Operation `yaml:"operation" json:"operation"`
}

func (m ConsolidationMapping) String() string {
	return fmt.Sprintf("%s -> %s (%s)", m.OldID, m.NewID, m.Operation)
}
