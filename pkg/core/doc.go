// Package core defines the shared language of the nodecheck system.
//
// This package contains:
//   - Domain entities (Node, Mechanism, ConsolidationMapping)
//   - Enumerations (Scale, ValueType, Status, Operation, Role, Severity)
//   - Typed errors returned by the loader, scanner and consolidation mapper
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
