package core

import "strings"

// Severity indicates how an integrity finding affects a gate.
type Severity int

// Severity levels for findings.
const (
	// SeverityError fails any gate.
	SeverityError Severity = iota
	// SeverityWarning fails only gates configured to fail on warnings.
	SeverityWarning
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// ParseSeverity converts a string to a Severity value.
// Returns the severity and true if valid, or SeverityError and false if invalid.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(s) {
	case "error", "ghost":
		return SeverityError, true
	case "warning", "orphan":
		return SeverityWarning, true
	default:
		return SeverityError, false
	}
}
