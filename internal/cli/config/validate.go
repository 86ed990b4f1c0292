package config

import (
	"fmt"
	"os"
	"slices"

	"github.com/leapstack-labs/nodecheck/pkg/core"
)

// OutputModes lists the accepted values of the output key.
var OutputModes = []string{"auto", "tsv", "table", "json"}

// Validate checks enumerated keys and numeric ranges.
func (c *Config) Validate() error {
	if _, ok := core.ParseSeverity(c.FailOn); !ok {
		return fmt.Errorf("invalid fail_on %q: must be ghost or warning", c.FailOn)
	}
	if !slices.Contains(OutputModes, c.Output) {
		return fmt.Errorf("invalid output %q: must be one of %v", c.Output, OutputModes)
	}
	if c.Parallelism < 1 {
		return fmt.Errorf("invalid parallelism %d: must be at least 1", c.Parallelism)
	}
	if c.Registry == "" {
		return fmt.Errorf("registry is required")
	}
	return nil
}

// FailSeverity is FailOn as a severity. Call after Validate.
func (c *Config) FailSeverity() core.Severity {
	s, _ := core.ParseSeverity(c.FailOn)
	return s
}

// ValidatePaths checks that the registry file and mechanisms directory exist.
func (c *Config) ValidatePaths() error {
	if _, err := os.Stat(c.Registry); os.IsNotExist(err) {
		return fmt.Errorf("registry file does not exist: %s\nHint: set registry in nodecheck.yaml or pass --registry", c.Registry)
	}
	info, err := os.Stat(c.MechanismsDir)
	if os.IsNotExist(err) {
		return fmt.Errorf("mechanisms directory does not exist: %s\nHint: set mechanisms_dir in nodecheck.yaml or pass --mechanisms", c.MechanismsDir)
	}
	if err == nil && !info.IsDir() {
		return fmt.Errorf("mechanisms path is not a directory: %s", c.MechanismsDir)
	}
	return nil
}
