package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFiles creates files under dir from a relative path -> content map,
// making parent directories as needed.
func WriteFiles(t testing.TB, dir string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", path, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
}

// NewProject returns a temp directory populated with files.
func NewProject(t testing.TB, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	WriteFiles(t, dir, files)
	return dir
}

// RegistryYAML is a small valid registry used across package tests.
const RegistryYAML = `nodes:
  - id: indoor_environmental_hazards
    display_name: Indoor environmental hazards
    scale: built-environment
    value_type: proportion
    unit: percent of housing units
    domain: [housing, health]
    status: active
  - id: asthma_ed_visits
    display_name: Asthma ED visits
    scale: individual
    value_type: rate
    unit: visits per 10k
    domain: [health]
    status: active
  - id: indoor_dampness_exposure
    display_name: Indoor dampness exposure
    scale: built-environment
    value_type: proportion
    unit: percent of housing units
    domain: [housing]
    status: merged
    superseded_by: indoor_environmental_hazards
  - id: lead_paint_prevalence
    display_name: Lead paint prevalence
    scale: built-environment
    value_type: proportion
    unit: percent of housing units
    domain: [housing]
    status: active
`
