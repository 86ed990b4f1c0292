package commands

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/nodecheck/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aliasMappings = `- old_id: mold_exposure
  new_id: indoor_environmental_hazards
  operation: alias
`

func consolidateProject(t *testing.T, mappings string) string {
	t.Helper()
	dir := newProject(t, map[string]string{
		"clean.yaml": cleanMechanisms,
		"mold.yaml":  ghostMechanism,
	})
	testutil.WriteFiles(t, dir, map[string]string{"mappings.yaml": mappings})
	return dir
}

func TestConsolidateCommand_ClosesTheLoop(t *testing.T) {
	dir := consolidateProject(t, aliasMappings)
	cfg := testConfig(dir)
	out := filepath.Join(dir, "out")

	stdout, _, err := execute(t, cfg, NewConsolidateCommand(),
		"--mappings", filepath.Join(dir, "mappings.yaml"),
		"--out-registry", filepath.Join(out, "nodes.yaml"),
		"--out-mechanisms", filepath.Join(out, "mechanisms"),
		"--report", filepath.Join(out, "report.json"),
	)
	require.NoError(t, err)
	assert.Empty(t, stdout, "report goes to --report")

	mold := readFile(t, filepath.Join(out, "mechanisms", "mold.yaml"))
	assert.Contains(t, mold, "indoor_environmental_hazards")
	assert.NotContains(t, mold, "mold_exposure")
	assert.Contains(t, mold, "name: Mold drives asthma")
	assert.Contains(t, mold, "quality: low")
	assert.FileExists(t, filepath.Join(out, "mechanisms", "clean.yaml"))

	nodes := readFile(t, filepath.Join(out, "nodes.yaml"))
	assert.Contains(t, nodes, "id: mold_exposure")
	assert.Contains(t, nodes, "superseded_by: indoor_environmental_hazards")

	report := readFile(t, filepath.Join(out, "report.json"))
	assert.Contains(t, report, `"old_id": "mold_exposure"`)
	assert.Contains(t, report, `"mechanisms_rewritten": 1`)

	// The inputs are untouched.
	assert.Contains(t, readFile(t, filepath.Join(dir, "mechanisms", "mold.yaml")), "mold_exposure")

	// The new snapshot checks clean.
	next := testConfig(dir)
	next.Registry = filepath.Join(out, "nodes.yaml")
	next.MechanismsDir = filepath.Join(out, "mechanisms")
	checkOut, _, err := execute(t, next, NewCheckCommand())
	require.NoError(t, err)
	assert.Empty(t, checkOut)
}

func TestConsolidateCommand_DryRun(t *testing.T) {
	dir := consolidateProject(t, aliasMappings)
	stdout, _, err := execute(t, testConfig(dir), NewConsolidateCommand(),
		"--mappings", filepath.Join(dir, "mappings.yaml"),
		"--dry-run",
	)
	require.NoError(t, err)
	assert.Equal(t, "mold_exposure\tindoor_environmental_hazards\talias\t1\tmold_to_asthma\n", stdout)
	assert.NoDirExists(t, filepath.Join(dir, "out"))
}

func TestConsolidateCommand_Failures(t *testing.T) {
	tests := []struct {
		name     string
		mappings string
		args     []string
		wantErr  string
	}{
		{
			name:     "unknown source",
			mappings: "- {old_id: no_such_node, new_id: asthma_ed_visits, operation: merge_into}\n",
			wantErr:  "unknown consolidation source ids: no_such_node",
		},
		{
			name: "conflicting targets",
			mappings: "- {old_id: lead_paint_prevalence, new_id: asthma_ed_visits, operation: merge_into}\n" +
				"- {old_id: lead_paint_prevalence, new_id: indoor_environmental_hazards, operation: merge_into}\n",
			wantErr: "lead_paint_prevalence maps to",
		},
		{
			name:     "split is unsupported",
			mappings: "- {old_id: lead_paint_prevalence, new_id: asthma_ed_visits, operation: split}\n",
			wantErr:  "unsupported consolidation operation",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := consolidateProject(t, tt.mappings)
			out := filepath.Join(dir, "out")
			_, _, err := execute(t, testConfig(dir), NewConsolidateCommand(),
				"--mappings", filepath.Join(dir, "mappings.yaml"),
				"--out-registry", filepath.Join(out, "nodes.yaml"),
				"--out-mechanisms", filepath.Join(out, "mechanisms"),
			)
			require.Error(t, err)
			assert.Equal(t, ExitErrors, ExitCode(err))
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.NoDirExists(t, out, "a failed batch writes nothing")
		})
	}
}

func TestConsolidateCommand_RequiresOutputs(t *testing.T) {
	dir := consolidateProject(t, aliasMappings)
	_, _, err := execute(t, testConfig(dir), NewConsolidateCommand(),
		"--mappings", filepath.Join(dir, "mappings.yaml"),
		"--out-registry", filepath.Join(dir, "out", "nodes.yaml"),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--out-mechanisms")
	assert.Contains(t, err.Error(), "required unless --dry-run")
}

func TestConsolidateCommand_RecordsHistory(t *testing.T) {
	dir := consolidateProject(t, aliasMappings)
	cfg := testConfig(dir)
	cfg.StatePath = filepath.Join(dir, ".nodecheck", "audit.db")
	out := filepath.Join(dir, "out")

	_, _, err := execute(t, cfg, NewConsolidateCommand(),
		"--mappings", filepath.Join(dir, "mappings.yaml"),
		"--out-registry", filepath.Join(out, "nodes.yaml"),
		"--out-mechanisms", filepath.Join(out, "mechanisms"),
		"--report", filepath.Join(out, "report.yaml"),
	)
	require.NoError(t, err)
	_, err = os.Stat(cfg.StatePath)
	require.NoError(t, err)

	stdout, _, err := execute(t, cfg, NewHistoryCommand())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "schema\t1", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "snapshot\t"))
	assert.Contains(t, stdout, "consolidate mappings.yaml (before)\t4\t")
	assert.Contains(t, stdout, "consolidate mappings.yaml\t5\t")
	assert.True(t, strings.HasPrefix(lines[3], "migration\t"))
	assert.Contains(t, lines[3], "\t1\t")
}
