// Package main provides tests for the nodecheck CLI.
package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/nodecheck/internal/cli"
	"github.com/leapstack-labs/nodecheck/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mechanisms = `- mechanism_id: hazards_to_asthma
  source_ids: [indoor_environmental_hazards]
  target_ids: [asthma_ed_visits]
- mechanism_id: damp_to_asthma
  source_ids: [indoor_dampness_exposure]
  target_ids: [asthma_ed_visits]
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func project(t *testing.T) string {
	t.Helper()
	dir := testutil.NewProject(t, map[string]string{
		"registry/nodes.yaml":  testutil.RegistryYAML,
		"mechanisms/main.yaml": mechanisms,
	})
	t.Chdir(dir)
	return dir
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "nodecheck v"+cli.Version)
}

func TestHelpCommand(t *testing.T) {
	out, err := run(t, "--help")
	require.NoError(t, err)
	for _, want := range []string{"check", "consolidate", "diff", "history", "snapshot", "version", "completion"} {
		assert.Contains(t, out, want)
	}
}

func TestCompletionCommand(t *testing.T) {
	out, err := run(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "nodecheck")
}

func TestCheck_DefaultPaths(t *testing.T) {
	project(t)
	out, err := run(t, "check", "-o", "tsv")
	assert.Equal(t, 2, cli.ExitCode(err))
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, []string{
		"stale\tindoor_dampness_exposure\tdamp_to_asthma",
		"orphan\tlead_paint_prevalence\t-",
	}, lines)
}

func TestCheck_ConfigFileAndFlags(t *testing.T) {
	dir := project(t)
	testutil.WriteFiles(t, dir, map[string]string{
		"nodecheck.yaml":        "registry: registry/nodes.yaml\nmechanisms_dir: clean\nfail_on: warning\n",
		"clean/mechanisms.yaml": "- {mechanism_id: h, source_ids: [indoor_environmental_hazards], target_ids: [asthma_ed_visits]}\n",
	})

	_, err := run(t, "check", "-o", "tsv")
	assert.Equal(t, 1, cli.ExitCode(err), "orphan fails when the file sets fail_on: warning")

	_, err = run(t, "check", "-o", "tsv", "--ignore-orphans", "lead_paint_prevalence")
	assert.Equal(t, 0, cli.ExitCode(err))

	_, err = run(t, "check", "-o", "tsv", "--fail-on", "ghost")
	assert.Equal(t, 0, cli.ExitCode(err), "flags override the config file")

	_, err = run(t, "check", "--mechanisms", filepath.Join(dir, "mechanisms"), "-o", "tsv", "--fail-on", "ghost")
	assert.Equal(t, 2, cli.ExitCode(err))
}

func TestCheck_InvalidConfig(t *testing.T) {
	project(t)
	_, err := run(t, "check", "--fail-on", "sometimes")
	require.Error(t, err)
	assert.Equal(t, 2, cli.ExitCode(err))
	assert.Contains(t, err.Error(), "invalid fail_on")
}
