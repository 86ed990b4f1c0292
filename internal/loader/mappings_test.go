package loader

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/nodecheck/internal/testutil"
	"github.com/leapstack-labs/nodecheck/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMappings(t *testing.T) {
	want := []core.ConsolidationMapping{
		{OldID: "indoor_dampness_exposure", NewID: "indoor_environmental_hazards", Operation: core.OpMergeInto},
		{OldID: "mold_exposure", NewID: "indoor_environmental_hazards", Operation: core.OpAlias},
	}

	tests := []struct {
		name   string
		format Format
		input  string
	}{
		{
			name:   "yaml keyed",
			format: FormatYAML,
			input: `mappings:
  - {old_id: indoor_dampness_exposure, new_id: indoor_environmental_hazards, operation: merge_into}
  - {old_id: mold_exposure, new_id: indoor_environmental_hazards, operation: alias}
`,
		},
		{
			name:   "yaml list",
			format: FormatYAML,
			input: `- old_id: indoor_dampness_exposure
  new_id: indoor_environmental_hazards
  operation: merge_into
- old_id: " mold_exposure "
  new_id: indoor_environmental_hazards
  operation: alias
`,
		},
		{
			name:   "yaml documents",
			format: FormatYAML,
			input: `mappings:
  - {old_id: indoor_dampness_exposure, new_id: indoor_environmental_hazards, operation: merge_into}
---
- {old_id: mold_exposure, new_id: indoor_environmental_hazards, operation: alias}
`,
		},
		{
			name:   "csv",
			format: FormatCSV,
			input: `old_id,new_id,operation
indoor_dampness_exposure,indoor_environmental_hazards,merge_into
mold_exposure,indoor_environmental_hazards,alias
`,
		},
		{
			name:   "json",
			format: FormatJSON,
			input:  `{"mappings":[{"old_id":"indoor_dampness_exposure","new_id":"indoor_environmental_hazards","operation":"merge_into"},{"old_id":"mold_exposure","new_id":"indoor_environmental_hazards","operation":"alias"}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadMappings(strings.NewReader(tt.input), tt.format)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestReadMappings_KeepsOperationCase(t *testing.T) {
	got, err := ReadMappings(strings.NewReader("- {old_id: a_node, new_id: b_node, operation: \" RENAME \"}\n"), FormatYAML)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, core.Operation("RENAME"), got[0].Operation)
	_, known := core.ParseOperation(string(got[0].Operation))
	assert.False(t, known)
}

func TestReadMappings_BadCSVHeader(t *testing.T) {
	_, err := ReadMappings(strings.NewReader("from,to,op\na,b,rename\n"), FormatCSV)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1, pe.Line)
}

func TestReadMappingFile(t *testing.T) {
	dir := testutil.NewProject(t, map[string]string{
		"batch.tsv": "old_id\tnew_id\toperation\nhousing_cost_burden\trent_burden\trename\n",
	})

	got, err := ReadMappingFile(filepath.Join(dir, "batch.tsv"), testutil.NewTestLogger(t))
	require.NoError(t, err)
	assert.Equal(t, []core.ConsolidationMapping{
		{OldID: "housing_cost_burden", NewID: "rent_burden", Operation: core.OpRename},
	}, got)
}

func TestEncodeDocument(t *testing.T) {
	doc := map[string]any{"entries": []string{"a_node"}}

	var yamlBuf, jsonBuf bytes.Buffer
	require.NoError(t, EncodeDocument(&yamlBuf, doc, false))
	require.NoError(t, EncodeDocument(&jsonBuf, doc, true))

	assert.Equal(t, "entries:\n  - a_node\n", yamlBuf.String())
	assert.JSONEq(t, `{"entries":["a_node"]}`, jsonBuf.String())
}
