package loader

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/leapstack-labs/nodecheck/pkg/core"
	"gopkg.in/yaml.v3"
)

type mappingsDocument struct {
	Mappings []core.ConsolidationMapping `yaml:"mappings" json:"mappings"`
}

// ReadMappingFile decodes a consolidation batch from path. Order is kept:
// the mapper applies mappings in file order.
func ReadMappingFile(path string, log *slog.Logger) ([]core.ConsolidationMapping, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mappings: %w", err)
	}
	defer f.Close()

	mappings, err := ReadMappings(f, format)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.File = path
		}
		return nil, err
	}
	logger(log).Debug("read mappings", "path", path, "count", len(mappings))
	return mappings, nil
}

// ReadMappings decodes a consolidation batch from r.
func ReadMappings(r io.Reader, format Format) ([]core.ConsolidationMapping, error) {
	switch format {
	case FormatYAML:
		var out []core.ConsolidationMapping
		err := decodeYAMLStream(r, func(root *yaml.Node) error {
			var batch []core.ConsolidationMapping
			var err error
			if root.Kind == yaml.MappingNode {
				var keyed mappingsDocument
				err = root.Decode(&keyed)
				batch = keyed.Mappings
			} else {
				err = root.Decode(&batch)
			}
			if err != nil {
				return &ParseError{Line: root.Line, Message: err.Error()}
			}
			out = append(out, batch...)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return normalizeMappings(out), nil

	case FormatJSON:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		data = bytes.TrimSpace(data)
		if len(data) == 0 {
			return nil, nil
		}
		var out []core.ConsolidationMapping
		if data[0] == '[' {
			err = json.Unmarshal(data, &out)
		} else {
			var keyed mappingsDocument
			err = json.Unmarshal(data, &keyed)
			out = keyed.Mappings
		}
		if err != nil {
			return nil, &ParseError{Message: fmt.Sprintf("invalid JSON: %v", err)}
		}
		return normalizeMappings(out), nil

	case FormatCSV, FormatTSV:
		cr := csv.NewReader(r)
		cr.TrimLeadingSpace = true
		if format == FormatTSV {
			cr.Comma = '\t'
		}
		rows, err := cr.ReadAll()
		if err != nil {
			return nil, &ParseError{Message: err.Error()}
		}
		if len(rows) == 0 {
			return nil, nil
		}
		if len(rows[0]) != 3 || strings.TrimSpace(rows[0][0]) != "old_id" {
			return nil, &ParseError{Line: 1, Message: "header must be old_id, new_id, operation"}
		}
		out := make([]core.ConsolidationMapping, 0, len(rows)-1)
		for _, row := range rows[1:] {
			out = append(out, core.ConsolidationMapping{
				OldID:     row[0],
				NewID:     row[1],
				Operation: core.Operation(row[2]),
			})
		}
		return normalizeMappings(out), nil

	default:
		return nil, fmt.Errorf("unsupported mapping format %q", format)
	}
}

func normalizeMappings(in []core.ConsolidationMapping) []core.ConsolidationMapping {
	for i := range in {
		in[i].OldID = strings.TrimSpace(in[i].OldID)
		in[i].NewID = strings.TrimSpace(in[i].NewID)
		in[i].Operation = core.Operation(strings.TrimSpace(string(in[i].Operation)))
	}
	return in
}
