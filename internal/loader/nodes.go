package loader

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/leapstack-labs/nodecheck/internal/registry"
	"gopkg.in/yaml.v3"
)

// listSeparator splits list cells (domain, components) in CSV/TSV files.
const listSeparator = ";"

// nodesDocument is the keyed YAML/JSON layout: {nodes: [...]}.
type nodesDocument struct {
	Nodes []registry.RawNode `yaml:"nodes" json:"nodes"`
}

// LoadRegistry reads a node file and builds a validated registry from it.
func LoadRegistry(path string, log *slog.Logger) (*registry.Registry, error) {
	records, err := ReadNodeFile(path, log)
	if err != nil {
		return nil, err
	}
	reg, err := registry.Load(records)
	if err != nil {
		return nil, fmt.Errorf("registry %s: %w", path, err)
	}
	return reg, nil
}

// ReadNodeFile decodes raw node records from path. The format follows the
// file extension.
func ReadNodeFile(path string, log *slog.Logger) ([]registry.RawNode, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	defer f.Close()

	records, err := ReadNodes(f, format)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.File = path
		}
		return nil, err
	}
	logger(log).Debug("read node records", "path", path, "format", format, "count", len(records))
	return records, nil
}

// ReadNodes decodes raw node records from r.
func ReadNodes(r io.Reader, format Format) ([]registry.RawNode, error) {
	switch format {
	case FormatYAML:
		return readNodesYAML(r)
	case FormatJSON:
		return readNodesJSON(r)
	case FormatJSONL:
		return readNodesJSONL(r)
	case FormatCSV:
		return readNodesDelimited(r, ',')
	case FormatTSV:
		return readNodesDelimited(r, '\t')
	default:
		return nil, fmt.Errorf("unsupported node format %q", format)
	}
}

func readNodesYAML(r io.Reader) ([]registry.RawNode, error) {
	var records []registry.RawNode
	err := decodeYAMLStream(r, func(root *yaml.Node) error {
		switch root.Kind {
		case yaml.SequenceNode:
			var batch []registry.RawNode
			if err := root.Decode(&batch); err != nil {
				return &ParseError{Line: root.Line, Message: err.Error()}
			}
			records = append(records, batch...)
		case yaml.MappingNode:
			var keyed nodesDocument
			if err := root.Decode(&keyed); err != nil {
				return &ParseError{Line: root.Line, Message: err.Error()}
			}
			records = append(records, keyed.Nodes...)
		default:
			return &ParseError{Line: root.Line, Message: "expected a list of nodes or a nodes: key"}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func readNodesJSON(r io.Reader) ([]registry.RawNode, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	var records []registry.RawNode
	if data[0] == '[' {
		err = json.Unmarshal(data, &records)
	} else {
		var keyed nodesDocument
		err = json.Unmarshal(data, &keyed)
		records = keyed.Nodes
	}
	if err != nil {
		return nil, &ParseError{Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return records, nil
}

func readNodesJSONL(r io.Reader) ([]registry.RawNode, error) {
	var records []registry.RawNode
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var rec registry.RawNode
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, &ParseError{Line: line, Message: fmt.Sprintf("invalid JSON: %v", err)}
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

var nodeColumns = []string{"id", "display_name", "scale", "value_type", "unit", "domain", "status", "superseded_by", "components"}

func readNodesDelimited(r io.Reader, comma rune) ([]registry.RawNode, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, &ParseError{Message: err.Error()}
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(strings.ToLower(name))] = i
	}
	if _, ok := col["id"]; !ok {
		return nil, &ParseError{Line: 1, Message: "header has no id column"}
	}

	var records []registry.RawNode
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ParseError{Message: err.Error()}
		}
		cell := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(row) {
				return ""
			}
			return row[i]
		}
		records = append(records, registry.RawNode{
			ID:           cell("id"),
			DisplayName:  cell("display_name"),
			Scale:        cell("scale"),
			ValueType:    cell("value_type"),
			Unit:         cell("unit"),
			Domain:       splitList(cell("domain")),
			Status:       cell("status"),
			SupersededBy: cell("superseded_by"),
			Components:   splitList(cell("components")),
		})
	}
	return records, nil
}

func splitList(cell string) []string {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil
	}
	parts := strings.Split(cell, listSeparator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// decodeYAMLStream calls fn with the root of every non-empty document in r,
// so records after a --- separator are never dropped.
func decodeYAMLStream(r io.Reader, fn func(root *yaml.Node) error) error {
	dec := yaml.NewDecoder(r)
	for {
		var doc yaml.Node
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return &ParseError{Message: fmt.Sprintf("invalid YAML: %v", err)}
		}
		if root := documentRoot(&doc); root != nil {
			if err := fn(root); err != nil {
				return err
			}
		}
	}
}

// documentRoot unwraps a YAML document node. It returns nil for an empty
// document.
func documentRoot(doc *yaml.Node) *yaml.Node {
	if doc.Kind == yaml.DocumentNode {
		if len(doc.Content) == 0 {
			return nil
		}
		root := doc.Content[0]
		// A bare --- decodes to a null scalar.
		if root.Kind == yaml.ScalarNode && root.ShortTag() == "!!null" {
			return nil
		}
		return root
	}
	if doc.Kind == 0 {
		return nil
	}
	return doc
}
