package loader

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/nodecheck/internal/registry"
	"github.com/leapstack-labs/nodecheck/pkg/core"
	"gopkg.in/yaml.v3"
)

// WriteNodeFile writes a registry snapshot to path in the format its
// extension names. YAML snapshots use the keyed nodes: layout.
func WriteNodeFile(path string, nodes []core.Node, log *slog.Logger) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := WriteNodes(&buf, nodes, format); err != nil {
		return err
	}
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return err
	}
	logger(log).Debug("wrote registry", "path", path, "nodes", len(nodes))
	return nil
}

// WriteNodes encodes nodes to w.
func WriteNodes(w io.Writer, nodes []core.Node, format Format) error {
	records := make([]registry.RawNode, 0, len(nodes))
	for _, n := range nodes {
		records = append(records, registry.FromNode(n))
	}

	switch format {
	case FormatYAML:
		return encodeYAML(w, nodesDocument{Nodes: records})
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(nodesDocument{Nodes: records})
	case FormatJSONL:
		enc := json.NewEncoder(w)
		for _, r := range records {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	case FormatCSV, FormatTSV:
		cw := csv.NewWriter(w)
		if format == FormatTSV {
			cw.Comma = '\t'
		}
		if err := cw.Write(nodeColumns); err != nil {
			return err
		}
		for _, r := range records {
			if err := cw.Write([]string{
				r.ID, r.DisplayName, r.Scale, r.ValueType, r.Unit,
				strings.Join(r.Domain, listSeparator), r.Status, r.SupersededBy,
				strings.Join(r.Components, listSeparator),
			}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("unsupported node format %q", format)
	}
}

// WriteMechanisms writes every file in set under dir, keeping each file's
// relative path, layout and uninterpreted fields.
func WriteMechanisms(dir string, set *MechanismSet, log *slog.Logger) error {
	for _, f := range set.Files {
		var buf bytes.Buffer
		var docs []any
		switch {
		case f.Layout == LayoutKeyed:
			docs = append(docs, mechanismsDocument{Mechanisms: f.Mechanisms})
		case f.Layout == LayoutSingle && len(f.Mechanisms) == 1:
			docs = append(docs, f.Mechanisms[0])
		case f.Layout == LayoutDocuments && len(f.Mechanisms) > 0:
			for _, m := range f.Mechanisms {
				docs = append(docs, m)
			}
		default:
			docs = append(docs, f.Mechanisms)
		}
		if err := encodeYAML(&buf, docs...); err != nil {
			return fmt.Errorf("encode %s: %w", f.Path, err)
		}
		if err := writeFileAtomic(filepath.Join(dir, filepath.FromSlash(f.Path)), buf.Bytes()); err != nil {
			return err
		}
	}
	logger(log).Debug("wrote mechanisms", "dir", dir, "files", len(set.Files))
	return nil
}

// WriteDocument writes v to path as JSON when the extension is .json and as
// YAML otherwise.
func WriteDocument(path string, v any) error {
	var buf bytes.Buffer
	if err := EncodeDocument(&buf, v, strings.EqualFold(filepath.Ext(path), ".json")); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes())
}

// EncodeDocument writes v to w as indented JSON or YAML.
func EncodeDocument(w io.Writer, v any, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return encodeYAML(w, v)
}

// encodeYAML writes each value as its own document, separated by ---.
func encodeYAML(w io.Writer, docs ...any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	for _, v := range docs {
		if err := enc.Encode(v); err != nil {
			return err
		}
	}
	return enc.Close()
}

// writeFileAtomic writes data to a temp file beside path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
