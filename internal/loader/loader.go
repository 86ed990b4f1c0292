// Package loader reads and writes the files nodecheck works on: the node
// registry, mechanism directories, consolidation mapping files and reports.
//
// Parsing only: record validation belongs to registry and scanner, which
// receive what the loader decoded.
package loader

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// Format is an on-disk encoding.
type Format string

// Supported formats.
const (
	FormatYAML  Format = "yaml"
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
	FormatTSV   Format = "tsv"
)

// FormatOf infers a file's format from its extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	case ".csv":
		return FormatCSV, nil
	case ".tsv":
		return FormatTSV, nil
	default:
		return "", fmt.Errorf("unsupported file type %q: %s", filepath.Ext(path), path)
	}
}

// ParseError is a file that could not be decoded.
type ParseError struct {
	File    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}
