package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/nodecheck/pkg/core"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Layout is how records are arranged in a mechanism file.
type Layout int

const (
	// LayoutSingle is one mechanism mapping per file.
	LayoutSingle Layout = iota
	// LayoutList is a bare YAML sequence of mechanisms.
	LayoutList
	// LayoutKeyed is a mapping with a mechanisms: sequence.
	LayoutKeyed
	// LayoutDocuments is a stream of several --- separated documents. It is
	// written back one mechanism per document.
	LayoutDocuments
)

// MechanismFile is one decoded mechanism file.
type MechanismFile struct {
	// Path is relative to the set's directory, slash separated.
	Path       string
	Layout     Layout
	Mechanisms []core.Mechanism
}

// MechanismSet is every mechanism file found under a directory, ordered by path.
type MechanismSet struct {
	Dir   string
	Files []MechanismFile
}

// Batches returns one record slice per file, for scanner.ScanAll.
func (s *MechanismSet) Batches() [][]core.Mechanism {
	out := make([][]core.Mechanism, 0, len(s.Files))
	for _, f := range s.Files {
		out = append(out, f.Mechanisms)
	}
	return out
}

// All returns every record in file order.
func (s *MechanismSet) All() []core.Mechanism {
	var out []core.Mechanism
	for _, f := range s.Files {
		out = append(out, f.Mechanisms...)
	}
	return out
}

// Len is the total record count.
func (s *MechanismSet) Len() int {
	n := 0
	for _, f := range s.Files {
		n += len(f.Mechanisms)
	}
	return n
}

// Replace returns a copy of the set whose records are taken, in order, from
// mechs. mechs must hold exactly Len records, as produced by rewriting All.
func (s *MechanismSet) Replace(mechs []core.Mechanism) (*MechanismSet, error) {
	if len(mechs) != s.Len() {
		return nil, fmt.Errorf("replace mechanisms: have %d records, set holds %d", len(mechs), s.Len())
	}
	out := &MechanismSet{Dir: s.Dir, Files: make([]MechanismFile, 0, len(s.Files))}
	i := 0
	for _, f := range s.Files {
		n := len(f.Mechanisms)
		out.Files = append(out.Files, MechanismFile{
			Path:       f.Path,
			Layout:     f.Layout,
			Mechanisms: append([]core.Mechanism(nil), mechs[i:i+n]...),
		})
		i += n
	}
	return out, nil
}

// mechanismsDocument is the keyed layout.
type mechanismsDocument struct {
	Mechanisms []core.Mechanism `yaml:"mechanisms"`
}

// LoadMechanisms reads every .yaml/.yml file under dir, decoding up to
// workers files concurrently. A mechanism_id defined in more than one file
// fails the load with a *core.SchemaViolationError.
func LoadMechanisms(ctx context.Context, dir string, workers int, log *slog.Logger) (*MechanismSet, error) {
	log = logger(log)
	paths, err := mechanismFiles(dir)
	if err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = 1
	}

	files := make([]MechanismFile, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, rel := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f, err := readMechanismFile(dir, rel)
			if err != nil {
				return err
			}
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	set := &MechanismSet{Dir: dir, Files: files}
	if err := checkCrossFileDuplicates(set); err != nil {
		return nil, err
	}
	log.Debug("loaded mechanisms", "dir", dir, "files", len(files), "records", set.Len())
	return set, nil
}

func mechanismFiles(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if format, err := FormatOf(path); err != nil || format != FormatYAML {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk mechanisms dir: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

func readMechanismFile(dir, rel string) (MechanismFile, error) {
	out := MechanismFile{Path: rel}
	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		return out, fmt.Errorf("open mechanism file: %w", err)
	}
	defer f.Close()

	mechs, layout, err := ReadMechanisms(f)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.File = filepath.Join(dir, filepath.FromSlash(rel))
		}
		return out, err
	}
	for i := range mechs {
		mechs[i].File = rel
	}
	out.Layout = layout
	out.Mechanisms = mechs
	return out, nil
}

// ReadMechanisms decodes a YAML mechanism stream in any supported layout.
// Every document in the stream is read.
func ReadMechanisms(r io.Reader) ([]core.Mechanism, Layout, error) {
	var mechs []core.Mechanism
	layout, docs := LayoutList, 0
	err := decodeYAMLStream(r, func(root *yaml.Node) error {
		batch, l, err := decodeMechanisms(root)
		if err != nil {
			return err
		}
		mechs = append(mechs, batch...)
		layout = l
		docs++
		return nil
	})
	if err != nil {
		return nil, LayoutSingle, err
	}
	if docs > 1 {
		layout = LayoutDocuments
	}
	return mechs, layout, nil
}

func decodeMechanisms(root *yaml.Node) ([]core.Mechanism, Layout, error) {
	switch root.Kind {
	case yaml.SequenceNode:
		var mechs []core.Mechanism
		if err := root.Decode(&mechs); err != nil {
			return nil, LayoutList, &ParseError{Line: root.Line, Message: err.Error()}
		}
		return mechs, LayoutList, nil
	case yaml.MappingNode:
		if hasKey(root, "mechanisms") && !hasKey(root, "mechanism_id") {
			var keyed mechanismsDocument
			if err := root.Decode(&keyed); err != nil {
				return nil, LayoutKeyed, &ParseError{Line: root.Line, Message: err.Error()}
			}
			return keyed.Mechanisms, LayoutKeyed, nil
		}
		var mech core.Mechanism
		if err := root.Decode(&mech); err != nil {
			return nil, LayoutSingle, &ParseError{Line: root.Line, Message: err.Error()}
		}
		return []core.Mechanism{mech}, LayoutSingle, nil
	default:
		return nil, LayoutSingle, &ParseError{Line: root.Line, Message: "expected a mechanism mapping or a list of mechanisms"}
	}
}

func hasKey(mapping *yaml.Node, key string) bool {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return true
		}
	}
	return false
}

func checkCrossFileDuplicates(set *MechanismSet) error {
	firstFile := make(map[string]string)
	var violations []core.Violation
	index := 0
	for _, f := range set.Files {
		local := make(map[string]bool, len(f.Mechanisms))
		for _, m := range f.Mechanisms {
			if m.ID != "" && !local[m.ID] {
				local[m.ID] = true
				if prev, ok := firstFile[m.ID]; ok {
					violations = append(violations, core.Violation{
						Index:   index,
						ID:      m.ID,
						Field:   "mechanism_id",
						Message: fmt.Sprintf("defined in %s and %s", prev, f.Path),
					})
				} else {
					firstFile[m.ID] = f.Path
				}
			}
			index++
		}
	}
	if len(violations) > 0 {
		return &core.SchemaViolationError{Source: set.Dir, Violations: violations}
	}
	return nil
}
