package output

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/nodecheck/internal/consolidate"
	"github.com/leapstack-labs/nodecheck/internal/registry"
	"github.com/leapstack-labs/nodecheck/internal/state"
)

// RenderMigration writes a migration report.
func (r *Renderer) RenderMigration(report consolidate.MigrationReport) error {
	switch r.EffectiveMode() {
	case ModeJSON:
		return r.JSON(report)
	case ModeTable:
		t := r.newTable()
		t.AppendHeader(table.Row{"Old", "New", "Operation", "Mechanisms", "Composites", "Stubs"})
		for _, e := range report.Entries {
			t.AppendRow(table.Row{e.OldID, e.NewID, e.Operation, e.MechanismsRewritten, len(e.CompositesRewritten), len(e.StubsRepointed)})
		}
		t.Render()
		return nil
	default:
		for _, e := range report.Entries {
			ids := "-"
			if len(e.MechanismIDs) > 0 {
				ids = strings.Join(e.MechanismIDs, ",")
			}
			r.Printf("%s\t%s\t%s\t%d\t%s\n", e.OldID, e.NewID, e.Operation, e.MechanismsRewritten, ids)
		}
		return nil
	}
}

// RenderDelta writes a registry diff.
func (r *Renderer) RenderDelta(d registry.Delta) error {
	switch r.EffectiveMode() {
	case ModeJSON:
		return r.JSON(d)
	case ModeTable:
		if d.Empty() {
			r.Println(r.styles.Success.Render("✓ registries are identical"))
			return nil
		}
		t := r.newTable()
		t.AppendHeader(table.Row{"Change", "Node", "Fields"})
		for _, id := range d.Added {
			t.AppendRow(table.Row{"added", id, ""})
		}
		for _, id := range d.Removed {
			t.AppendRow(table.Row{"removed", id, ""})
		}
		for _, c := range d.Changed {
			t.AppendRow(table.Row{"changed", c.ID, strings.Join(c.Fields, ", ")})
		}
		t.Render()
		return nil
	default:
		for _, id := range d.Added {
			r.Printf("added\t%s\t-\n", id)
		}
		for _, id := range d.Removed {
			r.Printf("removed\t%s\t-\n", id)
		}
		for _, c := range d.Changed {
			r.Printf("changed\t%s\t%s\n", c.ID, strings.Join(c.Fields, ","))
		}
		return nil
	}
}

// History is what the history command reports.
type History struct {
	// SchemaVersion is the audit store's applied migration version.
	SchemaVersion int64             `json:"schema_version"`
	Snapshots     []state.Snapshot  `json:"snapshots"`
	Migrations    []state.Migration `json:"migrations"`
}

// RenderHistory writes audit store contents.
func (r *Renderer) RenderHistory(h History) error {
	const stamp = "2006-01-02 15:04:05"
	switch r.EffectiveMode() {
	case ModeJSON:
		return r.JSON(h)
	case ModeTable:
		r.Println(r.styles.Muted.Render(fmt.Sprintf("audit schema v%d", h.SchemaVersion)))
		r.Println(r.styles.Header2.Render(fmt.Sprintf("Snapshots (%d)", len(h.Snapshots))))
		t := r.newTable()
		t.AppendHeader(table.Row{"ID", "Label", "Nodes", "Created"})
		for _, s := range h.Snapshots {
			t.AppendRow(table.Row{s.ID, s.Label, s.NodeCount, s.CreatedAt.Format(stamp)})
		}
		t.Render()
		r.Println("")
		r.Println(r.styles.Header2.Render(fmt.Sprintf("Migrations (%d)", len(h.Migrations))))
		t = r.newTable()
		t.AppendHeader(table.Row{"ID", "Before", "After", "Mappings", "Created"})
		for _, m := range h.Migrations {
			t.AppendRow(table.Row{m.ID, m.BeforeID, m.AfterID, m.EntryCount, m.CreatedAt.Format(stamp)})
		}
		t.Render()
		return nil
	default:
		r.Printf("schema\t%d\n", h.SchemaVersion)
		for _, s := range h.Snapshots {
			r.Printf("snapshot\t%s\t%s\t%d\t%s\n", s.ID, s.Label, s.NodeCount, s.CreatedAt.Format(stamp))
		}
		for _, m := range h.Migrations {
			r.Printf("migration\t%s\t%s->%s\t%d\t%s\n", m.ID, m.BeforeID, m.AfterID, m.EntryCount, m.CreatedAt.Format(stamp))
		}
		return nil
	}
}

func (r *Renderer) newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	return t
}
