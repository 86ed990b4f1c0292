package output

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/nodecheck/internal/integrity"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CheckResult is what the check command reports.
type CheckResult struct {
	Registry   string              `json:"registry"`
	Mechanisms string              `json:"mechanisms_dir"`
	Nodes      int                 `json:"nodes"`
	Scanned    int                 `json:"mechanisms"`
	Findings   []integrity.Finding `json:"findings"`
	Ghosts     int                 `json:"ghosts"`
	Stale      int                 `json:"stale"`
	Orphans    int                 `json:"orphans"`
}

// NewCheckResult summarizes report.
func NewCheckResult(registry, mechanisms string, nodes, scanned int, report integrity.Report) CheckResult {
	return CheckResult{
		Registry:   registry,
		Mechanisms: mechanisms,
		Nodes:      nodes,
		Scanned:    scanned,
		Findings:   report.Findings(),
		Ghosts:     len(report.Ghosts),
		Stale:      len(report.Stale),
		Orphans:    len(report.Orphans),
	}
}

// TSVLine formats one finding as kind, node id and comma-separated
// mechanism ids separated by tabs. Empty id lists print as "-".
func TSVLine(f integrity.Finding) string {
	ids := "-"
	if len(f.MechanismIDs) > 0 {
		ids = strings.Join(f.MechanismIDs, ",")
	}
	return fmt.Sprintf("%s\t%s\t%s", f.Kind, f.NodeID, ids)
}

// RenderCheck writes a check result in the renderer's mode.
func (r *Renderer) RenderCheck(res CheckResult) error {
	switch r.EffectiveMode() {
	case ModeJSON:
		return r.JSON(res)
	case ModeTable:
		r.renderCheckTable(res)
		return nil
	default:
		for _, f := range res.Findings {
			r.Println(TSVLine(f))
		}
		return nil
	}
}

func (r *Renderer) renderCheckTable(res CheckResult) {
	s := r.styles
	title := cases.Title(language.English)

	if len(res.Findings) > 0 {
		t := r.newTable()
		t.AppendHeader(table.Row{"Kind", "Node", "Mechanisms", "Detail"})
		for _, f := range res.Findings {
			detail := f.Reason
			if f.Canonical != "" {
				detail = "now " + f.Canonical
			}
			ids := "-"
			if len(f.MechanismIDs) > 0 {
				ids = strings.Join(f.MechanismIDs, ", ")
			}
			t.AppendRow(table.Row{title.String(string(f.Kind)), f.NodeID, ids, detail})
		}
		t.Render()
		r.Println("")
	}

	summary := fmt.Sprintf("%d nodes, %d mechanisms: %d ghost, %d stale, %d orphan",
		res.Nodes, res.Scanned, res.Ghosts, res.Stale, res.Orphans)
	switch {
	case res.Ghosts+res.Stale > 0:
		r.Println(s.Error.Render("✗ " + summary))
	case res.Orphans > 0:
		r.Println(s.Warning.Render("! " + summary))
	default:
		r.Println(s.Success.Render("✓ " + summary))
	}
}
