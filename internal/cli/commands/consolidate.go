package commands

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/leapstack-labs/nodecheck/internal/consolidate"
	"github.com/leapstack-labs/nodecheck/internal/loader"
	"github.com/spf13/cobra"
)

// ConsolidateOptions holds options for the consolidate command.
type ConsolidateOptions struct {
	Mappings      string
	OutRegistry   string
	OutMechanisms string
	Report        string
	DryRun        bool
}

// NewConsolidateCommand creates the consolidate command.
func NewConsolidateCommand() *cobra.Command {
	opts := &ConsolidateOptions{}
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Apply a batch of consolidation mappings",
		Long: `Apply every mapping in a mapping file as one atomic batch.

Operations:
  rename      move a node to a new id, leaving a merged stub behind
  merge_into  retire a node into an existing active node
  alias       register an undefined id as a merged stub of an active node

The new registry and rewritten mechanism files are written to the output
paths, and the migration report to --report (or stdout). Nothing is written
when any mapping fails or when the rewritten mechanisms would still reference
a consolidated id.`,
		Example: `  # Merge duplicates and write the new snapshot beside the old one
  nodecheck consolidate --mappings merges.yaml \
    --out-registry out/nodes.yaml --out-mechanisms out/mechanisms

  # Preview the migration report without writing anything
  nodecheck consolidate --mappings merges.csv --dry-run -o table`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConsolidate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Mappings, "mappings", "", "Consolidation mapping file (YAML, JSON, CSV or TSV)")
	cmd.Flags().StringVar(&opts.OutRegistry, "out-registry", "", "Path for the consolidated node registry")
	cmd.Flags().StringVar(&opts.OutMechanisms, "out-mechanisms", "", "Directory for the rewritten mechanism files")
	cmd.Flags().StringVar(&opts.Report, "report", "", "Path for the migration report (.json or .yaml); stdout when omitted")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Apply in memory and print the report without writing files")
	_ = cmd.MarkFlagRequired("mappings")

	return cmd
}

func (o *ConsolidateOptions) validate() error {
	if o.DryRun {
		return nil
	}
	var missing []string
	if o.OutRegistry == "" {
		missing = append(missing, "--out-registry")
	}
	if o.OutMechanisms == "" {
		missing = append(missing, "--out-mechanisms")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%v required unless --dry-run is set", missing)
	}
	return nil
}

func runConsolidate(cmd *cobra.Command, opts *ConsolidateOptions) error {
	ctx := cmd.Context()
	c := NewCommandContext(cmd)

	if err := opts.validate(); err != nil {
		return failed(err)
	}

	ws, err := c.loadWorkspace(ctx)
	if err != nil {
		return failed(err)
	}
	mappings, err := loader.ReadMappingFile(opts.Mappings, c.Logger)
	if err != nil {
		return failed(err)
	}

	res, err := consolidate.Apply(ws.Registry, ws.Mechanisms.All(), mappings)
	if err != nil {
		var verr *consolidate.VerificationError
		if errors.As(err, &verr) {
			c.Renderer.Errorf("%d unresolved references after consolidation\n", len(verr.Findings))
		}
		return failed(fmt.Errorf("consolidate: %w", err))
	}
	delta := res.Report.Delta
	c.Logger.Info("consolidated",
		"mappings", len(res.Report.Entries),
		"added", len(delta.Added),
		"removed", len(delta.Removed),
		"changed", len(delta.Changed))

	if opts.DryRun {
		if err := c.Renderer.RenderMigration(res.Report); err != nil {
			return failed(err)
		}
		return nil
	}

	rewritten, err := ws.Mechanisms.Replace(res.Mechanisms)
	if err != nil {
		return failed(err)
	}
	if err := loader.WriteNodeFile(opts.OutRegistry, res.Registry.Nodes(), c.Logger); err != nil {
		return failed(fmt.Errorf("write registry: %w", err))
	}
	if err := loader.WriteMechanisms(opts.OutMechanisms, rewritten, c.Logger); err != nil {
		return failed(fmt.Errorf("write mechanisms: %w", err))
	}

	if opts.Report != "" {
		if err := loader.WriteDocument(opts.Report, res.Report); err != nil {
			return failed(fmt.Errorf("write report: %w", err))
		}
	} else if err := c.Renderer.RenderMigration(res.Report); err != nil {
		return failed(err)
	}

	store, err := c.openStore(ctx)
	if err != nil {
		return failed(err)
	}
	if store != nil {
		defer func() { _ = store.Close() }()
		m, err := store.RecordConsolidation(ctx, "consolidate "+filepath.Base(opts.Mappings), res)
		if err != nil {
			return failed(fmt.Errorf("record consolidation: %w", err))
		}
		c.Logger.Info("recorded migration", "id", m.ID, "before", m.BeforeID, "after", m.AfterID)
	}
	return nil
}
