package commands

import (
	"context"
	"errors"
	"strings"

	"github.com/leapstack-labs/nodecheck/internal/loader"
	"github.com/leapstack-labs/nodecheck/internal/registry"
	"github.com/spf13/cobra"
)

// NewDiffCommand creates the diff command.
func NewDiffCommand() *cobra.Command {
	var exitCode bool
	cmd := &cobra.Command{
		Use:   "diff <old> <new>",
		Short: "Compare two node registry snapshots",
		Long: `List nodes added, removed and changed between two registry files.
Each file may be YAML, JSON, JSON lines, CSV or TSV. An argument of the form
snapshot:<id> reads a snapshot recorded in the audit store instead.`,
		Example: `  nodecheck diff registry/nodes.yaml out/nodes.yaml
  nodecheck diff old.csv new.yaml --exit-code
  nodecheck diff snapshot:3f1c9a registry/nodes.yaml --state .nodecheck/audit.db`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := NewCommandContext(cmd)
			before, err := c.loadRegistryArg(cmd.Context(), args[0])
			if err != nil {
				return failed(err)
			}
			after, err := c.loadRegistryArg(cmd.Context(), args[1])
			if err != nil {
				return failed(err)
			}
			delta := registry.Diff(before, after)
			if err := c.Renderer.RenderDelta(delta); err != nil {
				return failed(err)
			}
			if exitCode && !delta.Empty() {
				return &ExitError{Code: ExitWarnings}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&exitCode, "exit-code", false, "Exit with status 1 when the snapshots differ")
	return cmd
}

const snapshotPrefix = "snapshot:"

// loadRegistryArg reads a registry file, or a stored snapshot for snapshot:<id>.
func (c *CommandContext) loadRegistryArg(ctx context.Context, arg string) (*registry.Registry, error) {
	id, ok := strings.CutPrefix(arg, snapshotPrefix)
	if !ok {
		return loader.LoadRegistry(arg, c.Logger)
	}
	if c.Cfg.StatePath == "" {
		return nil, errors.New("no audit store configured: set state_path or pass --state")
	}
	store, err := c.openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	nodes, err := store.LoadSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	return registry.Build(nodes)
}
