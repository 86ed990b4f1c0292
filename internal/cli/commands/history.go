package commands

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/nodecheck/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded registry snapshots and migrations",
		Long: `List the snapshots and migrations recorded in the audit store, newest
first. Requires state_path (or --state) to be set.`,
		Example: `  nodecheck history --state .nodecheck/audit.db
  nodecheck history --limit 5 -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c := NewCommandContext(cmd)
			if c.Cfg.StatePath == "" {
				return failed(errors.New("no audit store configured: set state_path or pass --state"))
			}
			store, err := c.openStore(ctx)
			if err != nil {
				return failed(err)
			}
			defer func() { _ = store.Close() }()

			version, err := store.MigrationVersion(ctx)
			if err != nil {
				return failed(fmt.Errorf("schema version: %w", err))
			}
			snapshots, err := store.ListSnapshots(ctx, limit)
			if err != nil {
				return failed(fmt.Errorf("list snapshots: %w", err))
			}
			migrations, err := store.ListMigrations(ctx, limit)
			if err != nil {
				return failed(fmt.Errorf("list migrations: %w", err))
			}
			if err := c.Renderer.RenderHistory(output.History{
				SchemaVersion: version,
				Snapshots:     snapshots,
				Migrations:    migrations,
			}); err != nil {
				return failed(err)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum rows per list (0 for all)")
	return cmd
}
