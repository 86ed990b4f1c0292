package commands

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/leapstack-labs/nodecheck/internal/loader"
	"github.com/spf13/cobra"
)

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot [label]",
		Short: "Record the current node registry in the audit store",
		Long: `Load and validate the configured registry and store a copy of it in the
audit store. The printed id can be passed to diff as snapshot:<id>.`,
		Example: `  nodecheck snapshot --state .nodecheck/audit.db
  nodecheck snapshot "before housing cleanup"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := NewCommandContext(cmd)
			if c.Cfg.StatePath == "" {
				return failed(errors.New("no audit store configured: set state_path or pass --state"))
			}
			reg, err := loader.LoadRegistry(c.Cfg.Registry, c.Logger)
			if err != nil {
				return failed(err)
			}
			label := "snapshot " + filepath.Base(c.Cfg.Registry)
			if len(args) == 1 {
				label = args[0]
			}

			store, err := c.openStore(ctx)
			if err != nil {
				return failed(err)
			}
			defer func() { _ = store.Close() }()

			snap, err := store.SaveSnapshot(ctx, label, reg.Nodes())
			if err != nil {
				return failed(fmt.Errorf("save snapshot: %w", err))
			}
			c.Renderer.Printf("%s\n", snap.ID)
			return nil
		},
	}
	return cmd
}
