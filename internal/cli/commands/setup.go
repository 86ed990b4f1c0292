// Package commands implements the nodecheck subcommands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/nodecheck/internal/cli/config"
	"github.com/leapstack-labs/nodecheck/internal/cli/output"
	"github.com/leapstack-labs/nodecheck/internal/integrity"
	"github.com/leapstack-labs/nodecheck/internal/loader"
	"github.com/leapstack-labs/nodecheck/internal/registry"
	"github.com/leapstack-labs/nodecheck/internal/scanner"
	"github.com/leapstack-labs/nodecheck/internal/state"
	"github.com/spf13/cobra"
)

// Exit codes.
const (
	ExitOK       = 0
	ExitWarnings = 1
	ExitErrors   = 2
)

// ExitError carries a process exit code. Err may be nil when the command
// already reported its findings and only the code matters.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitErrors
}

func failed(err error) error {
	return &ExitError{Code: ExitErrors, Err: err}
}

// CommandContext holds what every command needs.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext builds a CommandContext from the command's context.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.GetConfig(ctx)
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(ctx),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Output)),
	}
}

// workspace is one loaded project: registry plus mechanism files.
type workspace struct {
	Registry   *registry.Registry
	Mechanisms *loader.MechanismSet
	Refs       *scanner.ReferenceMap
}

// loadWorkspace runs Load and Scan for the configured paths.
func (c *CommandContext) loadWorkspace(ctx context.Context) (*workspace, error) {
	if err := c.Cfg.ValidatePaths(); err != nil {
		return nil, err
	}
	reg, err := loader.LoadRegistry(c.Cfg.Registry, c.Logger)
	if err != nil {
		return nil, err
	}
	set, err := loader.LoadMechanisms(ctx, c.Cfg.MechanismsDir, c.Cfg.Parallelism, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("mechanisms: %w", err)
	}
	refs, err := scanner.ScanAll(ctx, set.Batches(), c.Cfg.Parallelism)
	if err != nil {
		return nil, fmt.Errorf("scan mechanisms: %w", err)
	}
	c.Logger.Debug("workspace loaded", "nodes", reg.Len(), "mechanisms", set.Len())
	return &workspace{Registry: reg, Mechanisms: set, Refs: refs}, nil
}

// check runs the integrity check over a loaded workspace.
func (c *CommandContext) check(ws *workspace) integrity.Report {
	return integrity.Check(ws.Registry, ws.Refs, integrity.Options{IgnoreOrphans: c.Cfg.IgnoreOrphans})
}

// openStore opens the audit store when state_path is configured.
func (c *CommandContext) openStore(ctx context.Context) (*state.Store, error) {
	if c.Cfg.StatePath == "" {
		return nil, nil
	}
	if c.Cfg.StatePath != ":memory:" {
		if dir := filepath.Dir(c.Cfg.StatePath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create state directory: %w", err)
			}
		}
	}
	store, err := state.Open(ctx, c.Cfg.StatePath, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}
	return store, nil
}
