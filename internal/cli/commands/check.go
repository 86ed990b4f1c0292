package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leapstack-labs/nodecheck/internal/cli/output"
	"github.com/leapstack-labs/nodecheck/internal/integrity"
	"github.com/leapstack-labs/nodecheck/pkg/core"
	"github.com/spf13/cobra"
)

// watchDebounce coalesces bursts of file events into one re-check.
const watchDebounce = 200 * time.Millisecond

// CheckOptions holds options for the check command.
type CheckOptions struct {
	Watch bool
}

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	opts := &CheckOptions{}
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate mechanism references against the node registry",
		Long: `Load the node registry, scan every mechanism file and report:

  ghost   a referenced id that is not defined, or is deprecated
  stale   a referenced id that was merged into another node
  orphan  an active node no mechanism reaches (warning)

Exit status is 0 when clean, 2 when ghost or stale references exist, and 1
when only orphans exist and --fail-on warning is set.`,
		Example: `  # Check the project found from the current directory
  nodecheck check

  # Treat orphan warnings as failures
  nodecheck check --fail-on warning

  # Explicit inputs, machine-readable output
  nodecheck check --registry registry/nodes.csv --mechanisms mechanisms -o json

  # Re-check whenever a file changes
  nodecheck check --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Watch {
				return runCheckWatch(cmd)
			}
			return runCheck(cmd)
		},
	}

	cmd.Flags().String("fail-on", "", "Lowest finding kind that fails the check: ghost|warning")
	cmd.Flags().StringSlice("ignore-orphans", nil, "Node ids exempt from orphan warnings")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Re-run the check when registry or mechanism files change")

	_ = cmd.RegisterFlagCompletionFunc("fail-on", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"ghost", "warning"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runCheck(cmd *cobra.Command) error {
	c := NewCommandContext(cmd)
	code, err := c.checkOnce(cmd.Context())
	if err != nil {
		return failed(err)
	}
	if code != ExitOK {
		return &ExitError{Code: code}
	}
	return nil
}

// checkOnce loads, scans, checks and renders. It returns the gate's exit code.
func (c *CommandContext) checkOnce(ctx context.Context) (int, error) {
	ws, err := c.loadWorkspace(ctx)
	if err != nil {
		return ExitErrors, err
	}
	report := c.check(ws)
	res := output.NewCheckResult(c.Cfg.Registry, c.Cfg.MechanismsDir, ws.Registry.Len(), ws.Mechanisms.Len(), report)
	if err := c.Renderer.RenderCheck(res); err != nil {
		return ExitErrors, err
	}
	return gate(report, c.Cfg.FailSeverity()), nil
}

// gate maps a report to an exit code given the configured threshold.
func gate(report integrity.Report, failOn core.Severity) int {
	switch {
	case report.HasErrors():
		return ExitErrors
	case report.HasWarnings() && failOn == core.SeverityWarning:
		return ExitWarnings
	default:
		return ExitOK
	}
}

func runCheckWatch(cmd *cobra.Command) error {
	ctx := cmd.Context()
	c := NewCommandContext(cmd)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return failed(fmt.Errorf("failed to create watcher: %w", err))
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(c.Cfg.Registry)); err != nil {
		return failed(fmt.Errorf("failed to watch registry: %w", err))
	}
	if err := watchDir(watcher, c.Cfg.MechanismsDir); err != nil {
		return failed(fmt.Errorf("failed to watch mechanisms dir: %w", err))
	}

	rerun := func() {
		if _, err := c.checkOnce(ctx); err != nil {
			c.Renderer.Errorf("Error: %v\n", err)
		}
	}
	rerun()
	c.Logger.Info("watching for changes", "registry", c.Cfg.Registry, "mechanisms", c.Cfg.MechanismsDir)

	return watchLoop(ctx, watcher, c.Cfg.Registry, rerun, c.Logger.Warn)
}

func watchDir(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && len(d.Name()) > 0 && d.Name()[0] == '.' {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

// watchLoop calls rerun once per debounced burst of relevant events and
// returns nil when ctx is cancelled.
func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, registryPath string, rerun func(), warn func(string, ...any)) error {
	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-fire:
			rerun()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event, registryPath) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watchDir(watcher, event.Name)
				}
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				warn("watcher overflow, re-checking", "error", err)
				rerun()
				continue
			}
			warn("watcher error", "error", err)
		}
	}
}

func relevant(event fsnotify.Event, registryPath string) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if filepath.Clean(event.Name) == filepath.Clean(registryPath) {
		return true
	}
	switch filepath.Ext(event.Name) {
	case ".yaml", ".yml":
		return true
	}
	return event.Op&fsnotify.Create != 0
}
