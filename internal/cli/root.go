// Package cli provides the command-line interface for nodecheck.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/leapstack-labs/nodecheck/internal/cli/commands"
	"github.com/leapstack-labs/nodecheck/internal/cli/config"
	"github.com/spf13/cobra"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "nodecheck",
		Short: "nodecheck - node registry validation and consolidation",
		Long: `nodecheck validates causal mechanism files against a canonical node registry.

It reports ghost references (ids that are not defined or are deprecated),
stale references (ids merged into another node) and orphan nodes, and it
applies consolidation mappings as atomic batches that rewrite the registry
and every mechanism file together.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			loaded, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			cfg := loaded.Config

			level := slog.LevelWarn
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			if loaded.File != "" {
				logger.Debug("using config file", "path", loaded.File)
			}

			ctx := config.WithConfig(cmd.Context(), cfg)
			ctx = config.WithLogger(ctx, logger)
			cmd.SetContext(ctx)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
` + fmt.Sprintf("commit %s, built %s\n", GitCommit, BuildDate))

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: nodecheck.yaml found upward from the current directory)")
	rootCmd.PersistentFlags().String("registry", "", "Path to the node registry file")
	rootCmd.PersistentFlags().String("mechanisms", "", "Path to the mechanisms directory")
	rootCmd.PersistentFlags().String("state", "", "Path to the SQLite audit store (empty disables auditing)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format (auto|tsv|table|json)")
	rootCmd.PersistentFlags().Int("parallelism", 0, "Mechanism files decoded and scanned concurrently")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return config.OutputModes, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewCheckCommand())
	rootCmd.AddCommand(commands.NewConsolidateCommand())
	rootCmd.AddCommand(commands.NewDiffCommand())
	rootCmd.AddCommand(commands.NewHistoryCommand())
	rootCmd.AddCommand(commands.NewSnapshotCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command and prints any error that carries a message.
// Cancelling ctx stops a running watch.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if msg := errorMessage(err); msg != "" {
			fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
		}
		return err
	}
	return nil
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	return commands.ExitCode(err)
}

func errorMessage(err error) string {
	var exitErr *commands.ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return ""
	}
	return err.Error()
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for nodecheck.

To load completions:

Bash:
  $ source <(nodecheck completion bash)

Zsh:
  $ nodecheck completion zsh > "${fpath[1]}/_nodecheck"

Fish:
  $ nodecheck completion fish > ~/.config/fish/completions/nodecheck.fish

PowerShell:
  PS> nodecheck completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
