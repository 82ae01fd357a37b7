package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/nfrund/scriptdesk/internal/app"
	"github.com/nfrund/scriptdesk/internal/config"
	"github.com/nfrund/scriptdesk/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "scriptdesk",
	Short: "Scriptdesk command line",
	Long: `Scriptdesk manages Spark scripts: drafting, submitting and watching jobs.

Available commands:
  serve      Start the HTTP API
  scripts    Inspect stored scripts
  version    Print the version

Use "scriptdesk [command] --help" for more information about a specific command.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slog.SetDefault(logging.New())
	},
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withApp loads and validates configuration, builds the application and
// closes it once fn returns.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg := config.New()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	a := app.New(cfg)
	defer func() {
		if err := a.Close(context.WithoutCancel(ctx)); err != nil {
			slog.Error("Failed to shut down cleanly", "error", err)
		}
	}()
	return fn(a)
}
