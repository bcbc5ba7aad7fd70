// Package cli wires the connector's components into cobra subcommands.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/clawcobie-afk/strava-connector/internal/config"
	"github.com/clawcobie-afk/strava-connector/internal/logging"
	"github.com/clawcobie-afk/strava-connector/internal/strava"
)

// app carries state shared by every subcommand.
type app struct {
	envFile string
	logger  *slog.Logger
}

// NewRootCommand builds the command tree. Each call returns an independent
// tree, so tests can run commands side by side.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "strava-connector",
		Short: "Ingest Strava activities through bulk sync and webhooks",
		Long: `strava-connector keeps a local copy of a Strava athlete's activities.

"sync" pulls the full history once, "serve" receives push notifications for new
activities while keeping the access token fresh, and "worker" runs bulk syncs as
durable Temporal workflows.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(a.envFile); err != nil {
				return fmt.Errorf("load %s: %w", a.envFile, err)
			}
			a.logger = logging.New(cmd.ErrOrStderr())
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file to preload; variables already set take precedence")

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newSyncCmd(a))
	root.AddCommand(newAuthCmd(a))
	root.AddCommand(newCheckCmd(a))
	root.AddCommand(newWorkerCmd(a))
	return root
}

// Execute runs the root command.
func Execute(ctx context.Context, version string) error {
	root := NewRootCommand()
	root.Version = version
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func newStravaClient(cfg config.Config) *strava.Client {
	return strava.NewClient(strava.Config{
		BaseURL:  cfg.APIBaseURL,
		TokenURL: cfg.TokenURL,
		Timeout:  cfg.HTTPTimeout,
	})
}
