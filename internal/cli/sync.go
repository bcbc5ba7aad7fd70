package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/clawcobie-afk/strava-connector/internal/activity"
	"github.com/clawcobie-afk/strava-connector/internal/config"
	"github.com/clawcobie-afk/strava-connector/internal/syncer"
	"github.com/clawcobie-afk/strava-connector/internal/syncflow"
)

type syncFlags struct {
	dbURL       string
	after       string
	perPage     int
	useTemporal bool
}

func newSyncCmd(a *app) *cobra.Command {
	var flags syncFlags
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull every activity not yet stored locally",
		Long: `Exchanges the refresh token, then pages through the athlete's activities and
stores every one that is not already present. Existing activities are skipped,
so re-running is cheap.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runSync(cmd.Context(), cmd.OutOrStdout(), flags)
		},
	}
	cmd.Flags().StringVar(&flags.dbURL, "db", "", "SQLite path or postgres:// URL (default $DATABASE_URL or strava.db)")
	cmd.Flags().StringVar(&flags.after, "after", "", "only sync activities after this date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&flags.perPage, "per-page", syncer.DefaultPerPage, "activities requested per page")
	cmd.Flags().BoolVar(&flags.useTemporal, "temporal", false, "run as a Temporal workflow on a running worker")
	return cmd
}

func (a *app) runSync(ctx context.Context, out io.Writer, flags syncFlags) error {
	cfg := config.Load()
	if flags.dbURL != "" {
		cfg.DatabaseURL = flags.dbURL
	}
	if err := cfg.Validate(config.KeyClientID, config.KeyClientSecret, config.KeyRefreshToken); err != nil {
		return err
	}

	var after *time.Time
	if flags.after != "" {
		t, err := syncer.ParseAfter(flags.after)
		if err != nil {
			return err
		}
		after = &t
	}

	if flags.useTemporal {
		return a.runTemporalSync(ctx, out, cfg, syncflow.Input{After: after, PerPage: flags.perPage, Reason: "cli"})
	}

	repo, err := activity.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer repo.Close()

	s := syncer.New(newStravaClient(cfg), repo, syncer.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RefreshToken: cfg.RefreshToken,
	}, a.logger)

	fmt.Fprintln(out, "Fetching activities...")
	saved := 0
	summary, err := s.Run(ctx, syncer.Options{
		After:   after,
		PerPage: flags.perPage,
		Progress: func(act activity.Activity) {
			saved++
			fmt.Fprintf(out, "[%d] %s - %.1f km - %s\n", saved, act.Name, act.Distance/1000, syncer.ActivityDate(act))
		},
	})
	if err != nil {
		return err
	}
	printSummary(out, summary)
	return nil
}

func (a *app) runTemporalSync(ctx context.Context, out io.Writer, cfg config.Config, input syncflow.Input) error {
	c, err := dialTemporal(cfg, a.logger)
	if err != nil {
		return err
	}
	defer c.Close()

	fmt.Fprintf(out, "Starting workflow %s...\n", syncflow.WorkflowID)
	result, err := syncflow.NewOrchestrator(c, a.logger).RunSync(ctx, input)
	if err != nil {
		if errors.Is(err, syncflow.ErrAlreadyRunning) {
			fmt.Fprintln(out, "A bulk sync is already running; try again once it finishes.")
		}
		return err
	}
	printSummary(out, result.Summary)
	return nil
}

func printSummary(out io.Writer, summary syncer.Summary) {
	fmt.Fprintf(out, "Done: %d saved, %d skipped (already present).\n", summary.Saved, summary.Skipped)
}
