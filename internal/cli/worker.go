package cli

import (
	"time"

	"github.com/spf13/cobra"
	temporalworker "go.temporal.io/sdk/worker"

	"github.com/clawcobie-afk/strava-connector/internal/activity"
	"github.com/clawcobie-afk/strava-connector/internal/config"
	"github.com/clawcobie-afk/strava-connector/internal/sentry"
	"github.com/clawcobie-afk/strava-connector/internal/syncer"
	"github.com/clawcobie-afk/strava-connector/internal/syncflow"
)

func newWorkerCmd(a *app) *cobra.Command {
	var dbURL string
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Host the Temporal worker that executes bulk sync workflows",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if dbURL != "" {
				cfg.DatabaseURL = dbURL
			}
			if err := cfg.Validate(config.KeyClientID, config.KeyClientSecret, config.KeyRefreshToken); err != nil {
				return err
			}

			logger := a.logger
			if err := sentry.Init(sentry.Config{DSN: cfg.SentryDSN, Environment: cfg.SentryEnvironment}, logger); err != nil {
				return err
			}
			defer sentry.Flush(2 * time.Second)

			repo, err := activity.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer repo.Close()

			c, err := dialTemporal(cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()

			s := syncer.New(newStravaClient(cfg), repo, syncer.Config{
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				RefreshToken: cfg.RefreshToken,
			}, logger)
			w := syncflow.RegisterWorker(c, s, logger)

			logger.Info("sync worker listening", "task_queue", syncflow.TaskQueue, "temporal", cfg.TemporalHostPort)
			return w.Run(temporalworker.InterruptCh())
		},
	}
	cmd.Flags().StringVar(&dbURL, "db", "", "SQLite path or postgres:// URL (default $DATABASE_URL or strava.db)")
	return cmd
}
