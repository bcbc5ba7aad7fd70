package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/clawcobie-afk/strava-connector/internal/activity"
	"github.com/clawcobie-afk/strava-connector/internal/config"
	"github.com/clawcobie-afk/strava-connector/internal/credential"
	"github.com/clawcobie-afk/strava-connector/internal/refresher"
	"github.com/clawcobie-afk/strava-connector/internal/sentry"
	"github.com/clawcobie-afk/strava-connector/internal/webhook"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var dbURL, addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Receive webhook deliveries and keep the access token fresh",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if dbURL != "" {
				cfg.DatabaseURL = dbURL
			}
			if addr != "" {
				cfg.HTTPAddress = addr
			}
			return runServe(cmd.Context(), cfg, a.logger)
		},
	}
	cmd.Flags().StringVar(&dbURL, "db", "", "SQLite path or postgres:// URL (default $DATABASE_URL or strava.db)")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default $HTTP_ADDRESS or :8080)")
	return cmd
}

func runServe(parent context.Context, cfg config.Config, logger *slog.Logger) error {
	if err := cfg.Validate(config.KeyClientID, config.KeyClientSecret, config.KeyRefreshToken); err != nil {
		return err
	}
	if err := sentry.Init(sentry.Config{DSN: cfg.SentryDSN, Environment: cfg.SentryEnvironment}, logger); err != nil {
		return err
	}
	defer sentry.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := activity.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer repo.Close()

	client := newStravaClient(cfg)
	tokens := credential.NewStore()
	if cfg.AccessToken != "" {
		// Serves deliveries until the first refresh lands.
		tokens.Publish(credential.Credential{AccessToken: cfg.AccessToken, RefreshToken: cfg.RefreshToken})
	}
	if cfg.WebhookVerifyToken == "" {
		logger.Warn("STRAVA_WEBHOOK_VERIFY_TOKEN not set, subscription verification will be rejected")
	}

	ref := refresher.New(client, tokens, refresher.Config{
		ClientID:       cfg.ClientID,
		ClientSecret:   cfg.ClientSecret,
		RefreshToken:   cfg.RefreshToken,
		Interval:       cfg.RefreshInterval,
		RefreshOnStart: true,
	}, logger)

	handler := webhook.NewHandler(tokens, client, repo, logger.With("component", "webhook.handler"))
	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           webhook.NewServer(handler, repo, tokens, cfg.WebhookVerifyToken, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	refresherDone := make(chan struct{})
	go func() {
		defer close(refresherDone)
		_ = ref.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("webhook API listening", "addr", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		stop()
		<-refresherDone
		return fmt.Errorf("webhook server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		return err
	}
	<-refresherDone
	logger.Info("webhook server stopped")
	return nil
}
