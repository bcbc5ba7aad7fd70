package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clawcobie-afk/strava-connector/internal/config"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the required variables are set and the Strava API accepts them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			cfg := config.Load()

			failures := 0
			check := func(label string, ok bool, detail string) bool {
				if ok {
					fmt.Fprintf(out, "OK    %s\n", label)
					return true
				}
				if detail != "" {
					fmt.Fprintf(out, "FAIL  %s - %s\n", label, detail)
				} else {
					fmt.Fprintf(out, "FAIL  %s\n", label)
				}
				failures++
				return false
			}

			allSet := true
			for _, v := range []struct{ key, value string }{
				{config.KeyClientID, cfg.ClientID},
				{config.KeyClientSecret, cfg.ClientSecret},
				{config.KeyAccessToken, cfg.AccessToken},
				{config.KeyRefreshToken, cfg.RefreshToken},
			} {
				if !check(v.key+" is set", v.value != "", "") {
					allSet = false
				}
			}

			if allSet {
				_, err := newStravaClient(cfg).ExchangeRefreshToken(cmd.Context(), cfg.ClientID, cfg.ClientSecret, cfg.RefreshToken)
				detail := ""
				if err != nil {
					detail = err.Error()
					a.logger.Debug("reachability check failed", "error", err)
				}
				check("Strava API is reachable", err == nil, detail)
			}

			if failures == 0 {
				fmt.Fprintln(out, "All checks passed.")
				return nil
			}
			fmt.Fprintf(out, "%d check(s) failed.\n", failures)
			return fmt.Errorf("%d check(s) failed", failures)
		},
	}
}
