package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clawcobie-afk/strava-connector/internal/config"
	"github.com/clawcobie-afk/strava-connector/internal/envfile"
)

type authFlags struct {
	clientID       string
	clientSecret   string
	accessToken    string
	refreshToken   string
	verifyToken    string
	envPath        string
	centralEnvPath string
}

func newAuthCmd(a *app) *cobra.Command {
	var flags authFlags
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Validate Strava credentials and save them to .env files",
		Long: `Exchanges the refresh token once to prove the credentials work, then writes
the STRAVA_* keys to a local .env (replacing it) and merges them into the shared
config file, leaving its other lines untouched. Missing values are prompted for.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runAuth(cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.clientID, "client-id", "", "Strava application client ID")
	cmd.Flags().StringVar(&flags.clientSecret, "client-secret", "", "Strava application client secret")
	cmd.Flags().StringVar(&flags.accessToken, "access-token", "", "current access token (replaced by the freshly minted one)")
	cmd.Flags().StringVar(&flags.refreshToken, "refresh-token", "", "Strava refresh token")
	cmd.Flags().StringVar(&flags.verifyToken, "verify-token", "", "optional webhook verify token")
	cmd.Flags().StringVar(&flags.envPath, "env-path", ".env", "local dotenv file to overwrite")
	cmd.Flags().StringVar(&flags.centralEnvPath, "central-env", "", "shared dotenv file to merge into (default ~/.config/knowledge-vault/.env)")
	return cmd
}

func (a *app) runAuth(cmd *cobra.Command, flags authFlags) error {
	out := cmd.OutOrStdout()
	in := bufio.NewReader(cmd.InOrStdin())

	var err error
	if flags.clientID, err = promptIfEmpty(in, out, "Client ID", flags.clientID); err != nil {
		return err
	}
	if flags.clientSecret, err = promptIfEmpty(in, out, "Client secret", flags.clientSecret); err != nil {
		return err
	}
	if flags.refreshToken, err = promptIfEmpty(in, out, "Refresh token", flags.refreshToken); err != nil {
		return err
	}

	central := flags.centralEnvPath
	if central == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		central = filepath.Join(home, ".config", "knowledge-vault", ".env")
	}

	cfg := config.Load()
	cred, err := newStravaClient(cfg).ExchangeRefreshToken(cmd.Context(), flags.clientID, flags.clientSecret, flags.refreshToken)
	if err != nil {
		return fmt.Errorf("failed to validate credentials: %w", err)
	}
	refreshToken := flags.refreshToken
	if cred.RefreshToken != "" {
		refreshToken = cred.RefreshToken
	}

	entries := []envfile.Entry{
		{Key: config.KeyClientID, Value: flags.clientID},
		{Key: config.KeyClientSecret, Value: flags.clientSecret},
		{Key: config.KeyAccessToken, Value: cred.AccessToken},
		{Key: config.KeyRefreshToken, Value: refreshToken},
	}
	if flags.verifyToken != "" {
		entries = append(entries, envfile.Entry{Key: config.KeyVerifyToken, Value: flags.verifyToken})
	}

	if err := envfile.Write(flags.envPath, entries); err != nil {
		return err
	}
	if err := envfile.Merge(central, entries); err != nil {
		return err
	}
	a.logger.Debug("credentials saved", "env_path", flags.envPath, "central_env", central)
	fmt.Fprintf(out, "Config written to %s and %s\n", flags.envPath, central)
	return nil
}

func promptIfEmpty(in *bufio.Reader, out io.Writer, label, current string) (string, error) {
	if current != "" {
		return current, nil
	}
	fmt.Fprintf(out, "%s: ", label)
	line, err := in.ReadString('\n')
	value := strings.TrimSpace(line)
	if err != nil && (err != io.EOF || value == "") {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	if value == "" {
		return "", fmt.Errorf("%s is required", strings.ToLower(label))
	}
	return value, nil
}
