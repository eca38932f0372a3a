package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/salmonumbrella/apiconn/internal/auth"
	"github.com/salmonumbrella/apiconn/internal/config"
	"github.com/salmonumbrella/apiconn/internal/validation"
)

// newAuthCmd returns the auth command with subcommands
func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage authentication credentials",
		Long:  "Store API settings in a keyring profile and tokens in the token store (OS keychain, or Redis when configured).",
	}

	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthStatusCmd())
	cmd.AddCommand(newAuthLogoutCmd())

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var (
		refreshToken string
		refreshPath  string
		writeConfig  bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save API settings and tokens",
		Long: strings.TrimSpace(`
Save the effective API settings to a keyring profile and make it current.

Settings are taken from --base-url, --channel-id, --producer-id and
--device-id, falling back to APICONN_* variables (including those loaded
with --env-file). The access token given with --token, and the refresh
token given with --refresh-token, are written to the token store rather
than to the profile.
`),
		Example: strings.TrimSpace(`
  # Save settings and a token pair
  apiconn auth login --base-url https://api.example.com --channel-id web \
    --producer-id shop --device-id d-1 --token ACCESS --refresh-token REFRESH

  # Load everything from a .env file into the "staging" profile
  apiconn auth login --env-file staging.env --profile staging

  # Share refreshed tokens between machines
  apiconn auth login --base-url https://api.example.com --token ACCESS \
    --refresh-token REFRESH --redis-url redis://localhost:6379/0
`),
		Args: cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			resolved, err := resolveConfigWith(writeConfig)
			if errors.Is(err, config.ErrNotConfigured) {
				return fmt.Errorf("--base-url is required")
			}
			if err != nil {
				return err
			}
			p := resolved.Profile
			if refreshToken != "" {
				p.RefreshToken = strings.TrimSpace(refreshToken)
			}
			if refreshPath != "" {
				p.RefreshPath = strings.TrimSpace(refreshPath)
			}

			if err := validation.ValidateBaseURL(p.BaseURL); err != nil {
				return fmt.Errorf("invalid URL: %w", err)
			}

			if err := config.SaveProfile(resolved.ProfileName, p.WithoutSecrets()); err != nil {
				return fmt.Errorf("failed to save credentials: %w", err)
			}
			if writeConfig {
				if err := config.WriteFile(configPath(), p.WithoutSecrets()); err != nil {
					return err
				}
			}

			tok := auth.Token{AccessToken: p.Token, RefreshToken: p.RefreshToken}
			if tok.AccessToken != "" {
				store, closeStore, err := openTokenStore(config.Resolved{ProfileName: resolved.ProfileName, Profile: p})
				if err != nil {
					return err
				}
				if closeStore != nil {
					defer func() { _ = closeStore() }()
				}
				if err := store.Save(cmd.Context(), resolved.ProfileName, tok); err != nil {
					return fmt.Errorf("failed to save token: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, "Authentication settings saved successfully!")
			_, _ = fmt.Fprintf(out, "  Profile: %s\n", resolved.ProfileName)
			_, _ = fmt.Fprintf(out, "  Base URL: %s\n", p.BaseURL)
			if tok.AccessToken != "" {
				_, _ = fmt.Fprintf(out, "  Token: %s\n", tok.Redacted())
			}
			if tok.RefreshToken != "" {
				_, _ = fmt.Fprintln(out, "  Refresh: enabled")
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "Refresh token used to renew the access token (env APICONN_REFRESH_TOKEN)")
	cmd.Flags().StringVar(&refreshPath, "refresh-path", "", "Token refresh endpoint path (default "+auth.DefaultRefreshPath+")")
	cmd.Flags().BoolVar(&writeConfig, "write-config", false, "Also write the settings, without tokens, to the YAML config file")

	return cmd
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active profile and token",
		Args:  cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			resolved, err := resolveConfig()
			if err != nil {
				return err
			}
			p := resolved.Profile

			status := map[string]any{
				"profile":  resolved.ProfileName,
				"base_url": p.BaseURL,
				"identity": p.Identity(),
			}

			switch {
			case p.Token != "":
				status["token"] = auth.Token{AccessToken: p.Token}.Redacted()
				status["token_source"] = "config"
				status["refresh"] = p.RefreshToken != ""
			default:
				store, closeStore, err := openTokenStore(resolved)
				if err != nil {
					return err
				}
				if closeStore != nil {
					defer func() { _ = closeStore() }()
				}
				tok, err := store.Load(cmd.Context(), resolved.ProfileName)
				switch {
				case errors.Is(err, auth.ErrNoToken):
					status["token_source"] = "none"
				case err != nil:
					return err
				default:
					status["token"] = tok.Redacted()
					status["token_source"] = "store"
					status["refresh"] = tok.RefreshToken != ""
					if !tok.ExpiresAt.IsZero() {
						status["expires_at"] = tok.ExpiresAt.Format(time.RFC3339)
						status["expired"] = tok.Expired(time.Now())
					}
				}
			}

			if flags.JSON {
				return printJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Profile: %s\n", resolved.ProfileName)
			_, _ = fmt.Fprintf(out, "Base URL: %s\n", p.BaseURL)
			id := p.Identity()
			_, _ = fmt.Fprintf(out, "Identity: channel=%s producer=%s device=%s\n", id.ChannelID, id.ProducerID, id.DeviceID)
			if tok, ok := status["token"].(string); ok {
				_, _ = fmt.Fprintf(out, "Token: %s (%s)\n", tok, status["token_source"])
			} else {
				_, _ = fmt.Fprintln(out, "Token: not stored")
			}
			if exp, ok := status["expires_at"].(string); ok {
				_, _ = fmt.Fprintf(out, "Expires: %s\n", exp)
			}
			return nil
		}),
	}
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the active profile and its token",
		Args:  cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			resolved, err := resolveConfig()
			if err != nil {
				// The profile may be half configured; still clean up what exists.
				name, nameErr := profileName()
				if nameErr != nil {
					return nameErr
				}
				resolved = config.Resolved{ProfileName: name, Profile: config.Profile{RedisURL: flags.RedisURL}}
			}

			store, closeStore, err := openTokenStore(resolved)
			if err != nil {
				return err
			}
			if closeStore != nil {
				defer func() { _ = closeStore() }()
			}
			if err := store.Delete(cmd.Context(), resolved.ProfileName); err != nil {
				return fmt.Errorf("failed to remove token: %w", err)
			}
			if err := config.DeleteProfile(resolved.ProfileName); err != nil {
				return fmt.Errorf("failed to remove credentials: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Logged out of profile %s\n", resolved.ProfileName)
			return nil
		}),
	}
}

// profileName returns the profile selected by --profile, APICONN_PROFILE or
// the keyring.
func profileName() (string, error) {
	if flags.Profile != "" {
		return flags.Profile, nil
	}
	if env := strings.TrimSpace(getenv(config.EnvProfile)); env != "" {
		return env, nil
	}
	return config.CurrentProfile()
}
