package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/salmonumbrella/apiconn/internal/auth"
	"github.com/salmonumbrella/apiconn/internal/config"
	"github.com/salmonumbrella/apiconn/internal/suggest"
)

var getenv = os.Getenv

func configPath() string {
	if flags.ConfigFile != "" {
		return flags.ConfigFile
	}
	if env := strings.TrimSpace(getenv(config.EnvConfigFile)); env != "" {
		return env
	}
	return config.DefaultConfigPath()
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and switch configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigProfilesCmd())
	cmd.AddCommand(newConfigUseCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration and where it came from",
		Args:  cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			resolved, err := resolveConfig()
			if err != nil {
				return err
			}
			p := resolved.Profile
			if p.Token != "" {
				p.Token = auth.Token{AccessToken: p.Token}.Redacted()
			}
			if p.RefreshToken != "" {
				p.RefreshToken = auth.Token{AccessToken: p.RefreshToken}.Redacted()
			}

			if flags.JSON {
				return printJSON(cmd, map[string]any{
					"profile": resolved.ProfileName,
					"config":  p,
					"sources": resolved.Sources,
				})
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "profile:      %s\n", resolved.ProfileName)
			_, _ = fmt.Fprintf(out, "base_url:     %s\n", p.BaseURL)
			_, _ = fmt.Fprintf(out, "channel_id:   %s\n", p.ChannelID)
			_, _ = fmt.Fprintf(out, "producer_id:  %s\n", p.ProducerID)
			_, _ = fmt.Fprintf(out, "device_id:    %s\n", p.DeviceID)
			if p.Token != "" {
				_, _ = fmt.Fprintf(out, "token:        %s\n", p.Token)
			}
			if p.RefreshToken != "" {
				_, _ = fmt.Fprintf(out, "refresh:      %s\n", p.RefreshToken)
			}
			if p.RefreshPath != "" {
				_, _ = fmt.Fprintf(out, "refresh_path: %s\n", p.RefreshPath)
			}
			if p.RedisURL != "" {
				_, _ = fmt.Fprintf(out, "redis_url:    %s\n", p.RedisURL)
			}
			sources := make([]string, 0, len(resolved.Sources))
			for _, s := range resolved.Sources {
				sources = append(sources, string(s))
			}
			_, _ = fmt.Fprintf(out, "sources:      %s\n", strings.Join(sources, ", "))
			return nil
		}),
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the YAML config file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), configPath())
		},
	}
}

func newConfigProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List saved profiles",
		Args:  cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			profiles, err := config.ListProfiles()
			if err != nil {
				return err
			}
			current, err := config.CurrentProfile()
			if err != nil {
				return err
			}

			if flags.JSON {
				return printJSON(cmd, map[string]any{"current": current, "profiles": profiles})
			}
			if len(profiles) == 0 {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No profiles saved. Run: apiconn auth login")
				return nil
			}
			for _, name := range profiles {
				marker := " "
				if name == current {
					marker = "*"
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
			}
			return nil
		}),
	}
}

func newConfigUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <profile>",
		Short: "Make a saved profile current",
		Args:  cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if _, err := config.LoadProfile(name); err != nil {
				profiles, _ := config.ListProfiles()
				if hint := suggest.Closest(name, profiles); hint != "" {
					return fmt.Errorf("profile %q not found (did you mean %s?)", name, hint)
				}
				return fmt.Errorf("profile %q not found", name)
			}
			if err := config.SetCurrentProfile(name); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Switched to profile %s\n", name)
			return nil
		}),
	}
}
