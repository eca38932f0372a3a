package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/salmonumbrella/apiconn/internal/config"
	"github.com/salmonumbrella/apiconn/internal/debug"
	"github.com/salmonumbrella/apiconn/internal/suggest"
	"github.com/salmonumbrella/apiconn/internal/transport"
	"github.com/salmonumbrella/apiconn/internal/validation"
)

// rootFlags holds global CLI flags
type rootFlags struct {
	Debug        bool
	AllowPrivate bool
	JSON         bool
	NoAuth       bool
	DryRun       bool
	Profile      string
	ConfigFile   string
	EnvFile      string
	BaseURL      string
	ChannelID    string
	ProducerID   string
	DeviceID     string
	Token        string
	RedisURL     string
	MetricsFile  string
	Timeout      time.Duration
}

// flags holds the global command flags. It MUST be reset at the start of
// every Execute() call; tests depend on that for clean state.
var flags = rootFlags{Timeout: transport.DefaultTimeout}

func parseBoolEnv(key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && v
}

// Execute runs the root command
func Execute(ctx context.Context, args []string) error {
	// Runs before the flag reset so env-driven defaults see the values.
	config.LoadDefaultEnvFile()

	flags = rootFlags{
		AllowPrivate: parseBoolEnv(validation.EnvAllowPrivate),
		Timeout:      transport.DefaultTimeout,
	}

	root := &cobra.Command{
		Use:                "apiconn",
		Short:              "Send authenticated requests to an API through a configurable connection",
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true, // enhanceUnknownError suggests instead
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if flags.EnvFile != "" {
				if err := config.LoadEnvFile(flags.EnvFile); err != nil {
					return err
				}
			}

			allowPrivate := flags.AllowPrivate || parseBoolEnv(validation.EnvAllowPrivate)
			validation.SetAllowPrivate(allowPrivate)
			if allowPrivate {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Warning: allowing private/localhost URLs (use only with trusted targets).")
			}

			if flags.Timeout < 0 {
				return fmt.Errorf("--timeout must be >= 0")
			}

			debug.SetupLogger(flags.Debug)
			ctx = debug.WithDebug(ctx, flags.Debug)

			cmd.SetContext(ctx)
			return nil
		},
	}

	root.SetContext(ctx)
	root.SetArgs(args)

	pf := root.PersistentFlags()
	pf.BoolVar(&flags.Debug, "debug", false, "Enable debug logging")
	pf.BoolVar(&flags.AllowPrivate, "allow-private", flags.AllowPrivate, "Allow private/localhost URLs (unsafe; env APICONN_ALLOW_PRIVATE)")
	pf.BoolVar(&flags.JSON, "json", false, "Print responses and errors as JSON")
	pf.StringVar(&flags.Profile, "profile", "", "Keyring profile to use (env APICONN_PROFILE)")
	pf.StringVar(&flags.ConfigFile, "config", "", "YAML config file (env APICONN_CONFIG)")
	pf.StringVar(&flags.EnvFile, "env-file", "", "Load APICONN_* variables from a .env file")
	pf.StringVar(&flags.BaseURL, "base-url", "", "API base URL (env APICONN_BASE_URL)")
	pf.StringVar(&flags.ChannelID, "channel-id", "", "Channel identity header (env APICONN_CHANNEL_ID)")
	pf.StringVar(&flags.ProducerID, "producer-id", "", "Producer identity header (env APICONN_PRODUCER_ID)")
	pf.StringVar(&flags.DeviceID, "device-id", "", "Device identity header (env APICONN_DEVICE_ID)")
	pf.BoolVar(&flags.DryRun, "dry-run", false, "Print requests instead of sending them")
	pf.BoolVar(&flags.NoAuth, "no-auth", false, "Send requests without authentication")
	pf.StringVar(&flags.Token, "token", "", "Bearer token, bypasses the token store (env APICONN_TOKEN)")
	pf.StringVar(&flags.RedisURL, "redis-url", "", "Share refreshed tokens through Redis (env APICONN_REDIS_URL)")
	pf.StringVar(&flags.MetricsFile, "metrics-file", "", "Write Prometheus response metrics to this file")
	pf.DurationVar(&flags.Timeout, "timeout", flags.Timeout, "HTTP request timeout (e.g., 30s, 2m)")

	root.AddCommand(newInvokeCmd())
	for _, t := range requestShorthands {
		root.AddCommand(newShorthandCmd(t))
	}
	root.AddCommand(newAuthCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())

	targetCmd, err := root.ExecuteC()
	if err != nil {
		if !errors.Is(err, errAlreadyHandled) {
			_, _ = fmt.Fprintln(root.ErrOrStderr(), enhanceUnknownError(err, root, targetCmd))
		}
		return err
	}
	return nil
}

// enhanceUnknownError adds "did you mean?" suggestions to unknown command
// and flag errors.
func enhanceUnknownError(err error, root, targetCmd *cobra.Command) string {
	msg := err.Error()

	switch {
	case strings.Contains(msg, "unknown command"):
		if unknown := extractQuoted(msg); unknown != "" {
			var names []string
			for _, c := range root.Commands() {
				if c.IsAvailableCommand() {
					names = append(names, c.Name())
					names = append(names, c.Aliases...)
				}
			}
			if s := suggest.Closest(unknown, names); s != "" {
				return fmt.Sprintf("Error: %s\n\nDid you mean this?\n\t%s", msg, s)
			}
		}
	case strings.Contains(msg, "unknown flag"):
		if targetCmd == nil {
			targetCmd = root
		}
		unknown := strings.TrimSpace(msg[strings.LastIndex(msg, ":")+1:])
		var names []string
		targetCmd.Flags().VisitAll(func(f *pflag.Flag) { names = append(names, "--"+f.Name) })
		targetCmd.InheritedFlags().VisitAll(func(f *pflag.Flag) { names = append(names, "--"+f.Name) })
		if s := suggest.Closest(unknown, names); s != "" {
			return fmt.Sprintf("Error: %s\n\nDid you mean this?\n\t%s", msg, s)
		}
	}
	return "Error: " + msg
}

// extractQuoted returns the first double-quoted substring of s.
func extractQuoted(s string) string {
	start := strings.Index(s, `"`)
	if start < 0 {
		return ""
	}
	end := strings.Index(s[start+1:], `"`)
	if end < 0 {
		return ""
	}
	return s[start+1 : start+1+end]
}
