package cmd

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/salmonumbrella/apiconn/internal/auth"
	"github.com/salmonumbrella/apiconn/internal/config"
	"github.com/salmonumbrella/apiconn/internal/connection"
	"github.com/salmonumbrella/apiconn/internal/dryrun"
	"github.com/salmonumbrella/apiconn/internal/interceptors"
	"github.com/salmonumbrella/apiconn/internal/transport"
)

// userAgent is sent with every request.
func userAgent() string {
	return "apiconn/" + version
}

// newTransport can be replaced in tests.
var newTransport = func() connection.Transport {
	return transport.New(transport.WithTimeout(flags.Timeout), transport.WithUserAgent(userAgent()))
}

func resolveConfig() (config.Resolved, error) {
	return resolveConfigWith(false)
}

// resolveConfigWith resolves like resolveConfig; allowMissingFile tolerates
// a --config file that does not exist yet.
func resolveConfigWith(allowMissingFile bool) (config.Resolved, error) {
	return config.Resolve(config.Options{
		Profile:          flags.Profile,
		File:             flags.ConfigFile,
		AllowMissingFile: allowMissingFile,
		Flags: config.Profile{
			BaseURL:    flags.BaseURL,
			ChannelID:  flags.ChannelID,
			ProducerID: flags.ProducerID,
			DeviceID:   flags.DeviceID,
			Token:      flags.Token,
			RedisURL:   flags.RedisURL,
		},
	})
}

// client bundles a connection with the chains every request gets.
type client struct {
	conn           *connection.Connection
	resolved       config.Resolved
	authenticators []connection.Authenticator
	interceptors   []connection.ResponseInterceptor
	rateLimit      *interceptors.RateLimit
	registry       *prometheus.Registry
	closers        []func() error
}

// newClient resolves configuration and builds the connection. jq, when
// set, filters successful JSON responses.
func newClient(cmd *cobra.Command, jq string) (*client, error) {
	ctx := cmd.Context()
	resolved, err := resolveConfig()
	if err != nil {
		return nil, err
	}

	var tr connection.Transport
	if flags.DryRun {
		tr = dryrun.New(cmd.OutOrStdout())
	} else {
		tr = newTransport()
	}

	c := &client{
		conn:      connection.New(tr, resolved.Profile.ConnectionConfig()),
		resolved:  resolved,
		rateLimit: interceptors.NewRateLimit(),
	}

	if !flags.NoAuth {
		authenticator, closer, err := authenticatorFor(ctx, resolved)
		if err != nil {
			return nil, err
		}
		c.authenticators = []connection.Authenticator{authenticator}
		if closer != nil {
			c.closers = append(c.closers, closer)
		}
	}

	c.interceptors = []connection.ResponseInterceptor{c.rateLimit}
	if flags.MetricsFile != "" {
		c.registry = prometheus.NewRegistry()
		m, err := interceptors.NewMetrics(c.registry)
		if err != nil {
			return nil, err
		}
		c.interceptors = append(c.interceptors, m)
	}
	c.interceptors = append(c.interceptors, interceptors.Logging{}, interceptors.Status{})
	if jq != "" {
		f, err := interceptors.NewFilter(jq)
		if err != nil {
			return nil, err
		}
		c.interceptors = append(c.interceptors, f)
	}
	return c, nil
}

// request builds a request carrying the client's chains.
func (c *client) request(t connection.RequestType, path string, headers map[string]string, params map[string]any) connection.Request {
	return connection.Request{
		Type:                 t,
		Path:                 path,
		Headers:              headers,
		Parameters:           params,
		Authenticators:       c.authenticators,
		ResponseInterceptors: c.interceptors,
	}
}

// Close flushes metrics and releases token store connections.
func (c *client) Close() error {
	var firstErr error
	if c.registry != nil {
		if err := prometheus.WriteToTextfile(flags.MetricsFile, c.registry); err != nil {
			firstErr = fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	for _, closer := range c.closers {
		if err := closer(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// authenticatorFor picks the authenticator for the resolved settings.
// A configured token is sent as-is, or refreshed in memory when a refresh
// token came with it; otherwise the token store of the profile is used.
func authenticatorFor(ctx context.Context, resolved config.Resolved) (connection.Authenticator, func() error, error) {
	p := resolved.Profile
	if p.Token != "" && p.RefreshToken == "" {
		return auth.Bearer{Source: auth.StaticTokenSource(p.Token)}, nil, nil
	}

	var store auth.TokenStore
	var closer func() error
	if p.Token != "" {
		mem := auth.NewMemoryStore()
		if err := mem.Save(ctx, resolved.ProfileName, auth.Token{AccessToken: p.Token, RefreshToken: p.RefreshToken}); err != nil {
			return nil, nil, err
		}
		store = mem
	} else {
		var err error
		store, closer, err = openTokenStore(resolved)
		if err != nil {
			return nil, nil, err
		}
	}

	refreshing := auth.NewRefreshing(store, resolved.ProfileName)
	if p.RefreshPath != "" {
		refreshing.RefreshPath = p.RefreshPath
	}
	return refreshing, closer, nil
}

// openTokenStore returns the Redis store when a Redis URL is configured and
// the keyring store otherwise.
func openTokenStore(resolved config.Resolved) (auth.TokenStore, func() error, error) {
	if url := resolved.Profile.RedisURL; url != "" {
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		client := redis.NewClient(opts)
		return auth.NewRedisStore(client), client.Close, nil
	}
	ring, err := config.OpenKeyring()
	if err != nil {
		return nil, nil, err
	}
	return auth.NewKeyringStore(ring), nil, nil
}
