// Package connection dispatches API requests through a Transport, running
// the request's authenticator chain before the call and its authenticator
// and response interceptor chains after it.
package connection

import (
	"context"
	"log/slog"
	"strings"

	"github.com/salmonumbrella/apiconn/internal/debug"
)

// Identity header names sent with every request.
const (
	HeaderChannelID = "X-Channel-Id"
	HeaderAppID     = "X-App-Id"
	HeaderDeviceID  = "X-Device-Id"
)

// Identity identifies the calling application to the API.
type Identity struct {
	ChannelID  string `json:"channel_id" yaml:"channel_id"`
	ProducerID string `json:"producer_id" yaml:"producer_id"`
	DeviceID   string `json:"device_id" yaml:"device_id"`
}

// Config is the static configuration of a Connection.
type Config struct {
	BaseURL        string   `json:"base_url" yaml:"base_url"`
	Authentication Identity `json:"api_authentication" yaml:"api_authentication"`
}

// Connection is the single entry point for outbound API calls.
//
// A Connection holds no mutable state after New returns, so Invoke may be
// called from several goroutines at once. Each Invoke runs its stages
// strictly one after another.
type Connection struct {
	transport      Transport
	config         Config
	defaultHeaders map[string]string
}

var _ Invoker = (*Connection)(nil)

// New creates a Connection over transport. The identity headers are built
// once from cfg and merged into every transport call; transport itself is
// never modified, so several Connections may share one Transport.
func New(transport Transport, cfg Config) *Connection {
	return &Connection{
		transport: transport,
		config:    cfg,
		defaultHeaders: map[string]string{
			HeaderChannelID: cfg.Authentication.ChannelID,
			HeaderAppID:     cfg.Authentication.ProducerID,
			HeaderDeviceID:  cfg.Authentication.DeviceID,
		},
	}
}

// BaseURL returns the base URL every request is sent to.
func (c *Connection) BaseURL() string {
	return c.config.BaseURL
}

// Config returns the configuration the Connection was built with.
func (c *Connection) Config() Config {
	return c.config
}

// DefaultHeaders returns a copy of the identity headers added to every call.
func (c *Connection) DefaultHeaders() map[string]string {
	out := make(map[string]string, len(c.defaultHeaders))
	for k, v := range c.defaultHeaders {
		out[k] = v
	}
	return out
}

// Invoke sends req and returns the response produced by the last stage of
// the response chain.
//
// Errors from the transport or from any authenticator or interceptor are
// returned as-is. A request type other than GET, PATCH or POST fails with
// an *UnsupportedRequestTypeError before anything is sent.
func (c *Connection) Invoke(ctx context.Context, req Request) (*Response, error) {
	req, err := c.interceptRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	send, err := c.sender(req.Type)
	if err != nil {
		return nil, err
	}

	if debug.IsEnabled(ctx) {
		slog.Debug("dispatching request", "type", req.Type, "base_url", c.config.BaseURL, "path", req.Path)
	}

	resp, err := send(ctx, c.config.BaseURL, req.Path, c.headersFor(req), req.Parameters)
	if err != nil {
		return nil, err
	}

	resp, err = c.interceptResponse(ctx, req, resp)
	if err != nil {
		return nil, err
	}

	if debug.IsEnabled(ctx) && resp != nil {
		slog.Debug("request complete", "type", req.Type, "path", req.Path, "status", resp.Status)
	}
	return resp, nil
}

type sendFunc func(ctx context.Context, baseURL, path string, headers map[string]string, params map[string]any) (*Response, error)

func (c *Connection) sender(t RequestType) (sendFunc, error) {
	switch t {
	case RequestGet:
		return c.transport.Get, nil
	case RequestPatch:
		return c.transport.Patch, nil
	case RequestPost:
		return c.transport.Post, nil
	default:
		return nil, &UnsupportedRequestTypeError{Type: t}
	}
}

func (c *Connection) interceptRequest(ctx context.Context, req Request) (Request, error) {
	for _, authenticator := range req.Authenticators {
		next, err := authenticator.InterceptRequest(ctx, req)
		if err != nil {
			return Request{}, err
		}
		req = next
	}
	return req, nil
}

func (c *Connection) interceptResponse(ctx context.Context, req Request, resp *Response) (*Response, error) {
	for _, authenticator := range req.Authenticators {
		next, err := authenticator.OnResponse(ctx, req, resp, c)
		if err != nil {
			return nil, err
		}
		if next != nil {
			resp = next
		}
	}
	for _, interceptor := range req.ResponseInterceptors {
		next, err := interceptor.OnResponse(ctx, req, resp, c)
		if err != nil {
			return nil, err
		}
		if next != nil {
			resp = next
		}
	}
	return resp, nil
}

// headersFor merges the identity headers with the request headers. Request
// headers win when both set the same name, compared case-insensitively.
func (c *Connection) headersFor(req Request) map[string]string {
	merged := make(map[string]string, len(c.defaultHeaders)+len(req.Headers))
	for k, v := range c.defaultHeaders {
		merged[k] = v
	}
	for k, v := range req.Headers {
		for existing := range merged {
			if existing != k && strings.EqualFold(existing, k) {
				delete(merged, existing)
			}
		}
		merged[k] = v
	}
	return merged
}
