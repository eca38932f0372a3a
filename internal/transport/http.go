// Package transport implements connection.Transport over net/http.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/salmonumbrella/apiconn/internal/connection"
	"github.com/salmonumbrella/apiconn/internal/debug"
	"github.com/salmonumbrella/apiconn/internal/validation"
)

const DefaultTimeout = 30 * time.Second

// HTTPTransport sends requests with an *http.Client. Responses are returned
// for every status code; only network and encoding failures are errors.
type HTTPTransport struct {
	HTTP      *http.Client
	UserAgent string

	validateURLs bool
	validateMu   sync.Mutex
	validated    map[string]struct{}
}

var _ connection.Transport = (*HTTPTransport)(nil)

// Option configures an HTTPTransport.
type Option func(*HTTPTransport)

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(client *http.Client) Option {
	return func(t *HTTPTransport) { t.HTTP = client }
}

// WithTimeout sets the client timeout.
func WithTimeout(d time.Duration) Option {
	return func(t *HTTPTransport) { t.HTTP.Timeout = d }
}

// WithUserAgent sets the User-Agent sent with every request.
func WithUserAgent(ua string) Option {
	return func(t *HTTPTransport) { t.UserAgent = ua }
}

// WithURLValidation turns base URL validation on or off. It is on by
// default; tests against httptest servers turn it off.
func WithURLValidation(enabled bool) Option {
	return func(t *HTTPTransport) { t.validateURLs = enabled }
}

// New creates an HTTPTransport with a TLS 1.2+ client.
func New(opts ...Option) *HTTPTransport {
	baseTransport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		baseTransport = &http.Transport{}
	}
	rt := baseTransport.Clone()
	if rt.TLSClientConfig == nil {
		rt.TLSClientConfig = &tls.Config{}
	} else {
		rt.TLSClientConfig = rt.TLSClientConfig.Clone()
	}
	rt.TLSClientConfig.MinVersion = tls.VersionTLS12
	rt.TLSClientConfig.InsecureSkipVerify = false

	t := &HTTPTransport{
		HTTP: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: rt,
		},
		validateURLs: true,
		validated:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Get sends params as the query string.
func (t *HTTPTransport) Get(ctx context.Context, baseURL, path string, headers map[string]string, params map[string]any) (*connection.Response, error) {
	target, err := t.buildURL(baseURL, path)
	if err != nil {
		return nil, err
	}
	if query := encodeQuery(params); query != "" {
		target += "?" + query
	}
	return t.send(ctx, http.MethodGet, target, headers, nil)
}

// Patch sends params as a JSON body.
func (t *HTTPTransport) Patch(ctx context.Context, baseURL, path string, headers map[string]string, params map[string]any) (*connection.Response, error) {
	return t.sendJSON(ctx, http.MethodPatch, baseURL, path, headers, params)
}

// Post sends params as a JSON body.
func (t *HTTPTransport) Post(ctx context.Context, baseURL, path string, headers map[string]string, params map[string]any) (*connection.Response, error) {
	return t.sendJSON(ctx, http.MethodPost, baseURL, path, headers, params)
}

func (t *HTTPTransport) sendJSON(ctx context.Context, method, baseURL, path string, headers map[string]string, params map[string]any) (*connection.Response, error) {
	target, err := t.buildURL(baseURL, path)
	if err != nil {
		return nil, err
	}
	var body []byte
	if len(params) > 0 {
		body, err = json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}
	return t.send(ctx, method, target, headers, body)
}

func (t *HTTPTransport) send(ctx context.Context, method, target string, headers map[string]string, body []byte) (*connection.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.UserAgent != "" {
		req.Header.Set("User-Agent", t.UserAgent)
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	start := time.Now()
	resp, err := t.HTTP.Do(req)
	if err != nil {
		if debug.IsEnabled(ctx) {
			slog.Debug("request failed", "method", method, "url", target, "error", err)
		}
		return nil, &RequestError{Method: method, URL: target, Err: err}
	}
	respBody, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, &RequestError{Method: method, URL: target, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if debug.IsEnabled(ctx) {
		slog.Debug("http round trip", "method", method, "url", target, "status", resp.StatusCode, "duration", time.Since(start))
	}
	return &connection.Response{
		Status:  resp.StatusCode,
		Headers: resp.Header,
		Body:    respBody,
	}, nil
}

func (t *HTTPTransport) buildURL(baseURL, path string) (string, error) {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if err := t.ensureValidated(baseURL); err != nil {
		return "", err
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return baseURL + path, nil
}

// ensureValidated checks each distinct base URL once per transport.
func (t *HTTPTransport) ensureValidated(baseURL string) error {
	if !t.validateURLs {
		if _, err := url.Parse(baseURL); err != nil {
			return fmt.Errorf("invalid base URL: %w", err)
		}
		return nil
	}

	t.validateMu.Lock()
	defer t.validateMu.Unlock()
	if _, ok := t.validated[baseURL]; ok {
		return nil
	}
	if err := validation.ValidateBaseURL(baseURL); err != nil {
		return fmt.Errorf("URL validation failed: %w", err)
	}
	if t.validated == nil {
		t.validated = make(map[string]struct{})
	}
	t.validated[baseURL] = struct{}{}
	return nil
}

// encodeQuery renders params sorted by key. Slices become repeated keys,
// nil values are skipped.
func encodeQuery(params map[string]any) string {
	values := url.Values{}
	for k, param := range params {
		switch v := param.(type) {
		case nil:
		case []string:
			for _, item := range v {
				values.Add(k, item)
			}
		case []any:
			for _, item := range v {
				values.Add(k, fmt.Sprint(item))
			}
		case []int:
			for _, item := range v {
				values.Add(k, fmt.Sprint(item))
			}
		default:
			values.Add(k, fmt.Sprint(v))
		}
	}
	return values.Encode()
}
