// Package dryrun provides a connection.Transport that previews requests
// instead of sending them.
package dryrun

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/salmonumbrella/apiconn/internal/connection"
)

// Preview describes a request that would have been sent.
type Preview struct {
	Method     string
	URL        string
	Headers    map[string]string
	Parameters map[string]any
}

// Write outputs the preview to the writer
func (p *Preview) Write(w io.Writer) {
	_, _ = fmt.Fprintf(w, "\n[DRY-RUN] Would send %s %s\n", p.Method, p.URL)
	_, _ = fmt.Fprintf(w, "───────────────────────────────────────\n")

	if len(p.Headers) > 0 {
		names := make([]string, 0, len(p.Headers))
		for name := range p.Headers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			_, _ = fmt.Fprintf(w, "  %s: %s\n", name, redactHeader(name, p.Headers[name]))
		}
		_, _ = fmt.Fprintln(w)
	}

	if len(p.Parameters) > 0 {
		data, err := json.MarshalIndent(p.Parameters, "  ", "  ")
		if err != nil {
			_, _ = fmt.Fprintf(w, "  parameters: %v\n\n", p.Parameters)
		} else {
			_, _ = fmt.Fprintf(w, "  %s\n\n", data)
		}
	}

	_, _ = fmt.Fprintf(w, "───────────────────────────────────────\n")
	_, _ = fmt.Fprintln(w, "Nothing sent (dry-run mode)")
}

// redactHeader masks credentials so previews can be shared.
func redactHeader(name, value string) string {
	if !strings.EqualFold(name, "Authorization") {
		return value
	}
	scheme, _, ok := strings.Cut(value, " ")
	if !ok {
		return "[redacted]"
	}
	return scheme + " [redacted]"
}

// Transport writes a Preview for every call and answers it with an empty
// 200 response, so no authenticator ever sees a failure.
type Transport struct {
	Out io.Writer

	mu       sync.Mutex
	previews []Preview
}

var _ connection.Transport = (*Transport)(nil)

// New returns a Transport writing previews to out.
func New(out io.Writer) *Transport {
	return &Transport{Out: out}
}

// Previews returns the previews recorded so far.
func (t *Transport) Previews() []Preview {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Preview(nil), t.previews...)
}

func (t *Transport) Get(ctx context.Context, baseURL, path string, headers map[string]string, params map[string]any) (*connection.Response, error) {
	return t.record(ctx, http.MethodGet, baseURL, path, headers, params)
}

func (t *Transport) Patch(ctx context.Context, baseURL, path string, headers map[string]string, params map[string]any) (*connection.Response, error) {
	return t.record(ctx, http.MethodPatch, baseURL, path, headers, params)
}

func (t *Transport) Post(ctx context.Context, baseURL, path string, headers map[string]string, params map[string]any) (*connection.Response, error) {
	return t.record(ctx, http.MethodPost, baseURL, path, headers, params)
}

func (t *Transport) record(ctx context.Context, method, baseURL, path string, headers map[string]string, params map[string]any) (*connection.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	p := Preview{
		Method:     method,
		URL:        strings.TrimSuffix(baseURL, "/") + path,
		Headers:    headers,
		Parameters: params,
	}

	t.mu.Lock()
	t.previews = append(t.previews, p)
	t.mu.Unlock()

	if t.Out != nil {
		p.Write(t.Out)
	}
	return &connection.Response{Status: http.StatusOK, Headers: http.Header{}}, nil
}
