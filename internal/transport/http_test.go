package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/salmonumbrella/apiconn/internal/connection"
)

func newTestTransport() *HTTPTransport {
	return New(WithURLValidation(false))
}

func TestNew_Defaults(t *testing.T) {
	tr := New()

	if tr.HTTP == nil {
		t.Fatal("expected HTTP client to be initialized")
	}
	if tr.HTTP.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", tr.HTTP.Timeout, DefaultTimeout)
	}
	rt, ok := tr.HTTP.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("Transport is %T, want *http.Transport", tr.HTTP.Transport)
	}
	if rt.TLSClientConfig == nil || rt.TLSClientConfig.MinVersion < 0x0303 {
		t.Error("expected TLS 1.2 minimum")
	}
	if !tr.validateURLs {
		t.Error("URL validation should be on by default")
	}
}

func TestOptions(t *testing.T) {
	client := &http.Client{}
	tr := New(WithHTTPClient(client), WithTimeout(5*time.Second), WithUserAgent("apiconn/test"))

	if tr.HTTP != client {
		t.Error("WithHTTPClient did not replace the client")
	}
	if client.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v", client.Timeout)
	}
	if tr.UserAgent != "apiconn/test" {
		t.Errorf("UserAgent = %q", tr.UserAgent)
	}
}

func TestGet_QueryAndHeaders(t *testing.T) {
	var gotReq *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r
		w.Header().Set("X-Request-Id", "req-1")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	tr := New(WithURLValidation(false), WithUserAgent("apiconn/test"))
	resp, err := tr.Get(context.Background(), server.URL+"/", "orders", map[string]string{"X-Token": "t"}, map[string]any{
		"page":   2,
		"status": []string{"open", "closed"},
		"skip":   nil,
	})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if resp.Status != http.StatusOK || string(resp.Body) != `{"ok":true}` {
		t.Errorf("resp = {%d %q}", resp.Status, resp.Body)
	}
	if resp.Headers.Get("X-Request-Id") != "req-1" {
		t.Errorf("response headers = %v", resp.Headers)
	}
	if gotReq.Method != http.MethodGet || gotReq.URL.Path != "/orders" {
		t.Errorf("request = %s %s", gotReq.Method, gotReq.URL.Path)
	}
	if gotReq.URL.RawQuery != "page=2&status=open&status=closed" {
		t.Errorf("query = %q", gotReq.URL.RawQuery)
	}
	if gotReq.Header.Get("X-Token") != "t" {
		t.Errorf("X-Token = %q", gotReq.Header.Get("X-Token"))
	}
	if gotReq.Header.Get("Accept") != "application/json" {
		t.Errorf("Accept = %q", gotReq.Header.Get("Accept"))
	}
	if gotReq.Header.Get("User-Agent") != "apiconn/test" {
		t.Errorf("User-Agent = %q", gotReq.Header.Get("User-Agent"))
	}
	if gotReq.Header.Get("Content-Type") != "" {
		t.Error("GET should not send a Content-Type")
	}
}

func TestPatchPost_JSONBody(t *testing.T) {
	for _, method := range []string{http.MethodPatch, http.MethodPost} {
		t.Run(method, func(t *testing.T) {
			var gotMethod, gotContentType string
			var gotBody map[string]any
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotMethod = r.Method
				gotContentType = r.Header.Get("Content-Type")
				_ = json.NewDecoder(r.Body).Decode(&gotBody)
				w.WriteHeader(http.StatusCreated)
			}))
			defer server.Close()

			tr := newTestTransport()
			params := map[string]any{"name": "widget", "qty": 3}
			var resp *connection.Response
			var err error
			if method == http.MethodPatch {
				resp, err = tr.Patch(context.Background(), server.URL, "/items/1", nil, params)
			} else {
				resp, err = tr.Post(context.Background(), server.URL, "/items", nil, params)
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}

			if resp.Status != http.StatusCreated {
				t.Errorf("status = %d", resp.Status)
			}
			if gotMethod != method {
				t.Errorf("method = %s", gotMethod)
			}
			if gotContentType != "application/json" {
				t.Errorf("Content-Type = %q", gotContentType)
			}
			if gotBody["name"] != "widget" || gotBody["qty"] != float64(3) {
				t.Errorf("body = %v", gotBody)
			}
		})
	}
}

func TestPost_EmptyParamsSendsNoBody(t *testing.T) {
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	resp, err := newTestTransport().Post(context.Background(), server.URL, "/ping", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != http.StatusNoContent || len(gotBody) != 0 {
		t.Errorf("status = %d body = %q", resp.Status, gotBody)
	}
}

func TestErrorStatusIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"expired"}`))
	}))
	defer server.Close()

	resp, err := newTestTransport().Get(context.Background(), server.URL, "/me", nil, nil)
	if err != nil {
		t.Fatalf("Get() error = %v, want nil for a 401", err)
	}
	if resp.Status != http.StatusUnauthorized || !strings.Contains(string(resp.Body), "expired") {
		t.Errorf("resp = {%d %q}", resp.Status, resp.Body)
	}
}

func TestNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestTransport().Get(context.Background(), url, "/x", nil, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !IsRequestError(err) {
		t.Errorf("error %T should be a *RequestError", err)
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) && (reqErr.Method != http.MethodGet || !strings.HasSuffix(reqErr.URL, "/x")) {
		t.Errorf("RequestError = %+v", reqErr)
	}
}

func TestContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestTransport().Get(ctx, server.URL, "/slow", nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestURLValidation(t *testing.T) {
	tr := New()
	_, err := tr.Get(context.Background(), "ftp://api.example.com", "/x", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "URL validation failed") {
		t.Errorf("error = %v, want URL validation failure", err)
	}
}

func TestBuildURL(t *testing.T) {
	tr := newTestTransport()
	tests := []struct {
		base, path, want string
	}{
		{"https://api.x", "/orders", "https://api.x/orders"},
		{"https://api.x/", "orders", "https://api.x/orders"},
		{"https://api.x/v2", "/orders/1", "https://api.x/v2/orders/1"},
		{"https://api.x", "", "https://api.x"},
	}
	for _, tt := range tests {
		got, err := tr.buildURL(tt.base, tt.path)
		if err != nil {
			t.Fatalf("buildURL(%q, %q) error = %v", tt.base, tt.path, err)
		}
		if got != tt.want {
			t.Errorf("buildURL(%q, %q) = %q, want %q", tt.base, tt.path, got, tt.want)
		}
	}
}

func TestEncodeQuery(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		want   string
	}{
		{"empty", nil, ""},
		{"scalars", map[string]any{"b": true, "a": 1}, "a=1&b=true"},
		{"any slice", map[string]any{"id": []any{1, "x"}}, "id=1&id=x"},
		{"int slice", map[string]any{"id": []int{3, 4}}, "id=3&id=4"},
		{"escaping", map[string]any{"q": "a b&c"}, "q=a+b%26c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := encodeQuery(tt.params); got != tt.want {
				t.Errorf("encodeQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}
