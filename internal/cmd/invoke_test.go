package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/salmonumbrella/apiconn/internal/config"
)

func TestInvokeGet_SendsIdentityAndQuery(t *testing.T) {
	var got *http.Request
	handler := newRouteHandler().
		On("GET", "/orders", func(w http.ResponseWriter, r *http.Request) {
			got = r
			jsonResponse(200, `{"items":[{"id":1}]}`)(w, r)
		})
	setupTestEnv(t, handler)

	output := captureStdout(t, func() {
		err := Execute(context.Background(), []string{
			"--channel-id", "web", "--producer-id", "shop", "--device-id", "d-1",
			"get", "/orders", "-p", "status=open", "-F", "page=2",
		})
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
	})

	if got == nil {
		t.Fatal("server was not called")
	}
	if got.Header.Get("X-Channel-Id") != "web" || got.Header.Get("X-App-Id") != "shop" || got.Header.Get("X-Device-Id") != "d-1" {
		t.Errorf("identity headers = %v", got.Header)
	}
	if got.Header.Get("Authorization") != "Bearer test-token" {
		t.Errorf("Authorization = %q", got.Header.Get("Authorization"))
	}
	if got.URL.RawQuery != "page=2&status=open" {
		t.Errorf("query = %q", got.URL.RawQuery)
	}
	if !strings.Contains(output, `"id": 1`) {
		t.Errorf("output not pretty printed: %q", output)
	}
}

func TestInvokeIdentityFromEnv(t *testing.T) {
	var channel string
	handler := newRouteHandler().
		On("GET", "/me", func(w http.ResponseWriter, r *http.Request) {
			channel = r.Header.Get("X-Channel-Id")
			w.WriteHeader(http.StatusNoContent)
		})
	setupTestEnv(t, handler)
	t.Setenv(config.EnvChannelID, "from-env")

	if err := Execute(context.Background(), []string{"invoke", "get", "/me", "--silent"}); err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if channel != "from-env" {
		t.Errorf("X-Channel-Id = %q, want from-env", channel)
	}
}

func TestInvokePost_JSONBody(t *testing.T) {
	var body map[string]any
	handler := newRouteHandler().
		On("POST", "/orders", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&body)
			jsonResponse(201, `{"id":7}`)(w, r)
		})
	setupTestEnv(t, handler)

	captureStdout(t, func() {
		err := Execute(context.Background(), []string{"invoke", "POST", "/orders", "-d", `{"sku":"A-1","qty":1}`, "-F", "qty=2"})
		if err != nil {
			t.Fatalf("invoke failed: %v", err)
		}
	})

	if body["sku"] != "A-1" || body["qty"] != float64(2) {
		t.Errorf("body = %v", body)
	}
}

func TestInvokePatch_InputFile(t *testing.T) {
	var body map[string]any
	handler := newRouteHandler().
		On("PATCH", "/orders/7", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&body)
			jsonResponse(200, `{}`)(w, r)
		})
	setupTestEnv(t, handler)

	input := filepath.Join(t.TempDir(), "params.json")
	if err := os.WriteFile(input, []byte(`{"tags":["rush"]}`), 0o600); err != nil {
		t.Fatal(err)
	}

	captureStdout(t, func() {
		if err := Execute(context.Background(), []string{"patch", "/orders/7", "--input", input}); err != nil {
			t.Fatalf("patch failed: %v", err)
		}
	})

	tags, _ := body["tags"].([]any)
	if len(tags) != 1 || tags[0] != "rush" {
		t.Errorf("body = %v", body)
	}
}

func TestInvoke_DataAndInputConflict(t *testing.T) {
	setupTestEnv(t, jsonResponse(200, `{}`))

	var err error
	captureStderr(t, func() {
		err = Execute(context.Background(), []string{"post", "/x", "-d", "{}", "-i", "params.json"})
	})
	if err == nil || !strings.Contains(err.Error(), "cannot use both") {
		t.Fatalf("err = %v", err)
	}
	if code := ExitCode(err); code != exitUsage {
		t.Errorf("exit code = %d, want %d", code, exitUsage)
	}
}

func TestInvoke_JQ(t *testing.T) {
	setupTestEnv(t, jsonResponse(200, `{"items":[{"id":1},{"id":2}]}`))

	output := captureStdout(t, func() {
		if err := Execute(context.Background(), []string{"get", "/orders", "--jq", ".items | length"}); err != nil {
			t.Fatalf("get failed: %v", err)
		}
	})
	if strings.TrimSpace(output) != "2" {
		t.Errorf("output = %q, want 2", output)
	}
}

func TestInvoke_IncludeHeaders(t *testing.T) {
	setupTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", "req-9")
		jsonResponse(200, `{"ok":true}`)(w, r)
	}))

	output := captureStdout(t, func() {
		if err := Execute(context.Background(), []string{"get", "/ping", "--include"}); err != nil {
			t.Fatalf("get failed: %v", err)
		}
	})
	if !strings.HasPrefix(output, "HTTP 200\n") {
		t.Errorf("output should start with the status line: %q", output)
	}
	if !strings.Contains(output, "X-Request-Id: req-9") {
		t.Errorf("missing header in %q", output)
	}
}

func TestInvoke_JSONEnvelope(t *testing.T) {
	setupTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "100")
		w.Header().Set("X-RateLimit-Remaining", "99")
		jsonResponse(200, `{"ok":true}`)(w, r)
	}))

	output := captureStdout(t, func() {
		if err := Execute(context.Background(), []string{"--json", "get", "/ping"}); err != nil {
			t.Fatalf("get failed: %v", err)
		}
	})

	var envelope struct {
		Status    int            `json:"status"`
		Body      map[string]any `json:"body"`
		RateLimit map[string]any `json:"rate_limit"`
	}
	if err := json.Unmarshal([]byte(output), &envelope); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, output)
	}
	if envelope.Status != 200 || envelope.Body["ok"] != true {
		t.Errorf("envelope = %+v", envelope)
	}
	if envelope.RateLimit["remaining"] != float64(99) {
		t.Errorf("rate_limit = %v", envelope.RateLimit)
	}
}

func TestInvoke_NotFound(t *testing.T) {
	setupTestEnv(t, newRouteHandler())

	var err error
	stderr := captureStderr(t, func() {
		err = Execute(context.Background(), []string{"get", "/missing"})
	})
	if err == nil {
		t.Fatal("expected an error for a 404")
	}
	if code := ExitCode(err); code != exitNotFound {
		t.Errorf("exit code = %d, want %d", code, exitNotFound)
	}
	if !strings.Contains(stderr, "API error (HTTP 404)") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestInvoke_JSONError(t *testing.T) {
	setupTestEnv(t, jsonResponse(403, `{"error":"nope"}`))

	var err error
	stderr := captureStderr(t, func() {
		err = Execute(context.Background(), []string{"--json", "get", "/secret"})
	})
	if code := ExitCode(err); code != exitForbidden {
		t.Errorf("exit code = %d, want %d", code, exitForbidden)
	}

	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	// Skip the private URL warning printed before the command runs.
	start := strings.Index(stderr, "{")
	if start < 0 {
		t.Fatalf("no JSON on stderr: %q", stderr)
	}
	if err := json.Unmarshal([]byte(stderr[start:]), &payload); err != nil {
		t.Fatalf("stderr is not JSON: %v\n%s", err, stderr)
	}
	if payload.Error.Code != "forbidden" {
		t.Errorf("code = %q", payload.Error.Code)
	}
}

func TestInvoke_UnsupportedType(t *testing.T) {
	var calls atomic.Int32
	setupTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	var err error
	stderr := captureStderr(t, func() {
		err = Execute(context.Background(), []string{"invoke", "PSOT", "/orders"})
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if code := ExitCode(err); code != exitUsage {
		t.Errorf("exit code = %d, want %d", code, exitUsage)
	}
	if !strings.Contains(stderr, "did you mean POST?") {
		t.Errorf("stderr = %q", stderr)
	}
	if calls.Load() != 0 {
		t.Error("nothing should be sent for an unsupported type")
	}
}

func TestInvoke_NoAuth(t *testing.T) {
	var authorization string
	setupTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := Execute(context.Background(), []string{"get", "/public", "--no-auth"}); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if authorization != "" {
		t.Errorf("Authorization = %q, want none", authorization)
	}
}

func TestInvoke_NotConfigured(t *testing.T) {
	setupTestEnv(t, newRouteHandler())
	t.Setenv(config.EnvBaseURL, "")

	var err error
	stderr := captureStderr(t, func() {
		err = Execute(context.Background(), []string{"get", "/orders"})
	})
	if !errors.Is(err, config.ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
	if !strings.Contains(stderr, "No API configured") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestInvoke_RefreshesStoredToken(t *testing.T) {
	var refreshes atomic.Int32
	handler := newRouteHandler().
		On("POST", "/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
			refreshes.Add(1)
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["refresh_token"] != "refresh-1" {
				jsonResponse(400, `{"error":"bad refresh token"}`)(w, r)
				return
			}
			jsonResponse(200, `{"access_token":"fresh-token-1234","expires_in":3600}`)(w, r)
		}).
		On("GET", "/me", func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer fresh-token-1234" {
				jsonResponse(401, `{"error":"expired"}`)(w, r)
				return
			}
			jsonResponse(200, `{"name":"me"}`)(w, r)
		})
	env := setupTestEnv(t, handler)

	captureStdout(t, func() {
		err := Execute(context.Background(), []string{"auth", "login", "--base-url", env.server.URL, "--refresh-token", "refresh-1"})
		if err != nil {
			t.Fatalf("login failed: %v", err)
		}
	})
	// The stale token came from the environment; later commands must use the store.
	t.Setenv(config.EnvToken, "")

	for range 2 {
		output := captureStdout(t, func() {
			if err := Execute(context.Background(), []string{"get", "/me"}); err != nil {
				t.Fatalf("get failed: %v", err)
			}
		})
		if !strings.Contains(output, `"name": "me"`) {
			t.Errorf("output = %q", output)
		}
	}
	if refreshes.Load() != 1 {
		t.Errorf("refreshes = %d, want 1", refreshes.Load())
	}

	status := captureStdout(t, func() {
		if err := Execute(context.Background(), []string{"auth", "status"}); err != nil {
			t.Fatalf("status failed: %v", err)
		}
	})
	if !strings.Contains(status, "************1234 (store)") {
		t.Errorf("status = %q", status)
	}
}

func TestInvoke_MetricsFile(t *testing.T) {
	setupTestEnv(t, jsonResponse(200, `{"ok":true}`))
	path := filepath.Join(t.TempDir(), "apiconn.prom")

	captureStdout(t, func() {
		if err := Execute(context.Background(), []string{"get", "/ping", "--metrics-file", path}); err != nil {
			t.Fatalf("get failed: %v", err)
		}
	})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("metrics file not written: %v", err)
	}
	if !strings.Contains(string(data), "apiconn_responses_total") {
		t.Errorf("metrics = %s", data)
	}
}

func TestParseRequestType(t *testing.T) {
	if got, err := parseRequestType("patch"); err != nil || got != "PATCH" {
		t.Errorf("parseRequestType(patch) = %q, %v", got, err)
	}
	if _, err := parseRequestType("DELETE"); err == nil {
		t.Error("DELETE should be rejected")
	}
}

func TestBuildParams(t *testing.T) {
	params, err := buildParams([]string{"name=a=b"}, []string{"n=3", "ok=true"}, "", `{"name":"x","keep":1}`)
	if err != nil {
		t.Fatal(err)
	}
	if params["name"] != "a=b" || params["n"] != float64(3) || params["ok"] != true || params["keep"] != float64(1) {
		t.Errorf("params = %v", params)
	}

	if params, err := buildParams(nil, nil, "", ""); err != nil || params != nil {
		t.Errorf("empty = %v, %v", params, err)
	}
	if _, err := buildParams([]string{"novalue"}, nil, "", ""); !errors.Is(err, errFieldFormat) {
		t.Errorf("err = %v, want errFieldFormat", err)
	}
	if _, err := buildParams(nil, []string{"n={bad"}, "", ""); err == nil {
		t.Error("expected invalid JSON error")
	}
}

func TestParseHeaders(t *testing.T) {
	headers, err := parseHeaders([]string{"X-Trace = abc", "Accept=text/plain"})
	if err != nil {
		t.Fatal(err)
	}
	if headers["X-Trace"] != "abc" || headers["Accept"] != "text/plain" {
		t.Errorf("headers = %v", headers)
	}
	if _, err := parseHeaders([]string{"=x"}); err == nil {
		t.Error("expected an error for an empty name")
	}
}

func TestInvoke_DryRun(t *testing.T) {
	var calls atomic.Int32
	setupTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	output := captureStdout(t, func() {
		err := Execute(context.Background(), []string{"--dry-run", "--device-id", "d-1", "post", "/orders", "-p", "sku=A-1"})
		if err != nil {
			t.Fatalf("post failed: %v", err)
		}
	})

	if calls.Load() != 0 {
		t.Errorf("server called %d times in dry-run mode", calls.Load())
	}
	for _, want := range []string{"[DRY-RUN] Would send POST", "/orders", "X-Device-Id: d-1", "Authorization: Bearer [redacted]", `"sku": "A-1"`} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}
