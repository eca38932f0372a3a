package cmd

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/99designs/keyring"

	"github.com/salmonumbrella/apiconn/internal/config"
	"github.com/salmonumbrella/apiconn/internal/validation"
)

// captureStdout executes fn and returns what it wrote to stdout.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	fn()

	_ = w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

// captureStderr executes fn and returns what it wrote to stderr.
func captureStderr(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	fn()

	_ = w.Close()
	os.Stderr = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

// testEnv gives a test a mock API server, an empty keyring shared by every
// command the test runs, and an environment free of APICONN_* settings
// from the developer's shell.
type testEnv struct {
	server *httptest.Server
	ring   keyring.Keyring
}

var isolatedEnv = []string{
	config.EnvBaseURL,
	config.EnvChannelID,
	config.EnvProducerID,
	config.EnvDeviceID,
	config.EnvToken,
	config.EnvRefreshToken,
	config.EnvRefreshPath,
	config.EnvRedisURL,
	config.EnvProfile,
	config.EnvConfigFile,
}

// setupTestEnv starts handler and points the CLI at it with a static
// token. Tests that exercise the token store clear APICONN_TOKEN again.
func setupTestEnv(t *testing.T, handler http.Handler) *testEnv {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	for _, key := range isolatedEnv {
		t.Setenv(key, "")
	}
	t.Setenv("APICONN_CREDENTIALS_DIR", t.TempDir())
	t.Setenv(config.EnvBaseURL, server.URL)
	t.Setenv(config.EnvToken, "test-token")
	t.Setenv(validation.EnvAllowPrivate, "1")

	ring := keyring.NewArrayKeyring(nil)
	t.Cleanup(config.SetOpenKeyring(func(keyring.Config) (keyring.Keyring, error) {
		return ring, nil
	}))
	t.Cleanup(func() { validation.SetAllowPrivate(false) })

	return &testEnv{server: server, ring: ring}
}

// jsonResponse returns a handler writing body with statusCode.
func jsonResponse(statusCode int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_, _ = w.Write([]byte(body))
	}
}

// routeHandler routes requests by exact "METHOD PATH". Unmatched requests
// get a 404.
type routeHandler struct {
	routes map[string]http.HandlerFunc
}

func newRouteHandler() *routeHandler {
	return &routeHandler{routes: make(map[string]http.HandlerFunc)}
}

// On registers handler for method and path.
func (rh *routeHandler) On(method, path string, handler http.HandlerFunc) *routeHandler {
	rh.routes[method+" "+path] = handler
	return rh
}

func (rh *routeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if handler, ok := rh.routes[r.Method+" "+r.URL.Path]; ok {
		handler(w, r)
		return
	}
	http.NotFound(w, r)
}
