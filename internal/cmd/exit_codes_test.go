package cmd

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/spf13/pflag"

	"github.com/salmonumbrella/apiconn/internal/auth"
	"github.com/salmonumbrella/apiconn/internal/config"
	"github.com/salmonumbrella/apiconn/internal/connection"
	"github.com/salmonumbrella/apiconn/internal/interceptors"
	"github.com/salmonumbrella/apiconn/internal/transport"
)

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"nil", nil, exitOK},
		{"help", pflag.ErrHelp, exitOK},
		{"auth", &auth.AuthError{Reason: "missing"}, exitAuth},
		{"not configured", config.ErrNotConfigured, exitAuth},
		{"unauthorized", &interceptors.APIError{StatusCode: 401}, exitAuth},
		{"not found", &interceptors.APIError{StatusCode: 404, Body: "not found"}, exitNotFound},
		{"forbidden", &interceptors.APIError{StatusCode: 403, Body: "forbidden"}, exitForbidden},
		{"rate limited", &interceptors.APIError{StatusCode: 429}, exitRateLimited},
		{"server", &interceptors.APIError{StatusCode: 500, Body: "oops"}, exitServer},
		{"validation", &interceptors.APIError{StatusCode: 422}, exitUsage},
		{"unsupported type", fmt.Errorf("wrapped: %w", &connection.UnsupportedRequestTypeError{Type: "PUT"}), exitUsage},
		{"request error", &transport.RequestError{Method: "GET", URL: "http://x", Err: errors.New("reset")}, exitNetwork},
		{"deadline", context.DeadlineExceeded, exitNetwork},
		{"usage", errors.New("unknown command \"nope\" for \"apiconn\""), exitUsage},
		{"usage shorthand", errors.New("unknown shorthand flag: 'a' in -a"), exitUsage},
		{"network", errors.New("dial tcp: connection refused"), exitNetwork},
		{"generic", errors.New("boom"), exitGeneric},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExitCode(tc.err); got != tc.code {
				t.Fatalf("ExitCode(%v) = %d, want %d", tc.err, got, tc.code)
			}
		})
	}
}

func TestExitCode_HandledErrorUsesStoredCode(t *testing.T) {
	err := &handledError{err: errors.New("wrapped"), exitCode: exitNotFound}
	if got := ExitCode(err); got != exitNotFound {
		t.Fatalf("ExitCode(handled) = %d, want %d", got, exitNotFound)
	}
	if !errors.Is(err, errAlreadyHandled) {
		t.Error("handledError should match errAlreadyHandled")
	}
}
