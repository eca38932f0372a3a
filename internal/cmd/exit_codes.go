package cmd

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/spf13/pflag"

	"github.com/salmonumbrella/apiconn/internal/auth"
	"github.com/salmonumbrella/apiconn/internal/config"
	"github.com/salmonumbrella/apiconn/internal/interceptors"
	"github.com/salmonumbrella/apiconn/internal/transport"
)

const (
	exitOK          = 0
	exitGeneric     = 1
	exitUsage       = 2
	exitAuth        = 3
	exitNotFound    = 4
	exitForbidden   = 5
	exitRateLimited = 6
	exitServer      = 7
	exitNetwork     = 8
)

// ExitCode maps an error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, pflag.ErrHelp) {
		return exitOK
	}
	var handled *handledError
	if errors.As(err, &handled) {
		if handled.exitCode != 0 {
			return handled.exitCode
		}
		err = handled.err
	}

	if auth.IsAuthError(err) {
		return exitAuth
	}
	if errors.Is(err, config.ErrNotConfigured) {
		return exitAuth
	}
	if code := exitCodeFromStructured(err); code != 0 {
		return code
	}
	if isNetworkError(err) {
		return exitNetwork
	}
	if isUsageError(err) {
		return exitUsage
	}
	return exitGeneric
}

func exitCodeFromStructured(err error) int {
	switch interceptors.StructuredErrorFromError(err).Code {
	case interceptors.ErrUnauthorized:
		return exitAuth
	case interceptors.ErrForbidden:
		return exitForbidden
	case interceptors.ErrNotFound:
		return exitNotFound
	case interceptors.ErrRateLimited:
		return exitRateLimited
	case interceptors.ErrServerError:
		return exitServer
	case interceptors.ErrBadRequest, interceptors.ErrValidation, interceptors.ErrConflict, interceptors.ErrUnsupported:
		return exitUsage
	default:
		return 0
	}
}

func isNetworkError(err error) bool {
	if transport.IsRequestError(err) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host")
}

func isUsageError(err error) bool {
	msg := strings.ToLower(err.Error())
	indicators := []string{
		"unknown command",
		"unknown flag",
		"unknown shorthand flag",
		"flag needs an argument",
		"accepts ",
		"requires at least",
		"requires exactly",
		"invalid argument",
		"invalid field format",
		"invalid raw field format",
		"invalid header",
		"cannot use both",
		"must be",
		"is required",
	}
	for _, indicator := range indicators {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}
