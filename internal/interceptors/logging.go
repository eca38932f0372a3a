package interceptors

import (
	"context"
	"log/slog"

	"github.com/salmonumbrella/apiconn/internal/connection"
	"github.com/salmonumbrella/apiconn/internal/debug"
)

// Logging writes one debug line per response when debug mode is enabled in
// the request context. A nil Logger uses slog.Default().
type Logging struct {
	Logger *slog.Logger
}

var _ connection.ResponseInterceptor = Logging{}

// OnResponse implements connection.ResponseInterceptor.
func (l Logging) OnResponse(ctx context.Context, req connection.Request, resp *connection.Response, _ connection.Invoker) (*connection.Response, error) {
	if resp == nil || !debug.IsEnabled(ctx) {
		return resp, nil
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.DebugContext(ctx, "response received",
		"type", req.Type,
		"path", req.Path,
		"status", resp.Status,
		"bytes", len(resp.Body),
	)
	return resp, nil
}
