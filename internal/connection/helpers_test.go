package connection

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/salmonumbrella/apiconn/internal/debug"
)

func debugTestLogger(t *testing.T, w io.Writer) {
	t.Helper()
	original := slog.Default()
	debug.SetupLoggerTo(w, true)
	t.Cleanup(func() { slog.SetDefault(original) })
}

func debugContext() context.Context {
	return debug.WithDebug(context.Background(), true)
}
