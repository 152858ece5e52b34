// Package logger provides structured logging setup for forgetop.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Strob0t/forgetop/internal/config"
)

const (
	asyncBuffer  = 4096
	asyncWorkers = 1
)

// New creates a *slog.Logger from the given Logging config.
// Output is JSON with a "service" attribute on every record. The dashboard
// owns stdout, so records go to cfg.File (appended) or stderr when File is
// empty. The returned Closer flushes the async queue and closes the file.
func New(cfg config.Logging) (*slog.Logger, Closer, error) {
	var (
		out  io.Writer = os.Stderr
		file *os.File
	)
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // G304: operator-supplied path
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out, file = f, f
	}

	l, c := NewWithWriter(cfg, out)
	if file == nil {
		return l, c, nil
	}
	return l, closerFunc(func() {
		c.Close()
		_ = file.Close()
	}), nil
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(cfg config.Logging, w io.Writer) (*slog.Logger, Closer) {
	var handler slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})

	var closer Closer = nopCloser{}
	if cfg.Async {
		ah := NewAsyncHandler(handler, asyncBuffer, asyncWorkers)
		handler, closer = ah, ah
	}
	// Context IDs are resolved before records are queued.
	handler = &contextHandler{inner: handler}

	return slog.New(handler).With("service", cfg.Service), closer
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
