package logger

import (
	"io"
	"log/slog"
	"os"
)

// New returns the process-wide structured logger. Logs go to stderr so they
// never interleave with the terminal screens on stdout.
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Discard returns a logger that drops everything. Tests use it so assertions
// run against quiet output.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
