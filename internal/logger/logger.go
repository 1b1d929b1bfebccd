package logger

import (
	"io"
	"log/slog"
	"os"
)

// Init installs the process-wide slog handler. Release mode logs JSON,
// everything else logs text with source locations.
func Init(ginMode string) {
	slog.SetDefault(slog.New(newHandler(os.Stdout, ginMode)))
}

func newHandler(w io.Writer, ginMode string) slog.Handler {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug, AddSource: true}
	if ginMode == "release" {
		opts.Level = slog.LevelInfo
		opts.AddSource = false
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// New returns a logger tagged with the component name.
func New(component string) *slog.Logger {
	return slog.Default().With("component", component)
}
