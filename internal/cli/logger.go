package cli

import (
	"io"
	"log/slog"
	"strings"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

// setupLogger picks a text handler for local runs and JSON everywhere else.
// An explicit level overrides the per-environment default.
func setupLogger(w io.Writer, env, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	if env == envProd {
		opts.Level = slog.LevelInfo
	}
	if level != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err == nil {
			opts.Level = lvl
		}
	}

	switch env {
	case envLocal, "":
		return slog.New(slog.NewTextHandler(w, opts))
	case envDev, envProd:
		return slog.New(slog.NewJSONHandler(w, opts))
	default:
		return slog.New(slog.NewJSONHandler(w, opts)).With("env", env)
	}
}
