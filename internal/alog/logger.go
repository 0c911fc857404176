package alog

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

var (
	logger       *slog.Logger
	colorEnabled bool
)

func init() {
	colorEnabled = isatty.IsTerminal(os.Stdout.Fd())

	logger = slog.New(newContextHandler(tint.NewHandler(os.Stdout, &tint.Options{
		Level:   LevelInfo,
		NoColor: !colorEnabled,
	})))
	slog.SetDefault(logger)
}

// Configure rebuilds the default logger at the given level string.
func Configure(levelStr string) error {
	level, err := ParseLevel(levelStr)
	if err != nil {
		return err
	}

	logger = slog.New(newContextHandler(tint.NewHandler(os.Stdout, &tint.Options{
		Level:   level,
		NoColor: !colorEnabled,
	})))
	slog.SetDefault(logger)

	slog.Debug("log level configured", slog.String("level", levelStr))
	return nil
}

// ColorEnabled reports whether ANSI colors are enabled on stdout.
func ColorEnabled() bool {
	return colorEnabled
}

// Err formats an error for inclusion in a log attribute list.
var Err = tint.Err

// TraceContext emits msg at LevelTrace through the default logger,
// picking up whatever attributes WithAttrs stashed on ctx (repo,
// package, provider) ahead of msg's own args. Intended for per-row
// snapshot-table scan tracing, which is too chatty for Debug.
func TraceContext(ctx context.Context, msg string, args ...any) {
	if !logger.Enabled(ctx, LevelTrace) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(2, pcs[:]) // skip Callers and TraceContext
	r := slog.NewRecord(time.Now(), LevelTrace, msg, pcs[0])
	r.Add(args...)
	_ = logger.Handler().Handle(ctx, r)
}
