package alog

import "log/slog"

// Log levels for the appraisal core. Standard slog levels are re-exported
// for convenience, plus a custom TRACE level for per-row scan tracing.
const (
	// LevelTrace sits below slog.LevelDebug for very detailed logging
	// (e.g. individual snapshot-table row decisions).
	LevelTrace = slog.LevelDebug - 4 // -8

	LevelDebug = slog.LevelDebug // -4
	LevelInfo  = slog.LevelInfo  // 0
	LevelWarn  = slog.LevelWarn  // 4
	LevelError = slog.LevelError // 8
)

// ParseLevel converts a level string into a slog.Level, recognizing the
// extra TRACE level. Valid values: TRACE, DEBUG, INFO, WARN, WARNING, ERROR.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch levelStr {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, &InvalidLevelError{Level: levelStr}
	}
}

// InvalidLevelError is returned by ParseLevel for an unrecognized level string.
type InvalidLevelError struct {
	Level string
}

func (e *InvalidLevelError) Error() string {
	return "unknown log level: " + e.Level + " (valid: TRACE, DEBUG, INFO, WARN, ERROR)"
}
