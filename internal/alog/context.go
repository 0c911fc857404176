package alog

import (
	"context"
	"log/slog"
	"slices"
)

type contextKey string

const attrsKey contextKey = "alog_attrs"

// WithAttrs stores log attributes in the context for automatic inclusion
// in every log record written while the context is live. Used to attach
// run-scoped attributes such as repo or package@version to every line a
// provider emits without threading them through every call.
func WithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	if len(attrs) == 0 {
		return ctx
	}

	existing := attrsFromContext(ctx)
	if len(existing) == 0 {
		return context.WithValue(ctx, attrsKey, attrs)
	}

	combined := make([]slog.Attr, 0, len(existing)+len(attrs))
	combined = append(combined, existing...)
	combined = append(combined, attrs...)
	return context.WithValue(ctx, attrsKey, combined)
}

func attrsFromContext(ctx context.Context) []slog.Attr {
	if attrs, ok := ctx.Value(attrsKey).([]slog.Attr); ok {
		return attrs
	}
	return nil
}

// FindAttr looks up an attribute by key within a slice of attrs.
func FindAttr(attrs []slog.Attr, key string) (*slog.Attr, bool) {
	i := slices.IndexFunc(attrs, func(a slog.Attr) bool { return a.Key == key })
	if i < 0 {
		return nil, false
	}
	return &attrs[i], true
}
