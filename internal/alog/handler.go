package alog

import (
	"context"
	"log/slog"
)

// contextHandler wraps an slog.Handler and prepends attributes stashed in
// the context (see WithAttrs) ahead of the record's own attributes.
type contextHandler struct {
	handler slog.Handler
}

func newContextHandler(h slog.Handler) *contextHandler {
	return &contextHandler{handler: h}
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	ctxAttrs := attrsFromContext(ctx)
	if len(ctxAttrs) == 0 {
		return h.handler.Handle(ctx, r)
	}

	original := make([]slog.Attr, 0, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		original = append(original, a)
		return true
	})

	rec := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	rec.AddAttrs(ctxAttrs...)
	rec.AddAttrs(original...)
	return h.handler.Handle(ctx, rec)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return newContextHandler(h.handler.WithAttrs(attrs))
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return newContextHandler(h.handler.WithGroup(name))
}
