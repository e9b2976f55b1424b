package logger

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

const TraceIDKey = "trace_id"

type traceKey struct{}

// ContextHandler adds the trace id carried by ctx to every record.
type ContextHandler struct {
	slog.Handler
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if traceID := TraceID(ctx); traceID != "" {
		r.AddAttrs(slog.String(TraceIDKey, traceID))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{h.Handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{h.Handler.WithGroup(name)}
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

// NewTraceID returns ctx tagged with a fresh id such as "job-first-publish-<uuid>".
func NewTraceID(ctx context.Context, prefix string) context.Context {
	return WithTraceID(ctx, prefix+"-"+uuid.NewString())
}

func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	traceID, _ := ctx.Value(traceKey{}).(string)
	return traceID
}
