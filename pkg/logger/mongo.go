package logger

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/event"
)

const slowMongoCommand = 200 * time.Millisecond

func NewMongoMonitor() *event.CommandMonitor {
	return &event.CommandMonitor{
		Started: func(ctx context.Context, evt *event.CommandStartedEvent) {
			cmd := evt.Command.String()
			if len(cmd) > 1000 {
				cmd = cmd[:1000] + "...[truncated]"
			}

			slog.DebugContext(ctx, "MongoDB started",
				slog.String("command", evt.CommandName),
				slog.String("database", evt.DatabaseName),
				slog.Int64("request_id", evt.RequestID),
				slog.String("cmd_detail", cmd),
			)
		},
		Succeeded: func(ctx context.Context, evt *event.CommandSucceededEvent) {
			fields := []any{
				slog.String("command", evt.CommandName),
				slog.Duration("latency", evt.Duration),
				slog.Int64("request_id", evt.RequestID),
			}

			if evt.Duration > slowMongoCommand {
				slog.WarnContext(ctx, "MongoDB slow", fields...)
			} else {
				slog.DebugContext(ctx, "MongoDB success", fields...)
			}
		},
		Failed: func(ctx context.Context, evt *event.CommandFailedEvent) {
			slog.ErrorContext(ctx, "MongoDB error",
				slog.String("command", evt.CommandName),
				slog.Duration("latency", evt.Duration),
				slog.Int64("request_id", evt.RequestID),
				slog.Any("err", evt.Failure),
			)
		},
	}
}
