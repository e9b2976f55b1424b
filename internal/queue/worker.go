package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/pkg/logger"
)

type Worker struct {
	ps service.PublishService
}

func NewWorker(ps service.PublishService) *Worker {
	return &Worker{ps: ps}
}

func (w *Worker) ServeMux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypePublishAttempt, w.HandlePublishAttemptTask)
	return mux
}

func (w *Worker) HandlePublishAttemptTask(ctx context.Context, task *asynq.Task) error {
	var payload AttemptPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode attempt payload: %v: %w", err, asynq.SkipRetry)
	}
	if _, ok := service.ParseIntent(string(payload.Intent)); !ok {
		return fmt.Errorf("unknown intent %q: %w", payload.Intent, asynq.SkipRetry)
	}

	if id, ok := asynq.GetTaskID(ctx); ok {
		ctx = logger.WithTraceID(ctx, "task-"+id)
	}

	// Errors are not returned to asynq: an archived task would hold its id and
	// block the next pass from dispatching the same attempts again.
	for _, pa := range payload.Platforms {
		_, err := w.ps.Attempt(ctx, payload.PostID, pa.Platform, payload.Intent)
		switch {
		case err == nil:
		case errors.Is(err, service.ErrPostNotFound):
			slog.WarnContext(ctx, "post vanished before attempt", "post_id", payload.PostID)
			return nil
		case errors.Is(err, service.ErrPreconditionViolation), errors.Is(err, service.ErrNoPublisher):
			slog.ErrorContext(ctx, "attempt rejected", "post_id", payload.PostID, "platform", pa.Platform, "err", err)
		default:
			slog.ErrorContext(ctx, "attempt failed", "post_id", payload.PostID, "platform", pa.Platform, "err", err)
		}
	}
	return nil
}
