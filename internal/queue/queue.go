package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
)

const TaskTypePublishAttempt = "post:publish_attempt"

// AttemptPayload asks a worker to run one attempt of one post on each listed
// platform, one platform after the other. Attempts per platform are the counts
// observed when the task was dispatched.
type AttemptPayload struct {
	PostID    string            `json:"post_id"`
	Intent    service.Intent    `json:"intent"`
	Platforms []PlatformAttempt `json:"platforms"`
}

type PlatformAttempt struct {
	Platform models.Platform `json:"platform"`
	Attempts int             `json:"attempts"`
}

// Dispatcher hands the attempts of one post to whoever executes them.
type Dispatcher interface {
	Dispatch(ctx context.Context, payload AttemptPayload) error
}

// Run attempts each platform of payload in order. The post lease is per post,
// so platforms of the same post must never run concurrently. A failing
// platform does not stop the next one; all errors are joined.
func Run(ctx context.Context, ps service.PublishService, payload AttemptPayload) error {
	var errs []error
	for _, pa := range payload.Platforms {
		post, err := ps.Attempt(ctx, payload.PostID, pa.Platform, payload.Intent)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", pa.Platform, err))
			continue
		}
		if post != nil {
			slog.DebugContext(ctx, "attempt finished", "post_id", payload.PostID, "platform", pa.Platform, "status", post.Status)
		}
	}
	return errors.Join(errs...)
}

type inlineDispatcher struct {
	ps service.PublishService
}

// NewInlineDispatcher runs attempts on the caller's goroutine.
func NewInlineDispatcher(ps service.PublishService) Dispatcher {
	return &inlineDispatcher{ps: ps}
}

func (d *inlineDispatcher) Dispatch(ctx context.Context, payload AttemptPayload) error {
	return Run(ctx, d.ps, payload)
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type asynqDispatcher struct {
	client  enqueuer
	timeout time.Duration
}

// NewAsynqDispatcher enqueues attempts for the worker process. The task
// timeout is timeout per platform in the payload.
func NewAsynqDispatcher(client *asynq.Client, timeout time.Duration) Dispatcher {
	return &asynqDispatcher{client: client, timeout: timeout}
}

func (d *asynqDispatcher) Dispatch(ctx context.Context, payload AttemptPayload) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypePublishAttempt, taskPayload)

	opts := []asynq.Option{
		asynq.TaskID(TaskID(payload)),
		asynq.MaxRetry(0),
	}
	if d.timeout > 0 && len(payload.Platforms) > 0 {
		opts = append(opts, asynq.Timeout(d.timeout*time.Duration(len(payload.Platforms))))
	}

	info, err := d.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		slog.DebugContext(ctx, "attempt already queued", "task_id", TaskID(payload))
		return nil
	}
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("enqueue attempt for post %s: %w", payload.PostID, err)
	}

	slog.InfoContext(ctx, "attempt queued", "task_id", info.ID, "post_id", payload.PostID)
	return nil
}

// TaskID is stable for a given set of attempts, so re-enqueueing it before it
// runs is a no-op, e.g. "65f1...:instagram=2,facebook=0".
func TaskID(payload AttemptPayload) string {
	parts := make([]string, len(payload.Platforms))
	for i, pa := range payload.Platforms {
		parts[i] = fmt.Sprintf("%s=%d", pa.Platform, pa.Attempts)
	}
	return payload.PostID + ":" + strings.Join(parts, ",")
}
