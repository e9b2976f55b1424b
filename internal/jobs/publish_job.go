package job

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/retry"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/pkg/logger"
	"github.com/robfig/cron"
	"golang.org/x/sync/semaphore"
)

type Pass string

const (
	PassFirstPublish Pass = "first-publish"
	PassRetry        Pass = "retry"
)

func ParsePass(s string) (Pass, bool) {
	switch Pass(s) {
	case PassFirstPublish, PassRetry:
		return Pass(s), true
	case "first":
		return PassFirstPublish, true
	}
	return "", false
}

func (p Pass) intent() service.Intent {
	if p == PassRetry {
		return service.IntentRetry
	}
	return service.IntentFirstPublish
}

// PassResult summarises one run of a pass.
type PassResult struct {
	Selected   int // posts
	Attempts   int // platform attempts across the selected posts
	Dispatched int
	Failed     int
	Skipped    bool
}

type PublishJob struct {
	posts       repository.PostRepository
	dispatcher  queue.Dispatcher
	platforms   []models.Platform
	health      *Health
	concurrency int64
	jitter      time.Duration
	now         func() time.Time

	firstRunning atomic.Bool
	retryRunning atomic.Bool
}

type JobOption func(*PublishJob)

func WithConcurrency(n int) JobOption {
	return func(j *PublishJob) {
		if n > 0 {
			j.concurrency = int64(n)
		}
	}
}

func WithJitter(d time.Duration) JobOption {
	return func(j *PublishJob) { j.jitter = d }
}

func WithHealth(h *Health) JobOption {
	return func(j *PublishJob) { j.health = h }
}

func WithClock(now func() time.Time) JobOption {
	return func(j *PublishJob) { j.now = now }
}

func NewPublishJob(posts repository.PostRepository, dispatcher queue.Dispatcher, platforms []models.Platform, opts ...JobOption) *PublishJob {
	j := &PublishJob{
		posts:       posts,
		dispatcher:  dispatcher,
		platforms:   platforms,
		health:      NewHealth(),
		concurrency: 1,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Register adds both passes to c. Each tick runs under ctx.
func (j *PublishJob) Register(ctx context.Context, c *cron.Cron, firstEvery, retryEvery time.Duration) error {
	if err := c.AddFunc("@every "+firstEvery.String(), func() { j.tick(ctx, PassFirstPublish) }); err != nil {
		return fmt.Errorf("schedule first-publish pass: %w", err)
	}
	if err := c.AddFunc("@every "+retryEvery.String(), func() { j.tick(ctx, PassRetry) }); err != nil {
		return fmt.Errorf("schedule retry pass: %w", err)
	}
	return nil
}

func (j *PublishJob) tick(ctx context.Context, pass Pass) {
	if j.jitter > 0 {
		delay := time.Duration(rand.Int64N(int64(j.jitter)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
	if _, err := j.RunPass(ctx, pass); err != nil {
		slog.Error("publish pass aborted", "pass", pass, "err", err)
	}
}

// RunPass selects due posts for every platform and dispatches one payload
// per post covering its due platforms. A pass still running from an earlier tick makes
// this call a no-op.
func (j *PublishJob) RunPass(ctx context.Context, pass Pass) (PassResult, error) {
	running := &j.firstRunning
	if pass == PassRetry {
		running = &j.retryRunning
	}
	if !running.CompareAndSwap(false, true) {
		slog.WarnContext(ctx, "previous pass still running, skipping tick", "pass", pass)
		return PassResult{Skipped: true}, nil
	}
	defer running.Store(false)

	ctx = logger.NewTraceID(ctx, "job-"+string(pass))
	component := "pass:" + string(pass)
	start := j.now()

	due, err := j.collect(ctx, pass, start)
	if err != nil {
		j.health.SetUnhealthy(component, err)
		return PassResult{}, err
	}

	result := PassResult{Selected: len(due)}
	for _, payload := range due {
		result.Attempts += len(payload.Platforms)
	}
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = semaphore.NewWeighted(j.concurrency)
	)
	for _, payload := range due {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(payload queue.AttemptPayload) {
			defer wg.Done()
			defer sem.Release(1)

			err := j.dispatch(ctx, payload)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				return
			}
			result.Dispatched++
		}(payload)
	}
	wg.Wait()

	slog.InfoContext(ctx, "publish pass finished",
		"pass", pass,
		"selected", result.Selected,
		"attempts", result.Attempts,
		"dispatched", result.Dispatched,
		"failed", result.Failed,
		"took", j.now().Sub(start),
	)
	j.health.SetHealthy(component, fmt.Sprintf("%d selected, %d dispatched, %d failed", result.Selected, result.Dispatched, result.Failed))
	return result, ctx.Err()
}

// dispatch isolates one post: errors and panics are logged, never propagated.
func (j *PublishJob) dispatch(ctx context.Context, payload queue.AttemptPayload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			slog.ErrorContext(ctx, "attempt panicked", "post_id", payload.PostID, "platforms", len(payload.Platforms), "panic", r)
		}
	}()

	if err = j.dispatcher.Dispatch(ctx, payload); err != nil {
		slog.ErrorContext(ctx, "attempt dispatch failed", "post_id", payload.PostID, "platforms", len(payload.Platforms), "err", err)
	}
	return err
}

// collect selects due posts for every platform and folds them into one
// payload per post, so the platforms of a post are attempted in sequence
// under a single holder of the post lease.
func (j *PublishJob) collect(ctx context.Context, pass Pass, now time.Time) ([]queue.AttemptPayload, error) {
	byPost := make(map[string]int)
	var due []queue.AttemptPayload

	for _, platform := range j.platforms {
		var (
			posts []*models.Post
			err   error
		)
		if pass == PassRetry {
			posts, err = j.posts.ListDueForRetry(ctx, platform, now)
		} else {
			posts, err = j.posts.ListDueForFirstPublish(ctx, platform, now)
		}
		if err != nil {
			slog.ErrorContext(ctx, "select due posts", "pass", pass, "platform", platform, "err", err)
			return nil, fmt.Errorf("select %s posts for %s: %w", pass, platform, err)
		}

		for _, post := range posts {
			state := post.State(platform)
			if state == nil {
				continue
			}
			if pass == PassRetry {
				if next, ok := retryDue(post, state, now); !ok {
					slog.DebugContext(ctx, "retry not yet due", "post_id", post.ID.Hex(), "platform", platform, "next_attempt_at", next)
					continue
				}
			}

			id := post.ID.Hex()
			i, ok := byPost[id]
			if !ok {
				i = len(due)
				byPost[id] = i
				due = append(due, queue.AttemptPayload{PostID: id, Intent: pass.intent()})
			}
			if hasPlatform(due[i], platform) {
				continue
			}
			due[i].Platforms = append(due[i].Platforms, queue.PlatformAttempt{
				Platform: platform,
				Attempts: state.Attempts,
			})
		}
	}
	return due, nil
}

func hasPlatform(payload queue.AttemptPayload, platform models.Platform) bool {
	for _, pa := range payload.Platforms {
		if pa.Platform == platform {
			return true
		}
	}
	return false
}

// retryDue re-checks the retry policy locally and returns the instant the
// next attempt opens. Posts whose budget is already spent are still due so
// the orchestrator can settle them as failed.
func retryDue(post *models.Post, state *models.PlatformState, now time.Time) (time.Time, bool) {
	next, ok := retry.NextAttemptAt(state.Attempts, state.LastAttempt, post.MaxRetryAttempts, post.RetryDelay())
	if !ok {
		return now, true
	}
	return next, !now.Before(next)
}
