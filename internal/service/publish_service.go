package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/maheshrc27/postflow/internal/lock"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/retry"
)

// Intent says which selection produced the call.
type Intent string

const (
	IntentFirstPublish Intent = "first-publish"
	IntentRetry        Intent = "retry"
)

func ParseIntent(s string) (Intent, bool) {
	switch Intent(s) {
	case IntentFirstPublish, IntentRetry:
		return Intent(s), true
	}
	return "", false
}

// PublishService advances one post by one attempt on one platform.
type PublishService interface {
	Attempt(ctx context.Context, postID string, platform models.Platform, intent Intent) (*models.Post, error)
	// Platforms lists platforms with a configured publisher, in publish order.
	Platforms() []models.Platform
}

type publishService struct {
	posts      repository.PostRepository
	history    repository.PostingHistoryRepository
	uploads    UploadStore
	locker     lock.Locker
	publishers map[models.Platform]Publisher
	now        func() time.Time
	timeout    time.Duration
}

type PublishOption func(*publishService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) PublishOption {
	return func(s *publishService) { s.now = now }
}

// WithHistory records every attempt outcome.
func WithHistory(history repository.PostingHistoryRepository) PublishOption {
	return func(s *publishService) { s.history = history }
}

// WithUploads lets a successful publish release the locally stored image.
func WithUploads(uploads UploadStore) PublishOption {
	return func(s *publishService) { s.uploads = uploads }
}

// WithAttemptTimeout bounds the remote part of an attempt. It must stay below
// the lease TTL of the locker.
func WithAttemptTimeout(d time.Duration) PublishOption {
	return func(s *publishService) { s.timeout = d }
}

func NewPublishService(posts repository.PostRepository, locker lock.Locker, publishers []Publisher, opts ...PublishOption) PublishService {
	s := &publishService{
		posts:      posts,
		locker:     locker,
		publishers: make(map[models.Platform]Publisher, len(publishers)),
		now:        time.Now,
	}
	for _, p := range publishers {
		s.publishers[p.Platform()] = p
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *publishService) Platforms() []models.Platform {
	out := make([]models.Platform, 0, len(s.publishers))
	for _, p := range models.Platforms {
		if _, ok := s.publishers[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (s *publishService) Attempt(ctx context.Context, postID string, platform models.Platform, intent Intent) (*models.Post, error) {
	log := slog.With("post_id", postID, "platform", platform, "intent", intent)

	release, ok, err := s.locker.TryLock(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("lock post %s: %w", postID, err)
	}
	if !ok {
		log.InfoContext(ctx, "post is being processed elsewhere, skipping")
		return s.refresh(ctx, postID)
	}
	defer release()

	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, fmt.Errorf("%w: %s", ErrPostNotFound, postID)
	}

	state := post.State(platform)
	if state == nil || !post.Targets(platform) {
		return post, s.precondition(ctx, post, platform, intent, -1)
	}
	if (intent == IntentFirstPublish && state.Attempts != 0) || (intent == IntentRetry && state.Attempts < 1) {
		return post, s.precondition(ctx, post, platform, intent, state.Attempts)
	}

	if state.Terminal() {
		log.InfoContext(ctx, "platform already terminal", "status", state.Status)
		return post, nil
	}

	now := s.now().UTC()
	if state.Attempts >= post.MaxRetryAttempts {
		return s.settleExhausted(ctx, post, platform)
	}
	if !retry.CanAttempt(state.Attempts, state.LastAttempt, post.MaxRetryAttempts, post.RetryDelay(), now) {
		log.DebugContext(ctx, "retry delay not elapsed", "attempts", state.Attempts, "last_attempt", state.LastAttempt)
		return post, nil
	}

	publisher, ok := s.publishers[platform]
	if !ok {
		return post, fmt.Errorf("%w: %s", ErrNoPublisher, platform)
	}

	// Bookkeeping is persisted before the remote call so a crash from here on
	// leaves a retry candidate rather than a second first-publish.
	attempt := state.Attempts + 1
	if state.LastAttempt != nil && !now.After(*state.LastAttempt) {
		now = state.LastAttempt.Add(time.Millisecond)
	}
	started, err := s.posts.UpdateByID(ctx, postID, models.PostPatch{
		Platforms: map[models.Platform]models.PlatformPatch{
			platform: {Attempts: &attempt, LastAttempt: &now},
		},
		Guard: &models.AttemptGuard{Platform: platform, Attempts: state.Attempts},
	})
	if errors.Is(err, repository.ErrAttemptConflict) {
		log.WarnContext(ctx, "attempt already started by another worker")
		return s.refresh(ctx, postID)
	}
	if err != nil {
		return nil, err
	}
	if started == nil {
		return nil, fmt.Errorf("%w: %s", ErrPostNotFound, postID)
	}

	log.InfoContext(ctx, "attempting publish", "attempt", attempt, "max_attempts", started.MaxRetryAttempts)
	result, pubErr := s.publish(ctx, publisher, started)

	// Outcomes are written even if ctx was cancelled during the remote call.
	writeCtx := context.WithoutCancel(ctx)
	if pubErr != nil {
		err = s.recordFailure(writeCtx, started, platform, attempt, pubErr)
	} else {
		err = s.recordSuccess(writeCtx, started, platform, attempt, result)
	}
	if err != nil {
		return nil, err
	}

	return s.refresh(writeCtx, postID)
}

func (s *publishService) publish(ctx context.Context, publisher Publisher, post *models.Post) (*PublishResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return publisher.Publish(ctx, post)
}

func (s *publishService) precondition(ctx context.Context, post *models.Post, platform models.Platform, intent Intent, attempts int) error {
	err := &PreconditionError{PostID: post.ID.Hex(), Platform: platform, Intent: intent, Attempts: attempts}
	slog.ErrorContext(ctx, "orchestrator precondition violated", "err", err)
	return err
}

// settleExhausted marks a pending platform whose attempts already reached the
// cap as failed. This happens only when a process died mid-attempt.
func (s *publishService) settleExhausted(ctx context.Context, post *models.Post, platform models.Platform) (*models.Post, error) {
	failed := models.PostStatusFailed
	patch := models.PostPatch{
		Platforms: map[models.Platform]models.PlatformPatch{platform: {Status: &failed}},
	}
	s.withAggregate(post, &patch)

	slog.WarnContext(ctx, "attempts exhausted without recorded outcome, marking failed",
		"post_id", post.ID.Hex(), "platform", platform, "attempts", post.State(platform).Attempts)
	if _, err := s.posts.UpdateByID(ctx, post.ID.Hex(), patch); err != nil {
		return nil, err
	}
	return s.refresh(ctx, post.ID.Hex())
}

func (s *publishService) recordFailure(ctx context.Context, post *models.Post, platform models.Platform, attempt int, pubErr error) error {
	status := models.PostStatusPending
	if attempt >= post.MaxRetryAttempts {
		status = models.PostStatusFailed
	}
	msg := pubErr.Error()

	patch := models.PostPatch{
		Platforms: map[models.Platform]models.PlatformPatch{
			platform: {Status: &status, LastError: &msg},
		},
	}
	s.withAggregate(post, &patch)

	slog.ErrorContext(ctx, "publish attempt failed",
		"post_id", post.ID.Hex(), "platform", platform, "attempt", attempt,
		"max_attempts", post.MaxRetryAttempts, "status", status, "err", pubErr)

	if _, err := s.posts.UpdateByID(ctx, post.ID.Hex(), patch); err != nil {
		return err
	}
	s.recordHistory(ctx, &models.PostingHistory{
		PostID:       post.ID.Hex(),
		Platform:     platform,
		Attempt:      attempt,
		ErrorMessage: msg,
	})
	return nil
}

func (s *publishService) recordSuccess(ctx context.Context, post *models.Post, platform models.Platform, attempt int, result *PublishResult) error {
	if result == nil || result.ExternalID == "" {
		return s.recordFailure(ctx, post, platform, attempt, fmt.Errorf("%w: %s returned no id", ErrPublish, platform))
	}

	now := s.now().UTC()
	posted := models.PostStatusPosted
	noError := ""
	pp := models.PlatformPatch{
		Status:     &posted,
		ExternalID: &result.ExternalID,
		PostedAt:   &now,
		LastError:  &noError,
	}
	if result.MediaURL != "" {
		pp.MediaURL = &result.MediaURL
	}
	if result.Permalink != "" {
		pp.Permalink = &result.Permalink
	}
	patch := models.PostPatch{Platforms: map[models.Platform]models.PlatformPatch{platform: pp}}

	// Only Instagram hands back a hosted copy of the image.
	oldImage := post.ImageURL
	swap := platform == models.PlatformInstagram && result.MediaURL != "" && result.MediaURL != oldImage
	if swap {
		patch.ImageURL = &result.MediaURL
		patch.MetaData = map[string]interface{}{"originalImageUrl": oldImage}
	}
	s.withAggregate(post, &patch)

	if _, err := s.posts.UpdateByID(ctx, post.ID.Hex(), patch); err != nil {
		return err
	}
	slog.InfoContext(ctx, "post published",
		"post_id", post.ID.Hex(), "platform", platform, "attempt", attempt, "external_id", result.ExternalID)

	s.recordHistory(ctx, &models.PostingHistory{
		PostID:     post.ID.Hex(),
		Platform:   platform,
		Attempt:    attempt,
		Success:    true,
		ExternalID: result.ExternalID,
	})

	if swap {
		s.releaseImage(ctx, post.ID.Hex(), oldImage)
	}
	return nil
}

// withAggregate recomputes the post status as if patch were applied.
func (s *publishService) withAggregate(post *models.Post, patch *models.PostPatch) {
	preview := post.Clone()
	patch.Apply(preview)

	status := preview.AggregateStatus()
	patch.Status = &status
	if status == models.PostStatusPosted && post.PostedAt == nil {
		postedAt := latestPostedAt(preview)
		patch.PostedAt = &postedAt
	}
}

func latestPostedAt(p *models.Post) time.Time {
	times := make([]time.Time, 0, len(p.Platforms))
	for _, platform := range p.Platforms {
		if st := p.State(platform); st != nil && st.PostedAt != nil {
			times = append(times, *st.PostedAt)
		}
	}
	if len(times) == 0 {
		return time.Now().UTC()
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times[len(times)-1]
}

// releaseImage deletes a local upload once no post references it any more.
func (s *publishService) releaseImage(ctx context.Context, postID, imageURL string) {
	if s.uploads == nil {
		return
	}
	filename, ok := s.uploads.Owns(imageURL)
	if !ok {
		return
	}

	shared, err := s.posts.ExistsByImageURL(ctx, imageURL, postID)
	if err != nil {
		slog.WarnContext(ctx, "could not check image references, keeping file", "file", filename, "err", err)
		return
	}
	if shared {
		slog.InfoContext(ctx, "image still referenced by another post, keeping file", "file", filename)
		return
	}

	if s.uploads.Delete(ctx, filename) {
		slog.InfoContext(ctx, "released local image after publish", "post_id", postID, "file", filename)
	}
}

func (s *publishService) recordHistory(ctx context.Context, ph *models.PostingHistory) {
	if s.history == nil {
		return
	}
	ph.CreatedAt = s.now().UTC()
	if _, err := s.history.Create(ctx, ph); err != nil {
		slog.WarnContext(ctx, "failed to record attempt history", "post_id", ph.PostID, "err", err)
	}
}

func (s *publishService) refresh(ctx context.Context, postID string) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, fmt.Errorf("%w: %s", ErrPostNotFound, postID)
	}
	return post, nil
}
