package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublishService struct {
	mock.Mock
}

func (m *mockPublishService) Attempt(ctx context.Context, postID string, platform models.Platform, intent service.Intent) (*models.Post, error) {
	args := m.Called(ctx, postID, platform, intent)
	post, _ := args.Get(0).(*models.Post)
	return post, args.Error(1)
}

func (m *mockPublishService) Platforms() []models.Platform {
	return []models.Platform{models.PlatformInstagram}
}

type mockEnqueuer struct {
	mock.Mock
}

func (m *mockEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(task.Type(), task.Payload(), len(opts))
	info, _ := args.Get(0).(*asynq.TaskInfo)
	return info, args.Error(1)
}

var payload = AttemptPayload{
	PostID: "65f1c0ffee",
	Intent: service.IntentRetry,
	Platforms: []PlatformAttempt{
		{Platform: models.PlatformInstagram, Attempts: 2},
	},
}

func TestTaskID(t *testing.T) {
	assert.Equal(t, "65f1c0ffee:instagram=2", TaskID(payload))

	next := AttemptPayload{PostID: payload.PostID, Intent: payload.Intent, Platforms: []PlatformAttempt{
		{Platform: models.PlatformInstagram, Attempts: 3},
	}}
	assert.NotEqual(t, TaskID(payload), TaskID(next))

	both := AttemptPayload{PostID: payload.PostID, Platforms: []PlatformAttempt{
		{Platform: models.PlatformInstagram, Attempts: 2},
		{Platform: models.PlatformFacebook, Attempts: 0},
	}}
	assert.Equal(t, "65f1c0ffee:instagram=2,facebook=0", TaskID(both))
}

func TestInlineDispatcher(t *testing.T) {
	ctx := context.Background()

	t.Run("runs the attempt", func(t *testing.T) {
		ps := new(mockPublishService)
		ps.On("Attempt", ctx, payload.PostID, models.PlatformInstagram, payload.Intent).
			Return(&models.Post{Status: models.PostStatusPosted}, nil).Once()

		require.NoError(t, NewInlineDispatcher(ps).Dispatch(ctx, payload))
		ps.AssertExpectations(t)
	})

	t.Run("runs every platform of the post in order", func(t *testing.T) {
		both := AttemptPayload{PostID: "p1", Intent: service.IntentFirstPublish, Platforms: []PlatformAttempt{
			{Platform: models.PlatformInstagram},
			{Platform: models.PlatformFacebook},
		}}
		var order []models.Platform
		ps := new(mockPublishService)
		ps.On("Attempt", ctx, "p1", mock.Anything, service.IntentFirstPublish).
			Run(func(args mock.Arguments) { order = append(order, args.Get(2).(models.Platform)) }).
			Return(nil, errors.New("store unavailable")).Once()
		ps.On("Attempt", ctx, "p1", mock.Anything, service.IntentFirstPublish).
			Run(func(args mock.Arguments) { order = append(order, args.Get(2).(models.Platform)) }).
			Return(&models.Post{}, nil).Once()

		err := NewInlineDispatcher(ps).Dispatch(ctx, both)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "instagram")
		assert.Equal(t, []models.Platform{models.PlatformInstagram, models.PlatformFacebook}, order)
	})

	t.Run("returns orchestrator errors", func(t *testing.T) {
		ps := new(mockPublishService)
		ps.On("Attempt", ctx, payload.PostID, models.PlatformInstagram, payload.Intent).
			Return(nil, service.ErrPostNotFound).Once()

		err := NewInlineDispatcher(ps).Dispatch(ctx, payload)
		assert.ErrorIs(t, err, service.ErrPostNotFound)
	})
}

func TestAsynqDispatcher(t *testing.T) {
	ctx := context.Background()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	t.Run("enqueues with id and no retries", func(t *testing.T) {
		q := new(mockEnqueuer)
		q.On("EnqueueContext", TaskTypePublishAttempt, body, 3).
			Return(&asynq.TaskInfo{ID: TaskID(payload)}, nil).Once()

		d := &asynqDispatcher{client: q, timeout: time.Minute}
		require.NoError(t, d.Dispatch(ctx, payload))
		q.AssertExpectations(t)
	})

	t.Run("duplicate attempt is not an error", func(t *testing.T) {
		q := new(mockEnqueuer)
		q.On("EnqueueContext", TaskTypePublishAttempt, body, 2).
			Return(nil, asynq.ErrTaskIDConflict).Once()

		d := &asynqDispatcher{client: q}
		assert.NoError(t, d.Dispatch(ctx, payload))
	})

	t.Run("broker failure surfaces", func(t *testing.T) {
		q := new(mockEnqueuer)
		q.On("EnqueueContext", TaskTypePublishAttempt, body, 2).
			Return(nil, errors.New("redis down")).Once()

		d := &asynqDispatcher{client: q}
		assert.Error(t, d.Dispatch(ctx, payload))
	})
}

func TestWorker_HandlePublishAttemptTask(t *testing.T) {
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	t.Run("runs the attempt", func(t *testing.T) {
		ps := new(mockPublishService)
		ps.On("Attempt", mock.Anything, payload.PostID, models.PlatformInstagram, payload.Intent).
			Return(&models.Post{}, nil).Once()

		err := NewWorker(ps).HandlePublishAttemptTask(context.Background(), asynq.NewTask(TaskTypePublishAttempt, body))
		require.NoError(t, err)
		ps.AssertExpectations(t)
	})

	t.Run("orchestrator errors do not archive the task", func(t *testing.T) {
		ps := new(mockPublishService)
		ps.On("Attempt", mock.Anything, payload.PostID, models.PlatformInstagram, payload.Intent).
			Return(nil, &service.PreconditionError{PostID: payload.PostID, Platform: models.PlatformInstagram, Intent: payload.Intent}).Once()

		err := NewWorker(ps).HandlePublishAttemptTask(context.Background(), asynq.NewTask(TaskTypePublishAttempt, body))
		assert.NoError(t, err)
	})

	t.Run("a failing platform does not stop the next one", func(t *testing.T) {
		both := AttemptPayload{PostID: "p2", Intent: service.IntentRetry, Platforms: []PlatformAttempt{
			{Platform: models.PlatformInstagram, Attempts: 1},
			{Platform: models.PlatformFacebook, Attempts: 2},
		}}
		raw, err := json.Marshal(both)
		require.NoError(t, err)

		ps := new(mockPublishService)
		ps.On("Attempt", mock.Anything, "p2", models.PlatformInstagram, service.IntentRetry).
			Return(nil, errors.New("store unavailable")).Once()
		ps.On("Attempt", mock.Anything, "p2", models.PlatformFacebook, service.IntentRetry).
			Return(&models.Post{}, nil).Once()

		err = NewWorker(ps).HandlePublishAttemptTask(context.Background(), asynq.NewTask(TaskTypePublishAttempt, raw))
		require.NoError(t, err)
		ps.AssertExpectations(t)
	})

	t.Run("bad payload is skipped", func(t *testing.T) {
		ps := new(mockPublishService)

		err := NewWorker(ps).HandlePublishAttemptTask(context.Background(), asynq.NewTask(TaskTypePublishAttempt, []byte("{")))
		assert.ErrorIs(t, err, asynq.SkipRetry)
		ps.AssertNotCalled(t, "Attempt")
	})

	t.Run("unknown intent is skipped", func(t *testing.T) {
		bad := payload
		bad.Intent = "later"
		raw, err := json.Marshal(bad)
		require.NoError(t, err)

		err = NewWorker(new(mockPublishService)).HandlePublishAttemptTask(context.Background(), asynq.NewTask(TaskTypePublishAttempt, raw))
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})
}
