package service

import (
	"context"
	"testing"
	"time"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedCaptions struct {
	calls []string
}

func (c *fixedCaptions) GenerateCaption(ctx context.Context, imageURL, promptID string) string {
	c.calls = append(c.calls, imageURL)
	return "generated caption"
}

func newPostServiceFixture(t *testing.T) (PostService, repository.PostRepository, UploadStore, *fixedCaptions) {
	t.Helper()
	uploads, err := NewLocalUploadStore(t.TempDir(), "http://localhost:3000")
	require.NoError(t, err)

	repo := repository.NewMemoryPostRepository()
	captions := &fixedCaptions{}
	svc := NewPostService(config.PostDefaults{
		MaxRetryAttempts: 5,
		RetryDelay:       60 * time.Second,
		Platforms:        []string{"instagram"},
	}, repo, repository.NewMemoryPostingHistoryRepository(), uploads, captions)
	return svc, repo, uploads, captions
}

func TestPostService_CreatePost(t *testing.T) {
	ctx := context.Background()
	svc, _, uploads, captions := newPostServiceFixture(t)

	post, err := svc.CreatePost(ctx, &transfer.PostCreation{
		ScheduledDate: "2025-03-01T12:00:00+02:00",
		Platforms:     "instagram,facebook,instagram",
	}, pngHeader)
	require.NoError(t, err)

	assert.Equal(t, "generated caption", post.Caption)
	assert.Equal(t, []string{post.ImageURL}, captions.calls)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), post.ScheduledDate)
	assert.Equal(t, []models.Platform{models.PlatformInstagram, models.PlatformFacebook}, post.Platforms)
	assert.Equal(t, models.PostStatusPending, post.Status)
	assert.Equal(t, 0, post.Instagram.Attempts)
	assert.Equal(t, 5, post.MaxRetryAttempts)
	assert.Equal(t, int64(60000), post.RetryDelayMS)

	_, owned := uploads.Owns(post.ImageURL)
	assert.True(t, owned)
}

func TestPostService_CreatePostRejects(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newPostServiceFixture(t)

	cases := map[string]struct {
		pc    *transfer.PostCreation
		image []byte
	}{
		"missing image":    {&transfer.PostCreation{ScheduledDate: "2025-03-01T12:00:00Z"}, nil},
		"bad date":         {&transfer.PostCreation{ScheduledDate: "tomorrow"}, pngHeader},
		"unknown platform": {&transfer.PostCreation{ScheduledDate: "2025-03-01T12:00:00Z", Platforms: "myspace"}, pngHeader},
		"not an image":     {&transfer.PostCreation{ScheduledDate: "2025-03-01T12:00:00Z"}, []byte("hello")},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreatePost(ctx, tc.pc, tc.image)
			assert.ErrorIs(t, err, ErrInvalidPost)
		})
	}
}

func TestPostService_UpdateRegeneratesBlankCaption(t *testing.T) {
	ctx := context.Background()
	svc, _, _, captions := newPostServiceFixture(t)

	post, err := svc.CreatePost(ctx, &transfer.PostCreation{
		Caption:       "mine",
		ScheduledDate: "2025-03-01T12:00:00Z",
	}, pngHeader)
	require.NoError(t, err)
	assert.Empty(t, captions.calls)

	blank := "   "
	attempts := 3
	updated, err := svc.Update(ctx, post.ID.Hex(), &transfer.PostUpdate{Caption: &blank, MaxRetryAttempts: &attempts})
	require.NoError(t, err)
	assert.Equal(t, "generated caption", updated.Caption)
	assert.Equal(t, 3, updated.MaxRetryAttempts)

	_, err = svc.Update(ctx, "65f000000000000000000000", &transfer.PostUpdate{})
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestPostService_RemoveReleasesImage(t *testing.T) {
	ctx := context.Background()
	svc, repo, uploads, _ := newPostServiceFixture(t)

	post, err := svc.CreatePost(ctx, &transfer.PostCreation{Caption: "c", ScheduledDate: "2025-03-01T12:00:00Z"}, pngHeader)
	require.NoError(t, err)

	removed, err := svc.Remove(ctx, post.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, post.ID, removed.ID)

	name, _ := uploads.Owns(post.ImageURL)
	assert.False(t, uploads.Delete(ctx, name), "file already released")

	gone, err := repo.GetByID(ctx, post.ID.Hex())
	require.NoError(t, err)
	assert.Nil(t, gone)

	_, err = svc.Remove(ctx, post.ID.Hex())
	assert.ErrorIs(t, err, ErrPostNotFound)
}
