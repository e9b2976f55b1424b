package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/transfer"
)

var ErrInvalidPost = errors.New("invalid post")

type PostService interface {
	CreatePost(ctx context.Context, pc *transfer.PostCreation, image []byte) (*models.Post, error)
	List(ctx context.Context) ([]*models.Post, error)
	PostInfo(ctx context.Context, postID string) (*models.Post, error)
	Update(ctx context.Context, postID string, pu *transfer.PostUpdate) (*models.Post, error)
	Remove(ctx context.Context, postID string) (*models.Post, error)
	History(ctx context.Context, postID string) ([]*models.PostingHistory, error)
	GenerateCaption(ctx context.Context, imageURL, promptID string) string
}

type postService struct {
	defaults config.PostDefaults
	pr       repository.PostRepository
	hr       repository.PostingHistoryRepository
	uploads  UploadStore
	captions CaptionService
}

func NewPostService(
	defaults config.PostDefaults,
	pr repository.PostRepository,
	hr repository.PostingHistoryRepository,
	uploads UploadStore,
	captions CaptionService) PostService {
	return &postService{
		defaults: defaults,
		pr:       pr,
		hr:       hr,
		uploads:  uploads,
		captions: captions,
	}
}

func (s *postService) CreatePost(ctx context.Context, pc *transfer.PostCreation, image []byte) (*models.Post, error) {
	if pc == nil {
		return nil, fmt.Errorf("%w: post creation data is nil", ErrInvalidPost)
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: image file is required", ErrInvalidPost)
	}

	scheduledDate, err := parseScheduledDate(pc.ScheduledDate)
	if err != nil {
		return nil, err
	}

	platforms, err := s.parsePlatforms(pc.Platforms)
	if err != nil {
		return nil, err
	}

	maxAttempts := s.defaults.MaxRetryAttempts
	if pc.MaxRetryAttempts > 0 {
		maxAttempts = pc.MaxRetryAttempts
	}
	if maxAttempts < 1 {
		maxAttempts = models.DefaultMaxRetryAttempts
	}

	retryDelay := s.defaults.RetryDelay.Milliseconds()
	if pc.RetryDelay > 0 {
		retryDelay = pc.RetryDelay
	}

	imageURL, err := s.uploads.Save(ctx, image)
	if err != nil {
		if errors.Is(err, ErrUnsupportedFile) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPost, err)
		}
		return nil, fmt.Errorf("error uploading file: %w", err)
	}

	caption := strings.TrimSpace(pc.Caption)
	if caption == "" {
		caption = s.captions.GenerateCaption(ctx, imageURL, "")
	}

	post := &models.Post{
		Caption:          caption,
		ImageURL:         imageURL,
		ScheduledDate:    scheduledDate,
		Status:           models.PostStatusPending,
		Platforms:        platforms,
		Instagram:        models.PlatformState{Status: models.PostStatusPending},
		Facebook:         models.PlatformState{Status: models.PostStatusPending},
		MaxRetryAttempts: maxAttempts,
		RetryDelayMS:     retryDelay,
		MetaData:         map[string]interface{}{},
	}

	created, err := s.pr.Create(ctx, post)
	if err != nil {
		s.releaseUpload(ctx, imageURL)
		return nil, err
	}

	slog.InfoContext(ctx, "post scheduled", "post_id", created.ID.Hex(),
		"scheduled_date", created.ScheduledDate, "platforms", created.Platforms)
	return created, nil
}

func (s *postService) List(ctx context.Context) ([]*models.Post, error) {
	return s.pr.List(ctx)
}

func (s *postService) PostInfo(ctx context.Context, postID string) (*models.Post, error) {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, ErrPostNotFound
	}
	return post, nil
}

func (s *postService) Update(ctx context.Context, postID string, pu *transfer.PostUpdate) (*models.Post, error) {
	if pu == nil {
		return nil, fmt.Errorf("%w: update data is nil", ErrInvalidPost)
	}

	current, err := s.PostInfo(ctx, postID)
	if err != nil {
		return nil, err
	}

	patch := models.PostPatch{
		ImageURL:         pu.ImageURL,
		MaxRetryAttempts: pu.MaxRetryAttempts,
		RetryDelayMS:     pu.RetryDelay,
		MetaData:         pu.MetaData,
	}

	if pu.ScheduledDate != nil {
		scheduledDate, err := parseScheduledDate(*pu.ScheduledDate)
		if err != nil {
			return nil, err
		}
		patch.ScheduledDate = &scheduledDate
	}

	if pu.Caption != nil {
		caption := strings.TrimSpace(*pu.Caption)
		if caption == "" {
			imageURL := current.ImageURL
			if pu.ImageURL != nil {
				imageURL = *pu.ImageURL
			}
			caption = s.captions.GenerateCaption(ctx, imageURL, "")
		}
		patch.Caption = &caption
	}

	updated, err := s.pr.UpdateByID(ctx, postID, patch)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrPostNotFound
	}
	return updated, nil
}

// Remove deletes the post and releases its local image when no other post uses it.
func (s *postService) Remove(ctx context.Context, postID string) (*models.Post, error) {
	post, err := s.pr.Remove(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, ErrPostNotFound
	}

	shared, err := s.pr.ExistsByImageURL(ctx, post.ImageURL, postID)
	if err != nil {
		slog.WarnContext(ctx, "could not check image references, keeping file", "post_id", postID, "err", err)
		return post, nil
	}
	if !shared {
		s.releaseUpload(ctx, post.ImageURL)
	}
	return post, nil
}

func (s *postService) History(ctx context.Context, postID string) ([]*models.PostingHistory, error) {
	if _, err := s.PostInfo(ctx, postID); err != nil {
		return nil, err
	}
	return s.hr.ListByPostID(ctx, postID)
}

func (s *postService) GenerateCaption(ctx context.Context, imageURL, promptID string) string {
	return s.captions.GenerateCaption(ctx, imageURL, promptID)
}

func (s *postService) releaseUpload(ctx context.Context, imageURL string) {
	if name, ok := s.uploads.Owns(imageURL); ok {
		s.uploads.Delete(ctx, name)
	}
}

func (s *postService) parsePlatforms(raw string) ([]models.Platform, error) {
	names := s.defaults.Platforms
	if strings.TrimSpace(raw) != "" {
		names = strings.Split(raw, ",")
	}

	seen := make(map[models.Platform]bool)
	var platforms []models.Platform
	for _, name := range names {
		p, ok := models.ParsePlatform(strings.ToLower(strings.TrimSpace(name)))
		if !ok {
			return nil, fmt.Errorf("%w: unknown platform %q", ErrInvalidPost, name)
		}
		if !seen[p] {
			seen[p] = true
			platforms = append(platforms, p)
		}
	}
	if len(platforms) == 0 {
		return nil, fmt.Errorf("%w: at least one platform is required", ErrInvalidPost)
	}
	return platforms, nil
}

func parseScheduledDate(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid scheduled date format: %v", ErrInvalidPost, err)
	}
	return t.UTC(), nil
}
