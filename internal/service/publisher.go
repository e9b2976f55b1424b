package service

import (
	"context"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

// PublishResult is what a platform hands back for a live post.
type PublishResult struct {
	ExternalID string
	// MediaURL is a platform-hosted copy of the image, when the platform exposes one.
	MediaURL  string
	Permalink string
}

type PublicInfo struct {
	MediaURL  string
	Permalink string
}

// Publisher runs one platform's publish protocol for a post snapshot.
// It never mutates the post; the orchestrator owns all bookkeeping.
type Publisher interface {
	Platform() models.Platform
	Publish(ctx context.Context, post *models.Post) (*PublishResult, error)
	FetchPublicInfo(ctx context.Context, externalID string) (*PublicInfo, error)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
