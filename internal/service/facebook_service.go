package service

import (
	"context"
	"fmt"
	"log/slog"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

type facebookService struct {
	graph  *graphClient
	pageID string
}

func NewFacebookService(cfg config.Config) (Publisher, error) {
	var missing []string
	if cfg.Facebook.PageID == "" {
		missing = append(missing, "FB_PAGE_ID")
	}
	if cfg.Facebook.AccessToken == "" {
		missing = append(missing, "FB_ACCESS_TOKEN")
	}
	if len(missing) > 0 {
		return nil, &ConfigurationError{Platform: models.PlatformFacebook, Missing: missing}
	}

	return &facebookService{
		graph:  newGraphClient(cfg.Graph.BaseURL, cfg.Facebook.APIVersion, cfg.Facebook.AccessToken, cfg.Graph.Timeout),
		pageID: cfg.Facebook.PageID,
	}, nil
}

func (s *facebookService) Platform() models.Platform {
	return models.PlatformFacebook
}

// Publish posts the photo to the page. The permalink is not an image URL,
// so MediaURL is always empty.
func (s *facebookService) Publish(ctx context.Context, post *models.Post) (*PublishResult, error) {
	slog.InfoContext(ctx, "publishing to facebook", "post_id", post.ID.Hex())

	var out transfer.GraphIDResponse
	err := s.graph.post(ctx, fmt.Sprintf("/%s/photos", s.pageID), map[string]string{
		"url":       post.ImageURL,
		"caption":   post.Caption,
		"published": "true",
	}, &out)
	if err != nil {
		return nil, remoteError(models.PlatformFacebook, "publish photo", ErrPublish, err)
	}
	if out.ID == "" {
		return nil, remoteError(models.PlatformFacebook, "publish photo", ErrPublish, fmt.Errorf("response has no post id"))
	}
	slog.InfoContext(ctx, "published to facebook", "post_id", post.ID.Hex(), "facebook_id", out.ID)

	result := &PublishResult{ExternalID: out.ID}
	info, err := s.FetchPublicInfo(ctx, out.ID)
	if err != nil {
		slog.WarnContext(ctx, "could not fetch facebook post url", "facebook_id", out.ID, "err", err)
		return result, nil
	}
	result.Permalink = info.Permalink
	return result, nil
}

func (s *facebookService) FetchPublicInfo(ctx context.Context, postID string) (*PublicInfo, error) {
	var out transfer.FacebookPostInfo
	err := s.graph.get(ctx, "/"+postID, map[string]string{"fields": "permalink_url"}, &out)
	if err != nil {
		return nil, remoteError(models.PlatformFacebook, "fetch permalink", ErrRemoteRequest, err)
	}
	return &PublicInfo{Permalink: out.PermalinkURL}, nil
}
