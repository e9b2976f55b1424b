package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const (
	containerFinished = "FINISHED"
	containerError    = "ERROR"
	containerExpired  = "EXPIRED"
)

type instagramService struct {
	graph        *graphClient
	userID       string
	pollInterval time.Duration
	maxPolls     int
}

// NewInstagramService builds the Instagram publisher. Missing credentials are
// a ConfigurationError so the caller can disable just this platform.
func NewInstagramService(cfg config.Config) (Publisher, error) {
	var missing []string
	if cfg.Instagram.UserID == "" {
		missing = append(missing, "IG_USER_ID")
	}
	if cfg.Instagram.AccessToken == "" {
		missing = append(missing, "IG_ACCESS_TOKEN")
	}
	if len(missing) > 0 {
		return nil, &ConfigurationError{Platform: models.PlatformInstagram, Missing: missing}
	}

	maxPolls := cfg.Graph.MaxPolls
	if maxPolls < 1 {
		maxPolls = 1
	}

	return &instagramService{
		graph:        newGraphClient(cfg.Graph.BaseURL, cfg.Instagram.APIVersion, cfg.Instagram.AccessToken, cfg.Graph.Timeout),
		userID:       cfg.Instagram.UserID,
		pollInterval: cfg.Graph.PollInterval,
		maxPolls:     maxPolls,
	}, nil
}

func (s *instagramService) Platform() models.Platform {
	return models.PlatformInstagram
}

func (s *instagramService) Publish(ctx context.Context, post *models.Post) (*PublishResult, error) {
	slog.InfoContext(ctx, "publishing to instagram", "post_id", post.ID.Hex())

	containerID, err := s.createContainer(ctx, post)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "instagram container created", "post_id", post.ID.Hex(), "container_id", containerID)

	if err := s.waitForContainer(ctx, containerID); err != nil {
		return nil, err
	}

	mediaID, err := s.publishContainer(ctx, containerID)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "published to instagram", "post_id", post.ID.Hex(), "media_id", mediaID)

	result := &PublishResult{ExternalID: mediaID}
	info, err := s.FetchPublicInfo(ctx, mediaID)
	if err != nil {
		slog.WarnContext(ctx, "could not fetch instagram media info", "media_id", mediaID, "err", err)
		return result, nil
	}
	result.MediaURL = info.MediaURL
	result.Permalink = info.Permalink
	return result, nil
}

func (s *instagramService) createContainer(ctx context.Context, post *models.Post) (string, error) {
	var out transfer.GraphIDResponse
	err := s.graph.post(ctx, fmt.Sprintf("/%s/media", s.userID), map[string]string{
		"image_url": post.ImageURL,
		"caption":   post.Caption,
	}, &out)
	if err != nil {
		return "", remoteError(models.PlatformInstagram, "create container", ErrContainerCreation, err)
	}
	if out.ID == "" {
		return "", remoteError(models.PlatformInstagram, "create container", ErrContainerCreation, fmt.Errorf("response has no container id"))
	}
	return out.ID, nil
}

// waitForContainer polls the container status at most maxPolls times.
func (s *instagramService) waitForContainer(ctx context.Context, containerID string) error {
	var status string
	for poll := 1; poll <= s.maxPolls; poll++ {
		var out transfer.ContainerStatusResponse
		err := s.graph.get(ctx, "/"+containerID, map[string]string{"fields": "status_code"}, &out)
		if err != nil {
			return remoteError(models.PlatformInstagram, "check container", ErrContainerNotReady, err)
		}

		status = out.StatusCode
		switch status {
		case containerFinished:
			return nil
		case containerError, containerExpired:
			return remoteError(models.PlatformInstagram, "check container", ErrContainerNotReady,
				fmt.Errorf("container %s status %s", containerID, status))
		}

		if poll < s.maxPolls {
			if err := sleepContext(ctx, s.pollInterval); err != nil {
				return remoteError(models.PlatformInstagram, "check container", ErrContainerNotReady, err)
			}
		}
	}

	return remoteError(models.PlatformInstagram, "check container", ErrContainerNotReady,
		fmt.Errorf("container %s status %q after %d polls", containerID, status, s.maxPolls))
}

func (s *instagramService) publishContainer(ctx context.Context, containerID string) (string, error) {
	var out transfer.GraphIDResponse
	err := s.graph.post(ctx, fmt.Sprintf("/%s/media_publish", s.userID), map[string]string{
		"creation_id": containerID,
	}, &out)
	if err != nil {
		return "", remoteError(models.PlatformInstagram, "publish container", ErrPublish, err)
	}
	if out.ID == "" {
		return "", remoteError(models.PlatformInstagram, "publish container", ErrPublish, fmt.Errorf("response has no media id"))
	}
	return out.ID, nil
}

func (s *instagramService) FetchPublicInfo(ctx context.Context, mediaID string) (*PublicInfo, error) {
	var out transfer.InstagramMediaInfo
	err := s.graph.get(ctx, "/"+mediaID, map[string]string{"fields": "id,media_url,permalink"}, &out)
	if err != nil {
		return nil, remoteError(models.PlatformInstagram, "fetch media info", ErrRemoteRequest, err)
	}
	return &PublicInfo{MediaURL: out.MediaURL, Permalink: out.Permalink}, nil
}
