package service

import (
	"context"
	"errors"
	"strings"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
)

var ErrPromptNotFound = errors.New("prompt not found")

type PromptService interface {
	Create(ctx context.Context, text string) (*models.Prompt, error)
	List(ctx context.Context) ([]*models.Prompt, error)
	Get(ctx context.Context, id string) (*models.Prompt, error)
	Update(ctx context.Context, id, text string) (*models.Prompt, error)
	Remove(ctx context.Context, id string) (*models.Prompt, error)
}

type promptService struct {
	pr repository.PromptRepository
}

func NewPromptService(pr repository.PromptRepository) PromptService {
	return &promptService{pr: pr}
}

func (s *promptService) Create(ctx context.Context, text string) (*models.Prompt, error) {
	return s.pr.Create(ctx, &models.Prompt{Text: strings.TrimSpace(text)})
}

func (s *promptService) List(ctx context.Context) ([]*models.Prompt, error) {
	return s.pr.List(ctx)
}

func (s *promptService) Get(ctx context.Context, id string) (*models.Prompt, error) {
	return found(s.pr.GetByID(ctx, id))
}

func (s *promptService) Update(ctx context.Context, id, text string) (*models.Prompt, error) {
	return found(s.pr.Update(ctx, id, strings.TrimSpace(text)))
}

func (s *promptService) Remove(ctx context.Context, id string) (*models.Prompt, error) {
	return found(s.pr.Remove(ctx, id))
}

func found(p *models.Prompt, err error) (*models.Prompt, error) {
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPromptNotFound
	}
	return p, nil
}
