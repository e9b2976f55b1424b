package service

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const captionMaxTokens = 150

// CaptionSource is one ranked caption generator.
type CaptionSource interface {
	Name() string
	Generate(ctx context.Context, imageURL, prompt string) (string, error)
}

// CaptionService always returns a non-empty caption.
type CaptionService interface {
	GenerateCaption(ctx context.Context, imageURL, promptID string) string
}

type captionService struct {
	sources       []CaptionSource
	fallback      CaptionSource
	prompts       repository.PromptRepository
	defaultPrompt string
	timeout       time.Duration
}

func NewCaptionService(sources []CaptionSource, prompts repository.PromptRepository, defaultPrompt string, timeout time.Duration) CaptionService {
	return &captionService{
		sources:       sources,
		fallback:      NewRandomCaptionSource(),
		prompts:       prompts,
		defaultPrompt: defaultPrompt,
		timeout:       timeout,
	}
}

func (s *captionService) GenerateCaption(ctx context.Context, imageURL, promptID string) string {
	prompt := s.resolvePrompt(ctx, promptID)

	for _, src := range s.sources {
		caption, err := s.try(ctx, src, imageURL, prompt)
		if err != nil {
			slog.WarnContext(ctx, "caption generation failed", "source", src.Name(), "err", err)
			continue
		}
		slog.InfoContext(ctx, "caption generated", "source", src.Name())
		return caption
	}

	slog.InfoContext(ctx, "using random caption as fallback")
	caption, _ := s.fallback.Generate(ctx, imageURL, prompt)
	return caption
}

func (s *captionService) try(ctx context.Context, src CaptionSource, imageURL, prompt string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	caption, err := src.Generate(ctx, imageURL, prompt)
	if err != nil {
		return "", err
	}
	if caption = cleanCaption(caption); caption == "" {
		return "", errors.New("empty caption")
	}
	return caption, nil
}

func (s *captionService) resolvePrompt(ctx context.Context, promptID string) string {
	if promptID == "" || s.prompts == nil {
		return s.defaultPrompt
	}
	p, err := s.prompts.GetByID(ctx, promptID)
	if err != nil || p == nil || strings.TrimSpace(p.Text) == "" {
		slog.WarnContext(ctx, "prompt not usable, using default", "prompt_id", promptID, "err", err)
		return s.defaultPrompt
	}
	return p.Text
}

func cleanCaption(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer(`"`, "", "'", "").Replace(s)
	return strings.TrimSpace(s)
}

type llmCaptionSource struct {
	name  string
	model llms.Model
}

// NewLLMCaptionSource wraps an OpenAI-compatible vision chat model.
func NewLLMCaptionSource(name string, model llms.Model) CaptionSource {
	return &llmCaptionSource{name: name, model: model}
}

func (s *llmCaptionSource) Name() string {
	return s.name
}

func (s *llmCaptionSource) Generate(ctx context.Context, imageURL, prompt string) (string, error) {
	messages := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(prompt),
				llms.ImageURLPart(imageURL),
			},
		},
	}

	resp, err := s.model.GenerateContent(ctx, messages, llms.WithMaxTokens(captionMaxTokens))
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return resp.Choices[0].Content, nil
}

// NewCaptionSources builds the ranked sources named in cfg.Providers.
// Providers without an API key are skipped.
func NewCaptionSources(cfg config.Captions) ([]CaptionSource, error) {
	var sources []CaptionSource
	for _, name := range cfg.Providers {
		var p config.CaptionProvider
		switch strings.ToLower(name) {
		case "openrouter":
			p = cfg.OpenRouter
		case "togetherai":
			p = cfg.TogetherAI
		default:
			slog.Warn("unknown caption provider, skipping", "provider", name)
			continue
		}
		if p.APIKey == "" {
			slog.Info("caption provider has no api key, skipping", "provider", name)
			continue
		}

		model, err := openai.New(
			openai.WithToken(p.APIKey),
			openai.WithBaseURL(p.BaseURL),
			openai.WithModel(p.Model),
		)
		if err != nil {
			return nil, err
		}
		sources = append(sources, NewLLMCaptionSource(name, model))
	}
	return sources, nil
}

var randomCaptions = []string{
	"✨ Living my best life\n\n#lifestyle #happy #blessed",
	"🌟 Making memories that last forever\n\n#memories #moments #life",
	"🎯 Goals in progress\n\n#motivation #goals #progress",
	"💫 Every day is a new opportunity\n\n#opportunity #growth #mindset",
	"🌈 Finding beauty in the little things\n\n#beauty #mindfulness #gratitude",
	"🎨 Creating my own path\n\n#creativity #journey #inspiration",
	"🌺 Blooming where I'm planted\n\n#growth #positivity #life",
	"⭐ Shining bright today and always\n\n#shine #positivevibes #happiness",
	"🌙 Dreams becoming reality\n\n#dreams #goals #achievement",
	"🎉 Celebrating life's moments\n\n#celebrate #joy #happiness",
}

type randomCaptionSource struct{}

func NewRandomCaptionSource() CaptionSource {
	return randomCaptionSource{}
}

func (randomCaptionSource) Name() string {
	return "random"
}

func (randomCaptionSource) Generate(ctx context.Context, imageURL, prompt string) (string, error) {
	return randomCaptions[rand.Intn(len(randomCaptions))], nil
}
