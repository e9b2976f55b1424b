package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type stubSource struct {
	name    string
	caption string
	err     error
	prompts []string
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Generate(ctx context.Context, imageURL, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.caption, s.err
}

func TestCaptionService_RankedFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("first working source wins", func(t *testing.T) {
		first := &stubSource{name: "openrouter", err: errors.New("rate limited")}
		second := &stubSource{name: "togetherai", caption: `  "Golden hour glow" `}
		svc := NewCaptionService([]CaptionSource{first, second}, nil, "describe", time.Second)

		assert.Equal(t, "Golden hour glow", svc.GenerateCaption(ctx, "https://x/a.jpg", ""))
		assert.Equal(t, []string{"describe"}, first.prompts)
	})

	t.Run("blank output falls through", func(t *testing.T) {
		blank := &stubSource{name: "openrouter", caption: `""`}
		svc := NewCaptionService([]CaptionSource{blank}, nil, "describe", time.Second)

		assert.Contains(t, randomCaptions, svc.GenerateCaption(ctx, "https://x/a.jpg", ""))
	})

	t.Run("no sources uses random caption", func(t *testing.T) {
		svc := NewCaptionService(nil, nil, "describe", time.Second)
		caption := svc.GenerateCaption(ctx, "https://x/a.jpg", "")
		assert.NotEmpty(t, caption)
		assert.Contains(t, randomCaptions, caption)
	})
}

func TestCaptionService_UsesStoredPrompt(t *testing.T) {
	ctx := context.Background()
	prompts := repository.NewMemoryPromptRepository()
	p, err := prompts.Create(ctx, &models.Prompt{Text: "be funny"})
	require.NoError(t, err)

	src := &stubSource{name: "openrouter", caption: "ha"}
	svc := NewCaptionService([]CaptionSource{src}, prompts, "describe", time.Second)

	svc.GenerateCaption(ctx, "https://x/a.jpg", p.ID.Hex())
	svc.GenerateCaption(ctx, "https://x/a.jpg", "65f000000000000000000000")
	assert.Equal(t, []string{"be funny", "describe"}, src.prompts)
}

type fakeModel struct {
	messages []llms.MessageContent
	resp     *llms.ContentResponse
	err      error
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	return m.resp, m.err
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestLLMCaptionSource(t *testing.T) {
	model := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "Sunset vibes"}}}}
	src := NewLLMCaptionSource("openrouter", model)

	caption, err := src.Generate(context.Background(), "https://x/a.jpg", "describe")
	require.NoError(t, err)
	assert.Equal(t, "Sunset vibes", caption)

	require.Len(t, model.messages, 1)
	parts := model.messages[0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, llms.TextContent{Text: "describe"}, parts[0])
	assert.Equal(t, llms.ImageURLContent{URL: "https://x/a.jpg"}, parts[1])

	empty := NewLLMCaptionSource("x", &fakeModel{resp: &llms.ContentResponse{}})
	_, err = empty.Generate(context.Background(), "u", "p")
	assert.Error(t, err)
}
