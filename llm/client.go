package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"casaingest/config"
)

// Client wraps a chat model for structured property extraction and an
// embedding model for search vectors.
type Client struct {
	model    llms.Model
	embedder Embedder
}

// Embedder produces a vector for a text. Satisfied by the langchaingo
// embedder and by test fakes.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

func NewClient(cfg config.OpenAIConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key not configured")
	}

	model, err := openai.New(
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}

	embedder, err := newOpenAIEmbedder(model)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	return &Client{model: model, embedder: embedder}, nil
}

// NewClientWithModel wires an arbitrary model and embedder. Tests use
// this to inject fakes.
func NewClientWithModel(model llms.Model, embedder Embedder) *Client {
	return &Client{model: model, embedder: embedder}
}

func (c *Client) complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	msgs := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}

	opts := []llms.CallOption{llms.WithTemperature(0)}
	if jsonMode {
		opts = append(opts, llms.WithJSONMode())
	}

	resp, err := c.model.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return resp.Choices[0].Content, nil
}

// stripFences removes markdown code fences the model sometimes wraps
// around JSON despite JSON mode.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}
