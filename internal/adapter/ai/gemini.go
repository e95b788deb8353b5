package ai

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/sourpie/gitknow/internal/port"
)

// ── Gemini ────────────────────────────────────────────────────────────────

// GeminiConfig selects the models used against the Gemini API.
type GeminiConfig struct {
	APIKey     string
	ChatModel  string // e.g. gemini-1.5-flash
	EmbedModel string // e.g. text-embedding-004
	Dimension  int
	BaseURL    string // optional override, used by tests and proxies
}

// GeminiProvider implements port.AIProvider with Google's official Gemini SDK.
type GeminiProvider struct {
	client     *genai.Client
	chatModel  string
	embedModel string
	dimension  int
}

// NewGeminiProvider creates the SDK client up front so misconfiguration
// surfaces at startup rather than on the first request.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	cc := &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  cfg.APIKey,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		client:     client,
		chatModel:  cfg.ChatModel,
		embedModel: cfg.EmbedModel,
		dimension:  cfg.Dimension,
	}, nil
}

// ModelName returns the chat model identifier.
func (g *GeminiProvider) ModelName() string {
	return g.chatModel
}

// Embed generates a vector embedding for the given text.
func (g *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	config := &genai.EmbedContentConfig{}
	if g.dimension > 0 {
		dim := int32(g.dimension)
		config.OutputDimensionality = &dim
	}

	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	res, err := g.client.Models.EmbedContent(ctx, g.embedModel, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(res.Embeddings) == 0 || res.Embeddings[0] == nil {
		return nil, fmt.Errorf("gemini embed: empty response")
	}

	return res.Embeddings[0].Values, nil
}

// Chat sends a system and user prompt and returns the complete response.
func (g *GeminiProvider) Chat(ctx context.Context, systemPrompt string, userPrompt string) (string, error) {
	result, err := g.client.Models.GenerateContent(ctx, g.chatModel, g.contents(userPrompt), g.config(systemPrompt))
	if err != nil {
		return "", fmt.Errorf("gemini chat: %w", err)
	}
	return result.Text(), nil
}

// ChatStream streams the response. The SDK iterator is drained in a goroutine
// so callers get the same channel shape as every other provider.
func (g *GeminiProvider) ChatStream(ctx context.Context, systemPrompt string, userPrompt string) (<-chan port.StreamChunk, error) {
	seq := g.client.Models.GenerateContentStream(ctx, g.chatModel, g.contents(userPrompt), g.config(systemPrompt))

	ch := make(chan port.StreamChunk, 64)
	go func() {
		defer close(ch)
		for resp, err := range seq {
			chunk := port.StreamChunk{}
			if err != nil {
				chunk.Err = fmt.Errorf("gemini stream: %w", err)
			} else if resp != nil {
				chunk.Text = resp.Text()
			}
			if chunk.Err == nil && chunk.Text == "" {
				continue
			}
			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
			if chunk.Err != nil {
				return
			}
		}
	}()

	return ch, nil
}

func (g *GeminiProvider) contents(userPrompt string) []*genai.Content {
	return []*genai.Content{genai.NewContentFromText(userPrompt, genai.RoleUser)}
}

func (g *GeminiProvider) config(systemPrompt string) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(systemPrompt)},
		}
	}
	return config
}
