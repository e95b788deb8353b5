package port

import "context"

// StreamChunk is one piece of a streamed completion. A chunk with a non-nil
// Err is the last one sent on the channel.
type StreamChunk struct {
	Text string
	Err  error
}

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChatModel generates text from a system prompt and a user prompt.
type ChatModel interface {
	// Chat returns the complete response.
	Chat(ctx context.Context, systemPrompt string, userPrompt string) (string, error)

	// ChatStream streams the response in generation order. The channel is
	// closed when generation ends.
	ChatStream(ctx context.Context, systemPrompt string, userPrompt string) (<-chan StreamChunk, error)
}

// AIProvider abstracts the model backend used for summaries, embeddings and answers.
// Implementations target Gemini or Ollama.
type AIProvider interface {
	Embedder
	ChatModel

	// ModelName returns the identifier of the chat model being used.
	ModelName() string
}
