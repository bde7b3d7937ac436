// Package llm provides a unified interface for chat language models.
//
// The bundled Groq provider is built on the openai-go client with a
// base-URL override; it works with any OpenAI-compatible chat completions
// API. Streaming responses surface token usage on the final chunk so
// callers can account for prompt and completion tokens per turn.
//
// Example usage:
//
//	provider, _ := llm.NewGroq(
//	    llm.WithAPIKey(os.Getenv("GROQ_API_KEY")),
//	    llm.WithModel("llama3-8b-8192"),
//	)
//	defer provider.Close()
//
//	stream, _ := provider.Stream(ctx, &llm.ChatRequest{
//	    Messages: []llm.Message{{Role: llm.RoleUser, Content: "Hello!"}},
//	})
package llm

import (
	"context"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role
	Content string
}

// ChatRequest for chat completions.
type ChatRequest struct {
	// Messages is the conversation history.
	Messages []Message

	// Model overrides the provider's default model.
	Model string

	// MaxTokens limits the response length. Zero means provider default.
	MaxTokens int

	// Temperature controls response randomness. Negative means provider
	// default.
	Temperature float64
}

// Usage is the token accounting reported by the provider.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatResponse is a complete (non-streaming) chat result.
type ChatResponse struct {
	Message      Message
	FinishReason string
	Usage        Usage
	Model        string
	LatencyMs    int64
}

// Provider is the chat completion interface.
type Provider interface {
	// Name returns the provider identifier (for logging/debugging).
	Name() string

	// Chat generates a complete response.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Stream generates a streaming response for real-time output.
	Stream(ctx context.Context, req *ChatRequest) (Stream, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Stream is a streaming chat response.
type Stream interface {
	// Recv returns the next chunk. The chunk with Done set is the last;
	// it carries the final usage when the provider reports one.
	Recv() (*StreamChunk, error)

	// Close stops the stream and releases resources.
	Close() error
}

// StreamChunk is a piece of a streaming response.
type StreamChunk struct {
	// Delta is the incremental text content.
	Delta string

	// FinishReason indicates why generation stopped (stop, length, ...).
	FinishReason string

	// Done is true when the stream is complete.
	Done bool

	// Usage is set on the final chunk when the provider reports token
	// counts for the request.
	Usage *Usage
}
