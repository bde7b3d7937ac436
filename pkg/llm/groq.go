package llm

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/klarholt/parley/internal/httpc"
)

const (
	groqBaseURL  = "https://api.groq.com/openai/v1"
	providerGroq = "groq"
)

// Groq implements chat completions against Groq's OpenAI-compatible API.
// With a different base URL it works against any compatible endpoint
// (OpenAI, Together, vLLM, Ollama).
type Groq struct {
	client *openai.Client
	config *Config
	logger *slog.Logger
}

// NewGroq creates a Groq chat provider.
func NewGroq(opts ...Option) (*Groq, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = groqBaseURL
	}
	// openai-go resolves request paths against the base URL; without the
	// trailing slash the last path segment is dropped.
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = httpc.NewClient(cfg.Timeout)
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
	}

	client := openai.NewClient(clientOpts...)

	return &Groq{
		client: &client,
		config: cfg,
		logger: cfg.Logger.With("component", "llm.groq"),
	}, nil
}

// Name returns the provider identifier.
func (g *Groq) Name() string { return providerGroq }

// Close releases provider resources.
func (g *Groq) Close() error { return nil }

// Chat generates a complete response.
func (g *Groq) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	resp, err := g.client.Chat.Completions.New(ctx, g.buildParams(req, false))
	if err != nil {
		return nil, WrapError(providerGroq, err)
	}
	if len(resp.Choices) == 0 {
		return nil, WrapError(providerGroq, ErrNoChoices)
	}

	choice := resp.Choices[0]
	return &ChatResponse{
		Message: Message{
			Role:    RoleAssistant,
			Content: choice.Message.Content,
		},
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		Model:     resp.Model,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// Stream generates a streaming response. Usage for the request arrives on
// the final chunk.
func (g *Groq) Stream(ctx context.Context, req *ChatRequest) (Stream, error) {
	raw := g.client.Chat.Completions.NewStreaming(ctx, g.buildParams(req, true))
	return &groqStream{raw: raw}, nil
}

func (g *Groq) buildParams(req *ChatRequest, stream bool) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = g.config.Model
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = g.config.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = g.config.Temperature
	}
	params.Temperature = openai.Float(temperature)

	if stream {
		// Without this, OpenAI-compatible APIs omit token usage from
		// streamed responses.
		params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		}
	}

	return params
}

// groqStream adapts the openai-go SSE stream to the Stream interface.
type groqStream struct {
	raw *ssestream.Stream[openai.ChatCompletionChunk]

	finish string
	usage  *Usage
	done   bool
}

// Recv returns the next chunk.
func (s *groqStream) Recv() (*StreamChunk, error) {
	if s.done {
		return s.finalChunk(), nil
	}

	for s.raw.Next() {
		chunk := s.raw.Current()

		if chunk.Usage.TotalTokens > 0 {
			s.usage = &Usage{
				PromptTokens:     int(chunk.Usage.PromptTokens),
				CompletionTokens: int(chunk.Usage.CompletionTokens),
				TotalTokens:      int(chunk.Usage.TotalTokens),
			}
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			s.finish = string(choice.FinishReason)
		}
		if choice.Delta.Content == "" {
			continue
		}
		return &StreamChunk{Delta: choice.Delta.Content}, nil
	}

	if err := s.raw.Err(); err != nil {
		return nil, WrapError(providerGroq, err)
	}

	s.done = true
	return s.finalChunk(), nil
}

func (s *groqStream) finalChunk() *StreamChunk {
	return &StreamChunk{Done: true, FinishReason: s.finish, Usage: s.usage}
}

// Close stops the stream.
func (s *groqStream) Close() error {
	return s.raw.Close()
}
