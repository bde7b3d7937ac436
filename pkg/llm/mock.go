package llm

import (
	"context"
	"strings"
	"sync"
)

// Mock implements Provider for testing.
// Responses are scripted via the Reply and ReplyUsage fields.
type Mock struct {
	// Reply is the full response text. Streaming splits it into
	// word-sized chunks.
	Reply string

	// ReplyUsage is the usage reported with the response.
	ReplyUsage Usage

	// ChatFunc overrides Chat when set.
	ChatFunc func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// StreamFunc overrides Stream when set.
	StreamFunc func(ctx context.Context, req *ChatRequest) (Stream, error)

	mu       sync.Mutex
	requests []*ChatRequest
}

// NewMock creates a mock provider with a canned reply.
func NewMock(reply string) *Mock {
	return &Mock{
		Reply:      reply,
		ReplyUsage: Usage{PromptTokens: 12, CompletionTokens: 8, TotalTokens: 20},
	}
}

// Name returns the provider identifier.
func (m *Mock) Name() string { return "mock" }

// Close releases provider resources.
func (m *Mock) Close() error { return nil }

// Requests returns the chat requests received so far.
func (m *Mock) Requests() []*ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*ChatRequest(nil), m.requests...)
}

func (m *Mock) record(req *ChatRequest) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
}

// Chat returns the canned reply.
func (m *Mock) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	m.record(req)
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	return &ChatResponse{
		Message:      Message{Role: RoleAssistant, Content: m.Reply},
		FinishReason: "stop",
		Usage:        m.ReplyUsage,
	}, nil
}

// Stream returns the canned reply in word-sized chunks.
func (m *Mock) Stream(ctx context.Context, req *ChatRequest) (Stream, error) {
	m.record(req)
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req)
	}

	words := strings.SplitAfter(m.Reply, " ")
	usage := m.ReplyUsage
	return &mockStream{chunks: words, usage: &usage}, nil
}

type mockStream struct {
	chunks []string
	usage  *Usage
	pos    int
}

// Recv returns the next canned chunk.
func (s *mockStream) Recv() (*StreamChunk, error) {
	if s.pos < len(s.chunks) {
		delta := s.chunks[s.pos]
		s.pos++
		return &StreamChunk{Delta: delta}, nil
	}
	return &StreamChunk{Done: true, FinishReason: "stop", Usage: s.usage}, nil
}

// Close stops the stream.
func (s *mockStream) Close() error { return nil }
