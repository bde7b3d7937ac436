package stt

import (
	"context"
	"sync"
	"time"
)

// Mock implements Provider for testing.
type Mock struct {
	// NewStreamFunc is called when NewStream is invoked.
	// If nil, a MockStream is returned.
	NewStreamFunc func(ctx context.Context) (Stream, error)

	mu      sync.Mutex
	streams []*MockStream
}

// NewMock creates a new mock provider.
func NewMock() *Mock { return &Mock{} }

// Name returns the provider identifier.
func (m *Mock) Name() string { return "mock" }

// NewStream returns a MockStream (or delegates to NewStreamFunc).
func (m *Mock) NewStream(ctx context.Context) (Stream, error) {
	if m.NewStreamFunc != nil {
		return m.NewStreamFunc(ctx)
	}
	s := NewMockStream()
	m.mu.Lock()
	m.streams = append(m.streams, s)
	m.mu.Unlock()
	return s, nil
}

// Close releases provider resources.
func (m *Mock) Close() error { return nil }

// Streams returns the streams handed out so far.
func (m *Mock) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockStream(nil), m.streams...)
}

// MockStream is a scriptable Stream for tests. Push events with Emit; sent
// audio is recorded for verification.
type MockStream struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool

	events    chan Event
	closeOnce sync.Once
}

// NewMockStream creates an open mock stream.
func NewMockStream() *MockStream {
	return &MockStream{
		events: make(chan Event, eventChannelBuffer),
	}
}

// Send records the audio frame.
func (s *MockStream) Send(pcm16 []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	buf := make([]byte, len(pcm16))
	copy(buf, pcm16)
	s.sent = append(s.sent, buf)
	return nil
}

// Events returns the event channel.
func (s *MockStream) Events() <-chan Event { return s.events }

// CloseSend is a no-op for the mock.
func (s *MockStream) CloseSend() error { return nil }

// Close marks the stream closed and closes the event channel.
func (s *MockStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.events) })
	return nil
}

// Emit delivers a transcript event to the consumer.
func (s *MockStream) Emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	s.events <- ev
}

// EmitFinal delivers a final transcript for text.
func (s *MockStream) EmitFinal(text string) {
	s.Emit(Event{Transcript: text, IsFinal: true, Confidence: 1.0})
}

// Sent returns the audio frames pushed so far.
func (s *MockStream) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.sent...)
}
