package tts

import (
	"context"
	"sync"
	"time"
)

// Mock implements Provider for testing.
// All methods can be customized via function fields.
type Mock struct {
	// SynthesizeFunc is called when Synthesize is invoked.
	// If nil, returns silent audio of appropriate length.
	SynthesizeFunc func(ctx context.Context, text string) (*AudioResult, error)

	// StreamFunc is called when Stream is invoked.
	// If nil, returns the synthesized audio as a single-chunk stream.
	StreamFunc func(ctx context.Context, text string) (AudioStream, error)

	// Tracking
	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation for verification.
type MockCall struct {
	Method string
	Text   string
	Time   time.Time
}

const mockSampleRate = 16000

// NewMock creates a new mock provider with sensible defaults.
func NewMock() *Mock {
	return &Mock{
		SynthesizeFunc: func(ctx context.Context, text string) (*AudioResult, error) {
			// ~20ms of silence per character gives roughly natural
			// speech pacing.
			bytesPerChar := mockSampleRate * 2 / 50
			silence := make([]byte, len(text)*bytesPerChar)

			format := AudioFormat{
				Encoding:   "pcm_s16le",
				SampleRate: mockSampleRate,
				Channels:   1,
				BitDepth:   16,
			}
			return &AudioResult{
				Audio:     silence,
				Format:    format,
				Duration:  format.PCMDuration(len(silence)),
				CharCount: len(text),
				LatencyMs: 10,
			}, nil
		},
	}
}

// Name returns the provider identifier.
func (m *Mock) Name() string { return "mock" }

// Close releases provider resources.
func (m *Mock) Close() error { return nil }

// Synthesize calls SynthesizeFunc and records the call.
func (m *Mock) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	m.recordCall("Synthesize", text)
	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, text)
	}
	return nil, WrapError("mock", ErrStreamClosed)
}

// Stream calls StreamFunc and records the call.
// The default splits the synthesized audio into a short chunked stream.
func (m *Mock) Stream(ctx context.Context, text string) (AudioStream, error) {
	m.recordCall("Stream", text)
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, text)
	}

	result, err := m.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	return NewMockStream(result.Format, result.Audio), nil
}

// Calls returns the recorded invocations.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

func (m *Mock) recordCall(method, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Text: text, Time: time.Now()})
}

// MockStream replays a fixed audio buffer in chunks.
type MockStream struct {
	format AudioFormat
	chunks [][]byte
	pos    int
	closed bool
}

const mockChunkSize = 640 // 20ms at 16kHz PCM16

// NewMockStream creates a stream that replays audio in 20ms chunks.
func NewMockStream(format AudioFormat, audio []byte) *MockStream {
	var chunks [][]byte
	for len(audio) > 0 {
		n := mockChunkSize
		if n > len(audio) {
			n = len(audio)
		}
		chunks = append(chunks, audio[:n])
		audio = audio[n:]
	}
	return &MockStream{format: format, chunks: chunks}
}

// Read returns the next chunk, or nil when the buffer is drained.
func (s *MockStream) Read() ([]byte, error) {
	if s.closed {
		return nil, ErrStreamClosed
	}
	if s.pos >= len(s.chunks) {
		return nil, nil
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

// Close stops the stream.
func (s *MockStream) Close() error {
	s.closed = true
	return nil
}

// Format returns the audio format metadata.
func (s *MockStream) Format() AudioFormat { return s.format }
