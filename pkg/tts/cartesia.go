package tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	cartesiaWSBaseURL = "wss://api.cartesia.ai/tts/websocket"
	cartesiaVersion   = "2024-06-10"
	providerCartesia  = "cartesia"

	// CartesiaModelSonic is the Sonic model for low-latency streaming.
	CartesiaModelSonic = "sonic-2024-10-01"

	// cartesiaDefaultVoice is the default voice ID (Barbershop Man).
	cartesiaDefaultVoice = "a0e99841-438c-4a64-b679-ae501e7d6091"

	chunkChannelBuffer = 64
)

// Cartesia implements streaming TTS via Cartesia's WebSocket API.
// Each Stream call opens its own connection scoped to one utterance.
type Cartesia struct {
	config *Config
	logger *slog.Logger
}

// NewCartesia creates a Cartesia TTS provider.
func NewCartesia(opts ...Option) (*Cartesia, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Cartesia{
		config: cfg,
		logger: cfg.Logger.With("component", "tts.cartesia"),
	}, nil
}

// Name returns the provider identifier.
func (c *Cartesia) Name() string { return providerCartesia }

// Close releases provider resources. Streams hold their own connections.
func (c *Cartesia) Close() error { return nil }

// Format returns the configured output format.
func (c *Cartesia) Format() AudioFormat {
	return AudioFormat{
		Encoding:   "pcm_s16le",
		SampleRate: c.config.SampleRate,
		Channels:   1,
		BitDepth:   16,
	}
}

// cartesiaRequest is the synthesis request sent after dialing.
type cartesiaRequest struct {
	ContextID    string              `json:"context_id"`
	ModelID      string              `json:"model_id"`
	Transcript   string              `json:"transcript"`
	Voice        cartesiaVoice       `json:"voice"`
	OutputFormat cartesiaOutput      `json:"output_format"`
	Language     string              `json:"language,omitempty"`
}

type cartesiaVoice struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type cartesiaOutput struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

// cartesiaMessage is a response frame from the synthesis socket.
type cartesiaMessage struct {
	Type      string `json:"type"`
	Data      string `json:"data"`
	Done      bool   `json:"done"`
	Error     string `json:"error"`
	ContextID string `json:"context_id"`
}

// Stream synthesizes text, emitting PCM chunks as they arrive.
func (c *Cartesia) Stream(ctx context.Context, text string) (AudioStream, error) {
	base := c.config.BaseURL
	if base == "" {
		base = cartesiaWSBaseURL
	}
	url := fmt.Sprintf("%s?api_key=%s&cartesia_version=%s", base, c.config.APIKey, cartesiaVersion)

	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.DialTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				Message:    "websocket dial failed: " + err.Error(),
				Provider:   providerCartesia,
			}
		}
		return nil, WrapError(providerCartesia, fmt.Errorf("websocket dial failed: %w", err))
	}

	req := cartesiaRequest{
		ContextID:  uuid.NewString(),
		ModelID:    c.config.ModelID,
		Transcript: text,
		Voice:      cartesiaVoice{Mode: "id", ID: c.config.VoiceID},
		OutputFormat: cartesiaOutput{
			Container:  "raw",
			Encoding:   "pcm_s16le",
			SampleRate: c.config.SampleRate,
		},
		Language: c.config.Language,
	}
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, WrapError(providerCartesia, fmt.Errorf("send synthesis request: %w", err))
	}

	s := &cartesiaStream{
		conn:   conn,
		format: c.Format(),
		chunks: make(chan streamChunk, chunkChannelBuffer),
		done:   make(chan struct{}),
		logger: c.logger,
	}
	conn.SetReadDeadline(time.Now().Add(c.config.StreamTimeout))
	go s.readLoop()
	return s, nil
}

// Synthesize collects the full streamed result into one buffer.
func (c *Cartesia) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()

	stream, err := c.Stream(ctx, text)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var audio []byte
	var firstByte time.Duration
	for {
		chunk, err := stream.Read()
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			break
		}
		if firstByte == 0 {
			firstByte = time.Since(start)
		}
		audio = append(audio, chunk...)
	}

	format := stream.Format()
	return &AudioResult{
		Audio:     audio,
		Format:    format,
		Duration:  format.PCMDuration(len(audio)),
		CharCount: len(text),
		LatencyMs: firstByte.Milliseconds(),
	}, nil
}

type streamChunk struct {
	data []byte
	err  error
}

type cartesiaStream struct {
	conn      *websocket.Conn
	format    AudioFormat
	chunks    chan streamChunk
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

// deliver sends a chunk unless the stream was closed. A caller that
// abandons the stream mid-synthesis must not strand this goroutine on
// a full channel.
func (s *cartesiaStream) deliver(c streamChunk) bool {
	select {
	case s.chunks <- c:
		return true
	case <-s.done:
		return false
	}
}

func (s *cartesiaStream) readLoop() {
	defer close(s.chunks)

	for {
		var msg cartesiaMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			s.deliver(streamChunk{err: WrapError(providerCartesia, err)})
			return
		}

		switch msg.Type {
		case "chunk":
			data, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil {
				s.deliver(streamChunk{err: WrapError(providerCartesia, fmt.Errorf("decode audio chunk: %w", err))})
				return
			}
			if !s.deliver(streamChunk{data: data}) {
				return
			}
		case "done":
			return
		case "error":
			s.deliver(streamChunk{err: WrapError(providerCartesia, fmt.Errorf("synthesis failed: %s", msg.Error))})
			return
		default:
			s.logger.Debug("ignoring message", "type", msg.Type)
		}
	}
}

// Read returns the next audio chunk, or nil when synthesis is complete.
func (s *cartesiaStream) Read() ([]byte, error) {
	chunk, ok := <-s.chunks
	if !ok {
		return nil, nil
	}
	return chunk.data, chunk.err
}

// Close stops the stream and releases the connection.
func (s *cartesiaStream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return s.conn.Close()
}

// Format returns the audio format metadata.
func (s *cartesiaStream) Format() AudioFormat { return s.format }
