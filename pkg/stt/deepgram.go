package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	deepgramWSBaseURL = "wss://api.deepgram.com/v1/listen"
	providerDeepgram  = "deepgram"

	// Deepgram drops idle connections; a keepalive must go out when no
	// audio is flowing.
	deepgramKeepalive = 5 * time.Second

	eventChannelBuffer = 32
)

// Deepgram implements streaming STT over Deepgram's listen WebSocket API.
type Deepgram struct {
	config *Config
	logger *slog.Logger
}

// NewDeepgram creates a Deepgram STT provider.
func NewDeepgram(opts ...Option) (*Deepgram, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Deepgram{
		config: cfg,
		logger: cfg.Logger.With("component", "stt.deepgram"),
	}, nil
}

// Name returns the provider identifier.
func (d *Deepgram) Name() string { return providerDeepgram }

// Close releases provider resources. Streams hold their own connections.
func (d *Deepgram) Close() error { return nil }

// NewStream dials the listen endpoint and starts the read loop.
func (d *Deepgram) NewStream(ctx context.Context) (Stream, error) {
	base := d.config.BaseURL
	if base == "" {
		base = deepgramWSBaseURL
	}

	q := url.Values{}
	q.Set("model", d.config.Model)
	q.Set("language", d.config.Language)
	q.Set("encoding", d.config.Encoding)
	q.Set("sample_rate", strconv.Itoa(d.config.SampleRate))
	q.Set("interim_results", strconv.FormatBool(d.config.InterimResults))
	q.Set("punctuate", "true")

	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.config.APIKey)

	dialer := websocket.Dialer{
		HandshakeTimeout: d.config.DialTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, base+"?"+q.Encode(), headers)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				Message:    "websocket dial failed: " + err.Error(),
				Provider:   providerDeepgram,
			}
		}
		return nil, WrapError(providerDeepgram, fmt.Errorf("websocket dial failed: %w", err))
	}

	streamCtx, cancel := context.WithCancel(ctx)
	s := &deepgramStream{
		conn:   conn,
		events: make(chan Event, eventChannelBuffer),
		logger: d.logger,
		ctx:    streamCtx,
		cancel: cancel,
	}

	go s.readLoop()
	go s.keepaliveLoop()

	d.logger.Info("stream opened", "model", d.config.Model, "sample_rate", d.config.SampleRate)
	return s, nil
}

type deepgramStream struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  bool

	events    chan Event
	closeOnce sync.Once
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// Send pushes a PCM16 frame to the recognizer.
func (s *deepgramStream) Send(pcm16 []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, pcm16)
}

// CloseSend asks Deepgram to flush remaining results.
func (s *deepgramStream) CloseSend() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	return s.conn.WriteJSON(map[string]string{"type": "CloseStream"})
}

// Events returns the transcript event channel.
func (s *deepgramStream) Events() <-chan Event { return s.events }

// Close tears the session down.
func (s *deepgramStream) Close() error {
	s.writeMu.Lock()
	s.closed = true
	s.writeMu.Unlock()
	s.cancel()
	return s.conn.Close()
}

// deepgramResult is the subset of the listen response we consume.
type deepgramResult struct {
	Type     string  `json:"type"`
	IsFinal  bool    `json:"is_final"`
	Duration float64 `json:"duration"`
	Channel  struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (s *deepgramStream) readLoop() {
	defer s.closeOnce.Do(func() { close(s.events) })

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil {
				s.emit(Event{Err: WrapError(providerDeepgram, err), Timestamp: time.Now()})
			}
			return
		}

		var res deepgramResult
		if err := json.Unmarshal(data, &res); err != nil {
			s.logger.Debug("skipping malformed message", "error", err)
			continue
		}

		if res.Type != "Results" || len(res.Channel.Alternatives) == 0 {
			continue
		}

		alt := res.Channel.Alternatives[0]
		s.emit(Event{
			Transcript:    alt.Transcript,
			IsFinal:       res.IsFinal,
			Confidence:    alt.Confidence,
			AudioDuration: time.Duration(res.Duration * float64(time.Second)),
			Timestamp:     time.Now(),
		})
	}
}

func (s *deepgramStream) keepaliveLoop() {
	ticker := time.NewTicker(deepgramKeepalive)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			if s.closed {
				s.writeMu.Unlock()
				return
			}
			err := s.conn.WriteJSON(map[string]string{"type": "KeepAlive"})
			s.writeMu.Unlock()
			if err != nil {
				s.logger.Debug("keepalive failed", "error", err)
				return
			}
		}
	}
}

func (s *deepgramStream) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("event channel full, dropping transcript event")
	}
}
