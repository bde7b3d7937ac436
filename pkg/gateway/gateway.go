// Package gateway exposes a conversation session over a WebSocket audio
// transport.
//
// A client connects to /ws and streams binary PCM16 frames up; synthesized
// reply audio comes back as binary frames. Text messages carry JSON events
// (transcripts, responses, speech boundaries, errors) downstream and control
// commands (interrupt) upstream. Each connection gets its own session and
// its own metrics recorder, flushed when the connection closes.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/klarholt/parley/pkg/audio"
	"github.com/klarholt/parley/pkg/metrics"
	"github.com/klarholt/parley/pkg/session"
)

const (
	readLimit       = 1 << 20 // 1 MiB per message
	shutdownTimeout = 5 * time.Second
)

// SessionFactory builds a fresh conversation session for one connection.
type SessionFactory func() (*session.Session, error)

// RecorderFactory builds the per-connection metrics recorder.
type RecorderFactory func() *metrics.Recorder

// Config holds gateway server parameters.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// SampleRate is the session's PCM16 sample rate in Hz. Clients sending
	// a different `sample_rate` query param get resampled both ways.
	// Defaults to 16000.
	SampleRate int

	// Logger is the structured logger for the gateway.
	Logger *slog.Logger
}

// Server is the WebSocket audio gateway.
type Server struct {
	cfg         Config
	logger      *slog.Logger
	newSession  SessionFactory
	newRecorder RecorderFactory
	upgrader    websocket.Upgrader

	baseCtx context.Context
}

// New creates a gateway server.
func New(cfg Config, newSession SessionFactory, newRecorder RecorderFactory) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &Server{
		cfg:         cfg,
		logger:      logger.With("component", "gateway"),
		newSession:  newSession,
		newRecorder: newRecorder,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from arbitrary origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		baseCtx: context.Background(),
	}
}

// Handler returns the gateway's HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx

	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("gateway listening", "addr", s.cfg.Addr)

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	id := r.URL.Query().Get("connection_id")
	if id == "" {
		id = ulid.Make().String()
	}

	clientRate := s.cfg.SampleRate
	if v := r.URL.Query().Get("sample_rate"); v != "" {
		rate, err := strconv.Atoi(v)
		if err != nil || rate <= 0 {
			s.logger.Warn("ignoring bad sample_rate", "connection_id", id, "value", v)
		} else {
			clientRate = rate
		}
	}

	c := &conn{
		id:     id,
		ws:     ws,
		rate:   clientRate,
		logger: s.logger.With("connection_id", id),
	}
	c.logger.Info("client connected", "remote", r.RemoteAddr, "sample_rate", clientRate)
	defer c.logger.Info("client disconnected")

	s.serve(c)
}

// serve runs one connection's session until the client disconnects or the
// gateway shuts down.
func (s *Server) serve(c *conn) {
	defer c.ws.Close()

	sess, err := s.newSession()
	if err != nil {
		c.logger.Error("session setup failed", "error", err)
		c.writeEvent(clientEvent{Type: eventError, Text: "session setup failed"})
		return
	}
	recorder := s.newRecorder()

	sess.OnMetrics(recorder.Handle)
	sess.OnAudioOut(func(pcm []byte) {
		if err := c.writeBinary(audio.ResampleBytes(pcm, s.cfg.SampleRate, c.rate)); err != nil {
			c.logger.Debug("audio write failed", "error", err)
		}
	})
	sess.OnTranscript(func(text string, isFinal bool) {
		c.writeEvent(clientEvent{Type: eventTranscript, Text: text, Final: isFinal})
	})
	sess.OnResponse(func(text string, isFinal bool) {
		c.writeEvent(clientEvent{Type: eventResponse, Text: text, Final: isFinal})
	})
	sess.OnSpeechStart(func() { c.writeEvent(clientEvent{Type: eventSpeechStart}) })
	sess.OnSpeechEnd(func() { c.writeEvent(clientEvent{Type: eventSpeechEnd}) })
	sess.OnError(func(err error) {
		c.writeEvent(clientEvent{Type: eventError, Text: err.Error()})
	})

	ctx, cancel := context.WithCancel(s.baseCtx)
	defer cancel()

	if err := sess.Start(ctx); err != nil {
		c.logger.Error("session start failed", "error", err)
		c.writeEvent(clientEvent{Type: eventError, Text: "session start failed"})
		return
	}
	defer func() {
		if err := sess.Stop(); err != nil {
			c.logger.Error("session stop failed", "error", err)
		}
		// Interrupted turns still leave a (partial) spreadsheet row.
		recorder.Flush()
	}()

	// Unblock the read loop when the gateway shuts down.
	go func() {
		<-ctx.Done()
		c.ws.Close()
	}()

	c.ws.SetReadLimit(readLimit)
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("read failed", "error", err)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if err := sess.SendAudio(audio.ResampleBytes(data, c.rate, s.cfg.SampleRate)); err != nil {
				c.logger.Error("audio dispatch failed", "error", err)
			}
		case websocket.TextMessage:
			s.handleControl(c, sess, data)
		}
	}
}

func (s *Server) handleControl(c *conn, sess *session.Session, data []byte) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Debug("bad control message", "error", err)
		return
	}
	switch msg.Type {
	case controlInterrupt:
		sess.Interrupt()
	default:
		c.logger.Debug("unknown control message", "type", msg.Type)
	}
}

// conn wraps one client websocket with serialized writes.
type conn struct {
	id     string
	ws     *websocket.Conn
	rate   int // client-side PCM16 sample rate
	logger *slog.Logger

	writeMu sync.Mutex
}

func (c *conn) writeBinary(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

func (c *conn) writeEvent(ev clientEvent) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(ev); err != nil {
		c.logger.Debug("event write failed", "type", ev.Type, "error", err)
	}
}
