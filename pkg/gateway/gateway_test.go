package gateway

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/klarholt/parley/pkg/llm"
	"github.com/klarholt/parley/pkg/metrics"
	"github.com/klarholt/parley/pkg/session"
	"github.com/klarholt/parley/pkg/stt"
	"github.com/klarholt/parley/pkg/tts"
	"github.com/klarholt/parley/pkg/vad"
)

// captureWriter records appended metric rows in memory.
type captureWriter struct {
	mu   sync.Mutex
	rows []*metrics.TurnRecord
}

func (w *captureWriter) Append(rec *metrics.TurnRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows = append(w.rows, rec)
	return nil
}

func (w *captureWriter) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.rows)
}

func pcmFrame(amplitude int16) []byte {
	const samples = 320
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(amplitude))
	}
	return buf
}

func TestGatewayConversation(t *testing.T) {
	sttMock := stt.NewMock()
	llmMock := llm.NewMock("Hello there.")
	ttsMock := tts.NewMock()
	writer := &captureWriter{}

	newSession := func() (*session.Session, error) {
		cfg := session.DefaultConfig().WithGreeting("").WithEndpointing(vad.Config{
			Threshold:           0.01,
			MinEndpointingDelay: 15 * time.Millisecond,
			MaxEndpointingDelay: 500 * time.Millisecond,
		})
		return session.New(cfg, sttMock, llmMock, ttsMock)
	}
	newRecorder := func() *metrics.Recorder {
		return metrics.NewRecorder(writer, slog.Default())
	}

	srv := New(Config{}, newSession, newRecorder)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?connection_id=itest"
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer ws.Close()
	resp.Body.Close()

	if err := ws.WriteMessage(websocket.BinaryMessage, pcmFrame(8000)); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	time.Sleep(25 * time.Millisecond)
	if err := ws.WriteMessage(websocket.BinaryMessage, pcmFrame(0)); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	// The session opens its recognition stream on connect.
	deadline := time.Now().Add(2 * time.Second)
	for len(sttMock.Streams()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("recognition stream never opened")
		}
		time.Sleep(5 * time.Millisecond)
	}
	sttMock.Streams()[0].EmitFinal("How are you?")

	var (
		gotAudio     bool
		gotResponse  string
		gotSpeechEnd bool
	)
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for gotResponse == "" || !gotAudio {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() error = %v (audio=%v response=%q)", err, gotAudio, gotResponse)
		}
		switch msgType {
		case websocket.BinaryMessage:
			gotAudio = true
		case websocket.TextMessage:
			var ev clientEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				t.Fatalf("bad event %q: %v", data, err)
			}
			switch ev.Type {
			case eventSpeechEnd:
				gotSpeechEnd = true
			case eventResponse:
				if ev.Final {
					gotResponse = ev.Text
				}
			case eventError:
				t.Fatalf("error event: %s", ev.Text)
			}
		}
	}

	if gotResponse != "Hello there." {
		t.Errorf("final response = %q, want %q", gotResponse, "Hello there.")
	}
	if !gotSpeechEnd {
		t.Error("speech_end event never delivered")
	}

	// The completed turn lands in the spreadsheet writer.
	deadline = time.Now().Add(2 * time.Second)
	for writer.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no metric row written")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGatewayFlushesPartialsOnDisconnect(t *testing.T) {
	sttMock := stt.NewMock()
	ttsMock := tts.NewMock()
	writer := &captureWriter{}

	// The model never answers, so the turn stays a partial EOU-only record
	// until the client hangs up.
	llmMock := llm.NewMock("")
	llmMock.StreamFunc = func(ctx context.Context, req *llm.ChatRequest) (llm.Stream, error) {
		return &blockedStream{ctx: ctx}, nil
	}

	newSession := func() (*session.Session, error) {
		cfg := session.DefaultConfig().WithGreeting("").WithEndpointing(vad.Config{
			Threshold:           0.01,
			MinEndpointingDelay: 15 * time.Millisecond,
			MaxEndpointingDelay: 500 * time.Millisecond,
		})
		return session.New(cfg, sttMock, llmMock, ttsMock)
	}
	newRecorder := func() *metrics.Recorder {
		return metrics.NewRecorder(writer, slog.Default())
	}

	srv := New(Config{}, newSession, newRecorder)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	resp.Body.Close()

	if err := ws.WriteMessage(websocket.BinaryMessage, pcmFrame(8000)); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	time.Sleep(25 * time.Millisecond)
	if err := ws.WriteMessage(websocket.BinaryMessage, pcmFrame(0)); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(sttMock.Streams()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("recognition stream never opened")
		}
		time.Sleep(5 * time.Millisecond)
	}
	sttMock.Streams()[0].EmitFinal("Never mind.")

	// Let the EOU fragment reach the recorder, then hang up mid-turn.
	time.Sleep(50 * time.Millisecond)
	ws.Close()

	deadline = time.Now().Add(2 * time.Second)
	for writer.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no metric rows after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
	writer.mu.Lock()
	rec := writer.rows[0]
	writer.mu.Unlock()
	if rec.TotalLatency != nil {
		t.Errorf("partial record has TotalLatency %v", *rec.TotalLatency)
	}
	if rec.EOUDelay == nil {
		t.Error("partial record missing EOUDelay")
	}
}

func TestGatewayResamplesClientAudio(t *testing.T) {
	sttMock := stt.NewMock()
	llmMock := llm.NewMock("Hi.")
	ttsMock := tts.NewMock()
	writer := &captureWriter{}

	newSession := func() (*session.Session, error) {
		cfg := session.DefaultConfig().WithGreeting("")
		return session.New(cfg, sttMock, llmMock, ttsMock)
	}
	newRecorder := func() *metrics.Recorder {
		return metrics.NewRecorder(writer, slog.Default())
	}

	srv := New(Config{SampleRate: 16000}, newSession, newRecorder)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	// The client captures at 32kHz; the session expects 16kHz.
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?sample_rate=32000"
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer ws.Close()
	resp.Body.Close()

	// 20ms at 32kHz is 640 samples; at 16kHz it is 320 samples (640 bytes).
	frame := make([]byte, 640*2)
	if err := ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		streams := sttMock.Streams()
		if len(streams) > 0 && len(streams[0].Sent()) > 0 {
			if got := len(streams[0].Sent()[0]); got != 640 {
				t.Errorf("forwarded frame is %d bytes, want 640", got)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("audio never reached the recognition stream")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// blockedStream blocks until its context is cancelled.
type blockedStream struct {
	ctx context.Context
}

func (s *blockedStream) Recv() (*llm.StreamChunk, error) {
	<-s.ctx.Done()
	return nil, s.ctx.Err()
}

func (s *blockedStream) Close() error { return nil }
