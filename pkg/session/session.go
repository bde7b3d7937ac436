// Package session implements the real-time conversation runtime.
//
// A Session wires streaming STT, LLM, and TTS providers into one voice
// conversation: capture audio goes in, synthesized reply audio comes out,
// and every turn emits partial latency metrics to a registered handler.
//
// The runtime drives the turn loop itself: a local endpointing detector
// decides when the speaker finished, the final transcript is sent to the
// language model, and the streamed reply is synthesized sentence by
// sentence for low first-audio latency. Metric events are delivered on a
// dedicated goroutine so a slow handler (e.g. a spreadsheet append) can
// never stall audio processing.
//
//	sess, _ := session.New(cfg, sttProvider, llmProvider, ttsProvider)
//	sess.OnAudioOut(func(pcm []byte) { speaker.Write(pcm) })
//	sess.OnMetrics(recorder.Handle)
//	sess.Start(ctx)
//	defer sess.Stop()
//
//	for frame := range microphone {
//	    sess.SendAudio(frame)
//	}
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/klarholt/parley/pkg/llm"
	"github.com/klarholt/parley/pkg/metrics"
	"github.com/klarholt/parley/pkg/stt"
	"github.com/klarholt/parley/pkg/tts"
	"github.com/klarholt/parley/pkg/vad"
)

// Common errors returned by the session.
var (
	ErrNotStarted     = errors.New("session: not started")
	ErrAlreadyStarted = errors.New("session: already started")
)

// Session is one live voice conversation.
// Configure callbacks before Start; they are invoked from session
// goroutines.
type Session struct {
	cfg    Config
	logger *slog.Logger

	sttProvider stt.Provider
	llmProvider llm.Provider
	ttsProvider tts.Provider

	// Callbacks
	onAudioOut    func(pcm16 []byte)
	onSpeechStart func()
	onSpeechEnd   func()
	onTranscript  func(text string, isFinal bool)
	onResponse    func(text string, isFinal bool)
	onMetrics     func(ev metrics.Event)
	onError       func(err error)

	ctx    context.Context
	cancel context.CancelFunc

	producers sync.WaitGroup // transcript loop + turn goroutines
	consumers sync.WaitGroup // metrics loop

	endpointer *vad.Endpointer
	sttStream  stt.Stream
	metricsCh  chan metrics.Event

	mu            sync.Mutex
	started       bool
	turnID        string
	speechEnd     time.Time
	eouDelay      time.Duration
	awaitingFinal bool
	pending       []string // final transcript segments of the open turn
	history       []llm.Message
	turnCancel    context.CancelFunc
}

// New creates a session over the given providers.
func New(cfg Config, sttP stt.Provider, llmP llm.Provider, ttsP tts.Provider) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:         cfg,
		logger:      logger.With("component", "session"),
		sttProvider: sttP,
		llmProvider: llmP,
		ttsProvider: ttsP,
	}, nil
}

// OnAudioOut sets the callback for synthesized PCM16 audio.
func (s *Session) OnAudioOut(fn func(pcm16 []byte)) { s.onAudioOut = fn }

// OnSpeechStart is called when the user starts speaking.
func (s *Session) OnSpeechStart(fn func()) { s.onSpeechStart = fn }

// OnSpeechEnd is called when the user stops speaking.
func (s *Session) OnSpeechEnd(fn func()) { s.onSpeechEnd = fn }

// OnTranscript is called with the user's transcribed speech.
func (s *Session) OnTranscript(fn func(text string, isFinal bool)) { s.onTranscript = fn }

// OnResponse is called with the assistant's text response.
func (s *Session) OnResponse(fn func(text string, isFinal bool)) { s.onResponse = fn }

// OnMetrics sets the handler for partial per-turn metric events.
// The handler runs on a dedicated goroutine and may block briefly.
func (s *Session) OnMetrics(fn func(ev metrics.Event)) { s.onMetrics = fn }

// OnError is called when a provider or stream error occurs.
func (s *Session) OnError(fn func(err error)) { s.onError = fn }

// Start opens the recognition stream and begins processing.
// Call after registering callbacks.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.mu.Unlock()

	s.ctx, s.cancel = context.WithCancel(ctx)

	stream, err := s.sttProvider.NewStream(s.ctx)
	if err != nil {
		s.cancel()
		return err
	}

	s.mu.Lock()
	s.sttStream = stream
	s.endpointer = vad.NewEndpointer(s.cfg.Endpointing)
	buffer := s.cfg.MetricsBuffer
	if buffer <= 0 {
		buffer = 64
	}
	s.metricsCh = make(chan metrics.Event, buffer)
	s.started = true
	s.mu.Unlock()

	s.consumers.Add(1)
	go s.metricsLoop()

	s.producers.Add(1)
	go s.transcriptLoop(stream)

	if s.cfg.Greeting != "" {
		turnCtx := s.beginTurn(uuid.NewString())
		s.producers.Add(1)
		go s.respond(turnCtx, s.currentTurn(), "", s.cfg.Greeting)
	}

	s.logger.Info("session started",
		"stt", s.sttProvider.Name(),
		"llm", s.llmProvider.Name(),
		"tts", s.ttsProvider.Name())
	return nil
}

// Stop tears the session down and waits for in-flight work to finish.
// Pending metric events are delivered before Stop returns.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.started = false
	stream := s.sttStream
	s.mu.Unlock()

	s.cancel()
	stream.Close()
	s.producers.Wait()
	close(s.metricsCh)
	s.consumers.Wait()

	s.logger.Info("session stopped")
	return nil
}

// SendAudio feeds one PCM16 capture frame into the session.
func (s *Session) SendAudio(pcm16 []byte) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	stream := s.sttStream
	ev := s.endpointer.Process(pcm16, time.Now())
	s.mu.Unlock()

	if ev != nil {
		switch ev.Type {
		case vad.EventSpeechStart:
			s.handleSpeechStart()
		case vad.EventSpeechEnd:
			s.handleSpeechEnd(ev)
		}
	}

	return stream.Send(pcm16)
}

// Interrupt stops the current assistant response (barge-in).
func (s *Session) Interrupt() {
	s.mu.Lock()
	cancel := s.turnCancel
	s.turnCancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// beginTurn installs a fresh turn id and cancellable turn context.
func (s *Session) beginTurn(id string) context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	turnCtx, cancel := context.WithCancel(s.ctx)
	s.turnID = id
	s.turnCancel = cancel
	return turnCtx
}

func (s *Session) currentTurn() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnID
}

func (s *Session) handleSpeechStart() {
	// User speech during playback interrupts the assistant.
	s.Interrupt()

	s.mu.Lock()
	s.turnID = uuid.NewString()
	s.pending = nil
	s.awaitingFinal = false
	s.mu.Unlock()

	if s.onSpeechStart != nil {
		s.onSpeechStart()
	}
	s.logger.Debug("speech start", "turn_id", s.currentTurn())
}

func (s *Session) handleSpeechEnd(ev *vad.Event) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.speechEnd = ev.Timestamp
	s.eouDelay = ev.Silence
	var launch bool
	var id, text string
	var turnCtx context.Context
	if len(s.pending) > 0 {
		// The final transcript beat the endpoint decision.
		id, text, turnCtx = s.takeTurnLocked(0)
		s.producers.Add(1)
		launch = true
	} else {
		s.awaitingFinal = true
	}
	s.mu.Unlock()

	if s.onSpeechEnd != nil {
		s.onSpeechEnd()
	}
	s.logger.Debug("speech end", "silence", ev.Silence)

	if launch {
		go s.respond(turnCtx, id, text, "")
	}
}

// takeTurnLocked consumes the pending transcript, emits the EOU and STT
// metric events, and prepares the turn context. Caller holds s.mu.
func (s *Session) takeTurnLocked(transcriptionDelay time.Duration) (id, text string, turnCtx context.Context) {
	id = s.turnID
	text = strings.Join(s.pending, " ")
	s.pending = nil
	s.awaitingFinal = false

	turnCtx, cancel := context.WithCancel(s.ctx)
	s.turnCancel = cancel

	s.emitMetric(metrics.EOUMetrics{TurnID: id, EndOfUtteranceDelay: s.eouDelay})
	s.emitMetric(metrics.STTMetrics{TurnID: id, TranscriptionDelay: transcriptionDelay})
	return id, text, turnCtx
}

func (s *Session) transcriptLoop(stream stt.Stream) {
	defer s.producers.Done()

	for ev := range stream.Events() {
		if ev.Err != nil {
			s.emitError(ev.Err)
			continue
		}
		if ev.Transcript == "" {
			continue
		}

		if s.onTranscript != nil {
			s.onTranscript(ev.Transcript, ev.IsFinal)
		}
		if !ev.IsFinal {
			continue
		}

		s.mu.Lock()
		s.pending = append(s.pending, ev.Transcript)
		if !s.awaitingFinal {
			s.mu.Unlock()
			continue
		}

		delay := time.Since(s.speechEnd)
		if delay < 0 {
			delay = 0
		}
		id, text, turnCtx := s.takeTurnLocked(delay)
		s.producers.Add(1)
		s.mu.Unlock()

		go s.respond(turnCtx, id, text, "")
	}
}

// respond runs one assistant turn: stream the LLM reply, synthesize it
// sentence by sentence, and emit LLM and TTS metric events. Exactly one of
// userText and instruction is non-empty; instructions drive generated
// replies like the opening greeting.
func (s *Session) respond(ctx context.Context, turnID, userText, instruction string) {
	defer s.producers.Done()

	req := s.buildRequest(userText, instruction)
	llmStart := time.Now()

	stream, err := s.llmProvider.Stream(ctx, req)
	if err != nil {
		s.emitError(err)
		return
	}
	defer stream.Close()

	var (
		ttft     time.Duration
		usage    *llm.Usage
		full     strings.Builder
		sentence strings.Builder
		agg      ttsAggregate
	)

	for {
		chunk, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Debug("turn interrupted", "turn_id", turnID)
				return
			}
			s.emitError(err)
			return
		}
		if chunk.Done {
			usage = chunk.Usage
			break
		}

		if ttft == 0 {
			ttft = time.Since(llmStart)
		}
		full.WriteString(chunk.Delta)
		sentence.WriteString(chunk.Delta)
		if s.onResponse != nil {
			s.onResponse(chunk.Delta, false)
		}

		ready, rest := splitSentences(sentence.String())
		if len(ready) > 0 {
			sentence.Reset()
			sentence.WriteString(rest)
			for _, text := range ready {
				if !s.speak(ctx, text, &agg) {
					return
				}
			}
		}
	}

	if rest := strings.TrimSpace(sentence.String()); rest != "" {
		if !s.speak(ctx, rest, &agg) {
			return
		}
	}

	if s.onResponse != nil {
		s.onResponse(full.String(), true)
	}

	ev := metrics.LLMMetrics{TurnID: turnID, TTFT: ttft}
	if usage != nil {
		ev.InputTokens = usage.PromptTokens
		ev.OutputTokens = usage.CompletionTokens
	}
	s.emitMetric(ev)

	if agg.requests > 0 {
		s.emitMetric(metrics.TTSMetrics{
			TurnID:        turnID,
			TTFB:          agg.ttfb,
			Duration:      agg.wall,
			AudioDuration: agg.audio,
		})
	}

	s.mu.Lock()
	if userText != "" {
		s.history = append(s.history, llm.Message{Role: llm.RoleUser, Content: userText})
	}
	s.history = append(s.history, llm.Message{Role: llm.RoleAssistant, Content: full.String()})
	if s.turnID == turnID {
		s.turnCancel = nil
	}
	s.mu.Unlock()

	s.logger.Debug("turn complete", "turn_id", turnID, "chars", full.Len())
}

func (s *Session) buildRequest(userText, instruction string) *llm.ChatRequest {
	s.mu.Lock()
	history := append([]llm.Message(nil), s.history...)
	s.mu.Unlock()

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: s.cfg.SystemPrompt})
	messages = append(messages, history...)
	if instruction != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: instruction})
	}
	if userText != "" {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userText})
	}

	return &llm.ChatRequest{Messages: messages, MaxTokens: s.cfg.MaxTokens}
}

// ttsAggregate accumulates synthesis metrics across the sentence chunks of
// one turn.
type ttsAggregate struct {
	requests int
	ttfb     time.Duration // first byte of the turn's first request
	wall     time.Duration
	audio    time.Duration
}

// speak synthesizes one sentence and forwards the audio. Returns false when
// the turn was interrupted.
func (s *Session) speak(ctx context.Context, text string, agg *ttsAggregate) bool {
	start := time.Now()

	stream, err := s.ttsProvider.Stream(ctx, text)
	if err != nil {
		s.emitError(err)
		return true // keep the turn going; metrics stay partial
	}
	defer stream.Close()

	agg.requests++
	first := agg.requests == 1

	var nbytes int
	for {
		if ctx.Err() != nil {
			return false
		}
		chunk, err := stream.Read()
		if err != nil {
			s.emitError(err)
			break
		}
		if chunk == nil {
			break
		}
		if first && agg.ttfb == 0 {
			agg.ttfb = time.Since(start)
		}
		nbytes += len(chunk)
		if s.onAudioOut != nil {
			s.onAudioOut(chunk)
		}
	}

	agg.wall += time.Since(start)
	agg.audio += stream.Format().PCMDuration(nbytes)
	return true
}

func (s *Session) metricsLoop() {
	defer s.consumers.Done()
	for ev := range s.metricsCh {
		if s.onMetrics != nil {
			s.onMetrics(ev)
		}
	}
}

func (s *Session) emitMetric(ev metrics.Event) {
	select {
	case s.metricsCh <- ev:
	default:
		s.logger.Warn("metrics queue full, dropping event", "turn_id", ev.Turn())
	}
}

func (s *Session) emitError(err error) {
	s.logger.Error("session error", "error", err)
	if s.onError != nil {
		s.onError(err)
	}
}

// splitSentences returns the complete sentences in buf and the unfinished
// remainder. A sentence ends at '.', '!' or '?' followed by a space or the
// end of the buffer.
func splitSentences(buf string) (sentences []string, rest string) {
	start := 0
	for i := 0; i < len(buf); i++ {
		switch buf[i] {
		case '.', '!', '?':
			if i+1 < len(buf) && buf[i+1] != ' ' && buf[i+1] != '\n' {
				continue
			}
			s := strings.TrimSpace(buf[start : i+1])
			if s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	return sentences, buf[start:]
}
