package vad

import (
	"time"
)

// Endpointer converts per-frame gate decisions into speech start/end events.
//
// An utterance ends when silence lasts at least MinEndpointingDelay. If the
// gate keeps flickering after silence was first observed, the decision is
// forced once MaxEndpointingDelay has elapsed since that first silence.
//
// Endpointer is not goroutine-safe; feed it from a single audio loop.
type Endpointer struct {
	cfg  Config
	gate *Gate

	speaking     bool
	lastSpeech   time.Time
	silenceStart time.Time // first silence after speech; zero while speaking
}

// NewEndpointer creates an endpointer with the given configuration.
// Zero-valued fields fall back to defaults.
func NewEndpointer(cfg Config) *Endpointer {
	def := DefaultConfig()
	if cfg.Threshold == 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.MinEndpointingDelay == 0 {
		cfg.MinEndpointingDelay = def.MinEndpointingDelay
	}
	if cfg.MaxEndpointingDelay == 0 {
		cfg.MaxEndpointingDelay = def.MaxEndpointingDelay
	}
	return &Endpointer{
		cfg:  cfg,
		gate: NewGate(cfg.Threshold),
	}
}

// Speaking reports whether an utterance is in progress.
func (e *Endpointer) Speaking() bool { return e.speaking }

// Process consumes one PCM16 frame observed at now and returns a boundary
// event, or nil when no boundary was crossed.
func (e *Endpointer) Process(pcm16 []byte, now time.Time) *Event {
	active := e.gate.Active(pcm16)

	if !e.speaking {
		if !active {
			return nil
		}
		e.speaking = true
		e.lastSpeech = now
		e.silenceStart = time.Time{}
		return &Event{Type: EventSpeechStart, Timestamp: now}
	}

	if active {
		e.lastSpeech = now
		// Flickering speech resets the minimum-silence clock but not the
		// forced-decision clock.
		if !e.silenceStart.IsZero() && now.Sub(e.silenceStart) >= e.cfg.MaxEndpointingDelay {
			return e.endTurn(now)
		}
		return nil
	}

	if e.silenceStart.IsZero() {
		e.silenceStart = now
	}
	if now.Sub(e.lastSpeech) >= e.cfg.MinEndpointingDelay {
		return e.endTurn(now)
	}
	if now.Sub(e.silenceStart) >= e.cfg.MaxEndpointingDelay {
		return e.endTurn(now)
	}
	return nil
}

// Reset clears endpointer state, abandoning any in-progress utterance.
func (e *Endpointer) Reset() {
	e.speaking = false
	e.silenceStart = time.Time{}
}

func (e *Endpointer) endTurn(now time.Time) *Event {
	silence := now.Sub(e.lastSpeech)
	if silence < 0 {
		silence = 0
	}
	e.speaking = false
	e.silenceStart = time.Time{}
	return &Event{Type: EventSpeechEnd, Timestamp: now, Silence: silence}
}
