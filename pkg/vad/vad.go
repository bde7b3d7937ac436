// Package vad provides local voice-activity gating and endpointing for the
// conversation session.
//
// The package deliberately stays at configuration-level logic: an RMS energy
// gate decides whether a PCM16 frame carries speech, and an Endpointer turns
// those per-frame decisions into speech start/end events using silence
// duration. Model-based detection remains the job of hosted providers.
package vad

import (
	"time"
)

// EventType identifies an endpointing event.
type EventType int

const (
	// EventSpeechStart fires on the first active frame of an utterance.
	EventSpeechStart EventType = iota

	// EventSpeechEnd fires when endpointing decides the speaker finished.
	EventSpeechEnd
)

// Event is a speech boundary decision.
type Event struct {
	Type      EventType
	Timestamp time.Time

	// Silence is the silence duration that triggered an end decision.
	// Zero for start events.
	Silence time.Duration
}

// Default endpointing parameters.
const (
	DefaultThreshold           = 0.015
	DefaultMinEndpointingDelay = 500 * time.Millisecond
	DefaultMaxEndpointingDelay = 5 * time.Second
)

// Config holds endpointing parameters.
type Config struct {
	// Threshold is the normalized RMS level (0.0-1.0) above which a frame
	// counts as speech.
	Threshold float64

	// MinEndpointingDelay is the silence required before declaring the end
	// of an utterance.
	MinEndpointingDelay time.Duration

	// MaxEndpointingDelay bounds how long an end decision can be deferred
	// once silence was first observed, even if the gate keeps flickering.
	MaxEndpointingDelay time.Duration
}

// DefaultConfig returns sensible endpointing defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:           DefaultThreshold,
		MinEndpointingDelay: DefaultMinEndpointingDelay,
		MaxEndpointingDelay: DefaultMaxEndpointingDelay,
	}
}
