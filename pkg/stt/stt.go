// Package stt provides a unified interface for streaming speech-to-text
// providers.
//
// Providers accept PCM16 audio over a streaming session and emit interim and
// final transcript events. The bundled Deepgram client streams over
// WebSocket; a Mock is included for tests.
//
// Example usage:
//
//	provider, _ := stt.NewDeepgram(
//	    stt.WithAPIKey(os.Getenv("DEEPGRAM_API_KEY")),
//	    stt.WithModel("nova-2"),
//	)
//	defer provider.Close()
//
//	stream, _ := provider.NewStream(ctx)
//	stream.Send(pcm16Frame)
//	for ev := range stream.Events() {
//	    // ev.Transcript, ev.IsFinal
//	}
package stt

import (
	"context"
	"time"
)

// Provider defines the STT provider interface.
type Provider interface {
	// Name returns the provider identifier (for logging/debugging).
	Name() string

	// NewStream opens a streaming recognition session.
	NewStream(ctx context.Context) (Stream, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Stream is an active streaming recognition session.
type Stream interface {
	// Send pushes a PCM16 audio frame for recognition.
	Send(pcm16 []byte) error

	// Events returns transcript events as they arrive. The channel is
	// closed when the session ends.
	Events() <-chan Event

	// CloseSend signals that no more audio will be sent and asks the
	// provider to flush pending results.
	CloseSend() error

	// Close tears the session down.
	Close() error
}

// Event is a transcription result or error.
type Event struct {
	// Transcript is the recognized text (possibly empty for keepalives).
	Transcript string

	// IsFinal is true for results that will not change.
	IsFinal bool

	// Confidence is the provider's confidence in the result (0.0-1.0).
	Confidence float64

	// AudioDuration is the duration of audio this result covers.
	AudioDuration time.Duration

	// Timestamp is when the result was received.
	Timestamp time.Time

	// Err is set for error events; other fields are zero.
	Err error
}
