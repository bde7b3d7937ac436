package vad

import (
	"encoding/binary"
	"testing"
	"time"
)

// frame builds a PCM16 frame where every sample has the given amplitude.
func frame(amplitude int16, samples int) []byte {
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(amplitude))
	}
	return buf
}

func TestGateActive(t *testing.T) {
	g := NewGate(0.1)

	if g.Active(frame(100, 160)) {
		t.Error("quiet frame should not trip the gate")
	}
	if !g.Active(frame(16384, 160)) {
		t.Error("loud frame should trip the gate")
	}
}

func TestEndpointerSpeechStartAndEnd(t *testing.T) {
	e := NewEndpointer(Config{Threshold: 0.1, MinEndpointingDelay: 500 * time.Millisecond})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ev := e.Process(frame(16384, 160), now)
	if ev == nil || ev.Type != EventSpeechStart {
		t.Fatalf("expected speech start, got %+v", ev)
	}
	if !e.Speaking() {
		t.Error("endpointer should report speaking")
	}

	// Silence shorter than the minimum delay does not end the turn.
	now = now.Add(200 * time.Millisecond)
	if ev := e.Process(frame(0, 160), now); ev != nil {
		t.Errorf("short silence ended the turn: %+v", ev)
	}

	now = now.Add(400 * time.Millisecond)
	ev = e.Process(frame(0, 160), now)
	if ev == nil || ev.Type != EventSpeechEnd {
		t.Fatalf("expected speech end after silence, got %+v", ev)
	}
	if ev.Silence < 500*time.Millisecond {
		t.Errorf("expected silence of at least the minimum delay, got %v", ev.Silence)
	}
	if e.Speaking() {
		t.Error("endpointer should be idle after speech end")
	}
}

func TestEndpointerFlickerResetsSilence(t *testing.T) {
	e := NewEndpointer(Config{Threshold: 0.1, MinEndpointingDelay: 500 * time.Millisecond})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	e.Process(frame(16384, 160), now)

	// 400ms silence, then speech again: no end event.
	now = now.Add(400 * time.Millisecond)
	if ev := e.Process(frame(0, 160), now); ev != nil {
		t.Fatalf("unexpected event during short silence: %+v", ev)
	}
	now = now.Add(20 * time.Millisecond)
	if ev := e.Process(frame(16384, 160), now); ev != nil {
		t.Fatalf("unexpected event on resumed speech: %+v", ev)
	}

	// Another 400ms of silence still is not enough on its own.
	now = now.Add(400 * time.Millisecond)
	if ev := e.Process(frame(0, 160), now); ev != nil {
		t.Fatalf("silence clock was not reset by resumed speech: %+v", ev)
	}
}

func TestEndpointerMaxDelayForcesDecision(t *testing.T) {
	e := NewEndpointer(Config{
		Threshold:           0.1,
		MinEndpointingDelay: 500 * time.Millisecond,
		MaxEndpointingDelay: 2 * time.Second,
	})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	e.Process(frame(16384, 160), now)

	// Alternate silence and speech in bursts shorter than the minimum
	// delay; the max delay must eventually force the end decision.
	var ended bool
	for i := 0; i < 20; i++ {
		now = now.Add(300 * time.Millisecond)
		var ev *Event
		if i%2 == 0 {
			ev = e.Process(frame(0, 160), now)
		} else {
			ev = e.Process(frame(16384, 160), now)
		}
		if ev != nil && ev.Type == EventSpeechEnd {
			ended = true
			break
		}
	}
	if !ended {
		t.Error("max endpointing delay never forced an end decision")
	}
}

func TestEndpointerReset(t *testing.T) {
	e := NewEndpointer(DefaultConfig())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	e.Process(frame(16384, 160), now)
	e.Reset()

	if e.Speaking() {
		t.Error("endpointer should be idle after reset")
	}
}
