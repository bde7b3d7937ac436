package vad

import (
	"github.com/klarholt/parley/pkg/audio"
)

// Gate is an RMS energy gate over PCM16 frames.
type Gate struct {
	threshold float64
}

// NewGate creates a gate with the given normalized threshold (0.0-1.0).
func NewGate(threshold float64) *Gate {
	return &Gate{threshold: threshold}
}

// Active reports whether the frame's energy exceeds the gate threshold.
// The frame is little-endian mono PCM16; odd trailing bytes are ignored.
func (g *Gate) Active(pcm16 []byte) bool {
	return audio.RMS(pcm16) >= g.threshold
}
