// Package tts provides a unified interface for text-to-speech providers.
//
// The bundled provider is Cartesia's low-latency streaming API over
// WebSocket. All providers implement the Provider interface, enabling
// seamless switching without changing caller code; a Mock is included for
// tests.
//
// Example usage:
//
//	provider, _ := tts.NewCartesia(
//	    tts.WithAPIKey(os.Getenv("CARTESIA_API_KEY")),
//	    tts.WithVoice("a0e99841-438c-4a64-b679-ae501e7d6091"),
//	)
//	defer provider.Close()
//
//	stream, _ := provider.Stream(ctx, "Hello world")
//	for {
//	    chunk, err := stream.Read()
//	    // chunk == nil means the stream is complete
//	}
package tts

import (
	"context"
	"time"
)

// Provider defines the TTS provider interface.
type Provider interface {
	// Name returns the provider identifier (for logging/debugging).
	Name() string

	// Synthesize converts text to audio, returning the complete audio buffer.
	// Use this for short text where latency to first byte is less critical.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Stream converts text to audio with streaming output for lowest latency.
	// Audio chunks are returned as they become available.
	Stream(ctx context.Context, text string) (AudioStream, error)

	// Close releases any resources held by the provider.
	Close() error
}

// AudioStream represents a streaming audio response.
// Callers should read until Read returns nil, then call Close.
type AudioStream interface {
	// Read returns the next audio chunk.
	// Returns nil when the stream is complete (not an error).
	Read() ([]byte, error)

	// Close stops the stream and releases resources.
	Close() error

	// Format returns the audio format metadata.
	Format() AudioFormat
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	// Audio contains the raw audio data in the specified format.
	Audio []byte

	// Format describes the audio encoding and sample rate.
	Format AudioFormat

	// Duration is the playback duration of the generated audio.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the time to first byte in milliseconds.
	LatencyMs int64
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	// Encoding specifies the audio codec (e.g., pcm_s16le).
	Encoding string

	// SampleRate in Hz (e.g., 16000, 24000).
	SampleRate int

	// Channels is 1 for mono, 2 for stereo.
	Channels int

	// BitDepth for PCM formats (e.g., 16 for PCM16).
	BitDepth int
}

// PCMDuration returns the playback duration of a PCM buffer in this format.
func (f AudioFormat) PCMDuration(nbytes int) time.Duration {
	bytesPerSecond := f.SampleRate * f.Channels * f.BitDepth / 8
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(float64(nbytes) / float64(bytesPerSecond) * float64(time.Second))
}
