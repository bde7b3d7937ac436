package session

import (
	"errors"
	"log/slog"

	"github.com/klarholt/parley/pkg/vad"
)

// Config holds all tunable parameters for a conversation session.
type Config struct {
	// SystemPrompt is the standing instruction for the assistant.
	SystemPrompt string

	// Greeting, when non-empty, is an instruction for an opening reply
	// generated as soon as the session starts.
	Greeting string

	// InputSampleRate is the capture sample rate in Hz.
	InputSampleRate int

	// Endpointing configures the local VAD gate and turn boundaries.
	Endpointing vad.Config

	// MaxTokens limits each reply's length. Zero means provider default.
	MaxTokens int

	// MetricsBuffer is the capacity of the metric event queue between the
	// session and its metrics handler.
	MetricsBuffer int

	// Logger is the structured logger for the session.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SystemPrompt:    "You are a helpful voice assistant. Use short, polite, and clear answers.",
		Greeting:        "Greet the user and ask how you can help today.",
		InputSampleRate: 16000,
		Endpointing:     vad.DefaultConfig(),
		MetricsBuffer:   64,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.InputSampleRate <= 0 {
		return errors.New("session: input sample rate must be positive")
	}
	if c.Endpointing.Threshold < 0 || c.Endpointing.Threshold > 1 {
		return errors.New("session: VAD threshold must be between 0 and 1")
	}
	return nil
}

// WithSystemPrompt returns a copy with the system prompt set.
func (c Config) WithSystemPrompt(prompt string) Config {
	c.SystemPrompt = prompt
	return c
}

// WithGreeting returns a copy with the greeting instruction set.
func (c Config) WithGreeting(greeting string) Config {
	c.Greeting = greeting
	return c
}

// WithEndpointing returns a copy with endpointing parameters set.
func (c Config) WithEndpointing(cfg vad.Config) Config {
	c.Endpointing = cfg
	return c
}
