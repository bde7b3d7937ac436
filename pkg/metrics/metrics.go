// Package metrics aggregates per-turn latency and usage metrics for voice
// conversations and persists them to a spreadsheet.
//
// Provider stages report partial measurements asynchronously as a turn moves
// through the pipeline (end of utterance, transcription, language model,
// speech synthesis). A Collector merges those fragments by turn id until a
// record is complete, then a Writer appends the finished record as one row
// to an xlsx workbook on disk.
//
// Example usage:
//
//	collector := metrics.NewCollector(slog.Default())
//	writer := metrics.NewXLSXWriter("metrics.xlsx")
//
//	collector.Record(metrics.EOUMetrics{TurnID: id, EndOfUtteranceDelay: d})
//	// ... more events from other stages ...
//
//	if collector.Complete(id) {
//	    rec, _ := collector.TakeComplete(id)
//	    writer.Append(rec)
//	}
package metrics

import (
	"time"
)

// Event is a partial metric report for one conversation turn.
// Events sharing a turn id are merged into a single TurnRecord.
type Event interface {
	// Turn returns the turn id this event belongs to.
	Turn() string
}

// EOUMetrics reports end-of-utterance timing for a turn.
// Emitted when endpointing decides the speaker has finished.
type EOUMetrics struct {
	TurnID string

	// EndOfUtteranceDelay is the time from the last detected speech to the
	// decision that the speaker finished.
	EndOfUtteranceDelay time.Duration
}

// Turn implements Event.
func (m EOUMetrics) Turn() string { return m.TurnID }

// STTMetrics reports transcription timing for a turn.
// Emitted when the final transcript for an utterance is available.
type STTMetrics struct {
	TurnID string

	// TranscriptionDelay is the time from the end of speech to the final
	// transcript being available.
	TranscriptionDelay time.Duration
}

// Turn implements Event.
func (m STTMetrics) Turn() string { return m.TurnID }

// LLMMetrics reports language-model timing and token usage for a turn.
// Emitted when the model's streamed response completes.
type LLMMetrics struct {
	TurnID string

	// TTFT is the time from request dispatch to the first streamed token.
	TTFT time.Duration

	// InputTokens and OutputTokens are the prompt and completion token
	// counts reported by the provider.
	InputTokens  int
	OutputTokens int
}

// Turn implements Event.
func (m LLMMetrics) Turn() string { return m.TurnID }

// TTSMetrics reports speech-synthesis timing for a turn.
// Emitted when synthesis of the reply completes.
type TTSMetrics struct {
	TurnID string

	// TTFB is the time from request dispatch to the first audio byte.
	TTFB time.Duration

	// Duration is the wall time the synthesis request took.
	Duration time.Duration

	// AudioDuration is the playback length of the generated audio.
	AudioDuration time.Duration
}

// Turn implements Event.
func (m TTSMetrics) Turn() string { return m.TurnID }

// TurnRecord aggregates all metrics for one conversation turn.
// Optional fields are nil until the corresponding event arrives; a record
// becomes immutable once taken from the collector. Durations are stored as
// seconds to match the spreadsheet columns.
type TurnRecord struct {
	TurnID    string
	Timestamp time.Time // set when the record is taken or flushed

	EOUDelay           *float64 // seconds
	TranscriptionDelay *float64 // seconds
	TTFT               *float64 // seconds
	LLMInputTokens     *int
	LLMOutputTokens    *int
	TTSTTFB            *float64 // seconds
	TTSDuration        *float64 // seconds
	TTSAudioDuration   *float64 // seconds

	// TotalLatency is eou + transcription + ttft + ttfb, computed when all
	// four are present.
	TotalLatency *float64 // seconds
}

// complete reports whether the four latency fields that define a finished
// turn are all populated.
func (r *TurnRecord) complete() bool {
	return r.EOUDelay != nil && r.TranscriptionDelay != nil &&
		r.TTFT != nil && r.TTSTTFB != nil
}

// finalize stamps the timestamp and computes the total latency if possible.
func (r *TurnRecord) finalize(now time.Time) {
	r.Timestamp = now
	if r.complete() {
		total := *r.EOUDelay + *r.TranscriptionDelay + *r.TTFT + *r.TTSTTFB
		r.TotalLatency = &total
	}
}

// merge applies a partial event to the record. Later events overwrite
// earlier values for the same fields.
func (r *TurnRecord) merge(ev Event) {
	switch m := ev.(type) {
	case EOUMetrics:
		r.EOUDelay = ptrSeconds(m.EndOfUtteranceDelay)
	case STTMetrics:
		r.TranscriptionDelay = ptrSeconds(m.TranscriptionDelay)
	case LLMMetrics:
		r.TTFT = ptrSeconds(m.TTFT)
		r.LLMInputTokens = ptrInt(m.InputTokens)
		r.LLMOutputTokens = ptrInt(m.OutputTokens)
	case TTSMetrics:
		r.TTSTTFB = ptrSeconds(m.TTFB)
		r.TTSDuration = ptrSeconds(m.Duration)
		r.TTSAudioDuration = ptrSeconds(m.AudioDuration)
	}
}

func ptrSeconds(d time.Duration) *float64 {
	s := d.Seconds()
	return &s
}

func ptrInt(n int) *int {
	return &n
}
