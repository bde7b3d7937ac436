package metrics

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// captureWriter records appended rows in memory.
type captureWriter struct {
	mu   sync.Mutex
	rows []*TurnRecord
	err  error
}

func (w *captureWriter) Append(rec *TurnRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.rows = append(w.rows, rec)
	return nil
}

func (w *captureWriter) Rows() []*TurnRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*TurnRecord(nil), w.rows...)
}

func TestRecorderAppendsOnCompletion(t *testing.T) {
	w := &captureWriter{}
	r := NewRecorder(w, slog.Default())

	r.Handle(EOUMetrics{TurnID: "t1", EndOfUtteranceDelay: 300 * time.Millisecond})
	r.Handle(STTMetrics{TurnID: "t1", TranscriptionDelay: 100 * time.Millisecond})
	if got := len(w.Rows()); got != 0 {
		t.Fatalf("rows after partial events = %d, want 0", got)
	}

	r.Handle(LLMMetrics{TurnID: "t1", TTFT: 500 * time.Millisecond, InputTokens: 10, OutputTokens: 20})
	r.Handle(TTSMetrics{TurnID: "t1", TTFB: 200 * time.Millisecond, Duration: time.Second, AudioDuration: 2 * time.Second})

	rows := w.Rows()
	if len(rows) != 1 {
		t.Fatalf("rows after completion = %d, want 1", len(rows))
	}
	rec := rows[0]
	if rec.TurnID != "t1" {
		t.Errorf("TurnID = %q, want t1", rec.TurnID)
	}
	if rec.TotalLatency == nil || *rec.TotalLatency != 1.1 {
		t.Errorf("TotalLatency = %v, want 1.1", rec.TotalLatency)
	}
	if r.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", r.Pending())
	}
}

func TestRecorderWriteFailureDropsRecord(t *testing.T) {
	w := &captureWriter{err: errors.New("disk full")}
	r := NewRecorder(w, slog.Default())

	r.Handle(EOUMetrics{TurnID: "t1", EndOfUtteranceDelay: time.Millisecond})
	r.Handle(STTMetrics{TurnID: "t1", TranscriptionDelay: time.Millisecond})
	r.Handle(LLMMetrics{TurnID: "t1", TTFT: time.Millisecond})
	r.Handle(TTSMetrics{TurnID: "t1", TTFB: time.Millisecond})

	if got := len(w.Rows()); got != 0 {
		t.Fatalf("rows = %d, want 0", got)
	}
	// The record was taken regardless; a late retry would resurrect it.
	if r.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", r.Pending())
	}
}

func TestRecorderFlushWritesPartials(t *testing.T) {
	w := &captureWriter{}
	r := NewRecorder(w, slog.Default())

	r.Handle(EOUMetrics{TurnID: "t1", EndOfUtteranceDelay: 300 * time.Millisecond})
	r.Handle(LLMMetrics{TurnID: "t2", TTFT: 250 * time.Millisecond})

	r.Flush()

	rows := w.Rows()
	if len(rows) != 2 {
		t.Fatalf("rows after flush = %d, want 2", len(rows))
	}
	for _, rec := range rows {
		if rec.TotalLatency != nil {
			t.Errorf("turn %s: partial record has TotalLatency %v", rec.TurnID, *rec.TotalLatency)
		}
		if rec.Timestamp.IsZero() {
			t.Errorf("turn %s: flushed record missing timestamp", rec.TurnID)
		}
	}
}
