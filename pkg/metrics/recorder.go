package metrics

import (
	"log/slog"
)

// Recorder ties a Collector to a Writer: partial metric events accumulate in
// the collector, and as soon as a turn's record is complete it is appended to
// the spreadsheet. Write failures are logged and the record dropped; they are
// never propagated back to the session.
type Recorder struct {
	collector *Collector
	writer    Writer
	logger    *slog.Logger
}

// NewRecorder creates a recorder appending completed turns to w.
func NewRecorder(w Writer, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		collector: NewCollector(logger),
		writer:    w,
		logger:    logger.With("component", "metrics"),
	}
}

// Handle merges one metric event and flushes the turn's row once all
// required latency fields are present. Safe for concurrent use.
func (r *Recorder) Handle(ev Event) {
	r.collector.Record(ev)

	id := ev.Turn()
	if !r.collector.Complete(id) {
		return
	}
	rec, err := r.collector.TakeComplete(id)
	if err != nil {
		// Another event for the same turn can win the race to flush.
		return
	}
	r.append(rec)
}

// Flush drains all in-flight partial records to the writer. Call at session
// end so interrupted turns still leave a row.
func (r *Recorder) Flush() {
	for _, rec := range r.collector.Flush() {
		r.append(rec)
	}
}

// Pending reports the number of in-flight partial records.
func (r *Recorder) Pending() int { return r.collector.Pending() }

func (r *Recorder) append(rec *TurnRecord) {
	if err := r.writer.Append(rec); err != nil {
		r.logger.Warn("metrics append failed, dropping record",
			"turn_id", rec.TurnID, "error", err)
	}
}
