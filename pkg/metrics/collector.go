package metrics

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Errors returned by the collector.
var (
	// ErrUnknownTurn is returned when no record exists for a turn id.
	ErrUnknownTurn = errors.New("metrics: unknown turn id")

	// ErrIncomplete is returned when a record is missing required fields.
	ErrIncomplete = errors.New("metrics: record incomplete")
)

// Collector accumulates partial metric events by turn id until a record is
// complete. It is goroutine-safe; provider callbacks arrive from multiple
// goroutines. The collector exclusively owns all in-flight records.
//
// Create one collector per session and Flush it at session end.
type Collector struct {
	mu      sync.Mutex
	logger  *slog.Logger
	pending map[string]*TurnRecord
	flushed map[string]struct{}

	now func() time.Time
}

// NewCollector creates an empty collector.
func NewCollector(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		logger:  logger.With("component", "metrics.collector"),
		pending: make(map[string]*TurnRecord),
		flushed: make(map[string]struct{}),
		now:     time.Now,
	}
}

// Record merges a partial event into the record for its turn id, creating
// the record if absent. Events for a turn that was already written are
// dropped with a warning; closed records are never resurrected.
func (c *Collector) Record(ev Event) {
	id := ev.Turn()
	if id == "" {
		c.logger.Warn("metric event missing turn id, skipping", "event", fmt.Sprintf("%T", ev))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, closed := c.flushed[id]; closed {
		c.logger.Warn("metric event for closed turn, dropping", "turn_id", id, "event", fmt.Sprintf("%T", ev))
		return
	}

	rec, ok := c.pending[id]
	if !ok {
		rec = &TurnRecord{TurnID: id}
		c.pending[id] = rec
	}
	rec.merge(ev)
}

// Complete reports whether the record for the turn id has all required
// latency fields populated.
func (c *Collector) Complete(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.pending[id]
	return ok && rec.complete()
}

// TakeComplete removes and returns a completed record, stamping its
// timestamp and total latency. It fails if the turn is unknown or the
// record is still missing required fields. After a successful take, later
// events for the same id are ignored.
func (c *Collector) TakeComplete(id string) (*TurnRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.pending[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTurn, id)
	}
	if !rec.complete() {
		return nil, fmt.Errorf("%w: %s", ErrIncomplete, id)
	}

	delete(c.pending, id)
	c.flushed[id] = struct{}{}
	rec.finalize(c.now())
	return rec, nil
}

// Flush removes and returns all in-flight records, complete or not, stamping
// each one. Partial records keep their missing fields nil and carry no total
// latency. Use this at session end so turns that never completed still leave
// a row behind.
func (c *Collector) Flush() []*TurnRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*TurnRecord, 0, len(c.pending))
	now := c.now()
	for id, rec := range c.pending {
		rec.finalize(now)
		out = append(out, rec)
		delete(c.pending, id)
		c.flushed[id] = struct{}{}
	}
	return out
}

// Pending returns the number of in-flight records.
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
