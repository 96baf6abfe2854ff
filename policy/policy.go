// Package policy defines the telemetry ingestion policy interface: how a
// pipeline run's node-lifecycle events are accepted, buffered, or dropped
// on their way to a Sink.
package policy

import (
	"context"
	"sync"

	"github.com/senatoreg/pyfreeflow/types"
)

// Policy controls buffering, dropping, and delivery of a run's telemetry
// events.
//
//   - May drop: node_log
//   - Must NOT drop: node_result, checkpoint, run_error, run_complete
//   - Policy must not alter event shapes
type Policy interface {
	// IngestEvent handles an event envelope. May drop node_log events;
	// must not drop the rest.
	IngestEvent(ctx context.Context, envelope *types.EventEnvelope) error

	// Flush flushes any buffered data. Called on run_complete, run_error,
	// or pipeline termination.
	Flush(ctx context.Context) error

	// Close cleans up policy resources.
	Close() error

	// Stats returns an atomic snapshot of policy statistics.
	Stats() Stats
}

// Stats represents policy observability metrics.
type Stats struct {
	// TotalEvents is the total number of events received.
	TotalEvents int64
	// EventsPersisted is the number of events persisted.
	EventsPersisted int64
	// EventsDropped is the total number of events dropped.
	EventsDropped int64
	// DroppedByType maps event types to drop counts.
	DroppedByType map[types.EventType]int64
	// FlushCount is the number of flush operations.
	FlushCount int64
	// Errors is the count of non-fatal errors encountered.
	Errors int64
}

// droppableTypes defines which event types may be dropped by policy.
var droppableTypes = map[types.EventType]bool{
	types.EventTypeNodeLog: true,
}

// IsDroppable returns true if the event type may be dropped by policy.
func IsDroppable(eventType types.EventType) bool {
	return droppableTypes[eventType]
}

// statsRecorder is a thread-safe holder for Stats, shared by every
// Policy implementation in this package.
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{
		stats: Stats{DroppedByType: make(map[types.EventType]int64)},
	}
}

func (r *statsRecorder) incTotalEvents() {
	r.mu.Lock()
	r.stats.TotalEvents++
	r.mu.Unlock()
}

func (r *statsRecorder) incEventsPersisted() {
	r.mu.Lock()
	r.stats.EventsPersisted++
	r.mu.Unlock()
}

func (r *statsRecorder) incEventsDropped(eventType types.EventType) {
	r.mu.Lock()
	r.stats.EventsDropped++
	r.stats.DroppedByType[eventType]++
	r.mu.Unlock()
}

func (r *statsRecorder) incErrors() {
	r.mu.Lock()
	r.stats.Errors++
	r.mu.Unlock()
}

func (r *statsRecorder) incFlush() {
	r.mu.Lock()
	r.stats.FlushCount++
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.stats
	s.DroppedByType = make(map[types.EventType]int64, len(r.stats.DroppedByType))
	for k, v := range r.stats.DroppedByType {
		s.DroppedByType[k] = v
	}
	return s
}
