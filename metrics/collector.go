// Package metrics provides per-run metrics collection for the pipeline
// engine.
//
// The Collector accumulates counters during a single run. It is a leaf
// package with no internal dependencies. Ingestion policy metrics are
// absorbed from policy.Stats at run completion rather than recorded live,
// avoiding double-counting.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of a run's metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Run lifecycle
	RunsStarted   int64
	RunsCompleted int64
	RunsFailed    int64
	RunsCrashed   int64

	// Node dispatch
	NodesDispatched int64
	NodesSucceeded  int64
	NodesFailed     int64
	NodesPanicked   int64

	// Ingestion (absorbed from policy.Stats at run completion)
	EventsReceived  int64
	EventsPersisted int64
	EventsDropped   int64
	DroppedByType   map[string]int64

	// Dimensions (informational, set at construction)
	Pipeline string
	RunID    string
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	runsStarted   int64
	runsCompleted int64
	runsFailed    int64
	runsCrashed   int64

	nodesDispatched int64
	nodesSucceeded  int64
	nodesFailed     int64
	nodesPanicked   int64

	eventsReceived  int64
	eventsPersisted int64
	eventsDropped   int64
	droppedByType   map[string]int64

	pipeline string
	runID    string
}

// NewCollector creates a Collector labeled with the pipeline name and run ID.
func NewCollector(pipeline, runID string) *Collector {
	return &Collector{
		droppedByType: make(map[string]int64),
		pipeline:      pipeline,
		runID:         runID,
	}
}

// --- Run lifecycle ---

// IncRunStarted records a run start.
func (c *Collector) IncRunStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsStarted++
	c.mu.Unlock()
}

// IncRunCompleted records a successful run completion (terminal code 0).
func (c *Collector) IncRunCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsCompleted++
	c.mu.Unlock()
}

// IncRunFailed records a run whose terminal node returned a non-zero code.
func (c *Collector) IncRunFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsFailed++
	c.mu.Unlock()
}

// IncRunCrashed records a run that terminated via a node panic.
func (c *Collector) IncRunCrashed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsCrashed++
	c.mu.Unlock()
}

// --- Node dispatch ---

// IncNodeDispatched records one node's Do call starting.
func (c *Collector) IncNodeDispatched() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.nodesDispatched++
	c.mu.Unlock()
}

// IncNodeSucceeded records one node returning a zero-code envelope.
func (c *Collector) IncNodeSucceeded() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.nodesSucceeded++
	c.mu.Unlock()
}

// IncNodeFailed records one node returning a non-zero-code envelope.
func (c *Collector) IncNodeFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.nodesFailed++
	c.mu.Unlock()
}

// IncNodePanicked records one node panicking during dispatch.
func (c *Collector) IncNodePanicked() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.nodesPanicked++
	c.mu.Unlock()
}

// --- Ingestion (absorbed from policy.Stats) ---

// AbsorbPolicyStats copies ingestion counters from policy.Stats into the
// collector. Called once after run completion with the final policy stats
// snapshot. droppedByType keys are string-typed to keep this package free
// of a dependency on the types package.
func (c *Collector) AbsorbPolicyStats(totalEvents, persisted, dropped int64, droppedByType map[string]int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.eventsReceived = totalEvents
	c.eventsPersisted = persisted
	c.eventsDropped = dropped
	c.droppedByType = make(map[string]int64, len(droppedByType))
	for k, v := range droppedByType {
		c.droppedByType[k] = v
	}
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics. The
// returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := make(map[string]int64, len(c.droppedByType))
	for k, v := range c.droppedByType {
		dropped[k] = v
	}

	return Snapshot{
		RunsStarted:   c.runsStarted,
		RunsCompleted: c.runsCompleted,
		RunsFailed:    c.runsFailed,
		RunsCrashed:   c.runsCrashed,

		NodesDispatched: c.nodesDispatched,
		NodesSucceeded:  c.nodesSucceeded,
		NodesFailed:     c.nodesFailed,
		NodesPanicked:   c.nodesPanicked,

		EventsReceived:  c.eventsReceived,
		EventsPersisted: c.eventsPersisted,
		EventsDropped:   c.eventsDropped,
		DroppedByType:   dropped,

		Pipeline: c.pipeline,
		RunID:    c.runID,
	}
}
