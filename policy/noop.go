package policy

import (
	"context"

	"github.com/senatoreg/pyfreeflow/types"
)

// NoopPolicy accepts every event but persists nothing. Droppable events
// are counted as dropped; everything else is counted as persisted, even
// though nothing is actually written anywhere.
type NoopPolicy struct {
	stats *statsRecorder
}

// NewNoopPolicy creates a new no-op policy.
func NewNoopPolicy() *NoopPolicy {
	return &NoopPolicy{stats: newStatsRecorder()}
}

// IngestEvent accepts the event but does not persist it.
func (p *NoopPolicy) IngestEvent(_ context.Context, envelope *types.EventEnvelope) error {
	p.stats.incTotalEvents()
	if IsDroppable(envelope.Type) {
		p.stats.incEventsDropped(envelope.Type)
	} else {
		p.stats.incEventsPersisted()
	}
	return nil
}

// Flush is a no-op.
func (p *NoopPolicy) Flush(_ context.Context) error {
	p.stats.incFlush()
	return nil
}

// Close is a no-op.
func (p *NoopPolicy) Close() error { return nil }

// Stats returns the policy statistics.
func (p *NoopPolicy) Stats() Stats {
	return p.stats.snapshot()
}

var _ Policy = (*NoopPolicy)(nil)
