// Package telemetry adapts the engine's ingestion policy, metrics
// collector, and event-bus adapters into a single run-completion
// reporting layer: one event per pipeline.Run, delivered through a
// configurable Policy and, optionally, an Adapter.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/senatoreg/pyfreeflow/adapter"
	"github.com/senatoreg/pyfreeflow/metrics"
	"github.com/senatoreg/pyfreeflow/policy"
	"github.com/senatoreg/pyfreeflow/types"
)

// Sink reports one run_complete or run_error event per pipeline run. The
// event passes through a Policy for stats bookkeeping (and the chance to
// reject it, following the same droppable/non-droppable distinction the
// policy package enforces elsewhere), then an optional Adapter publishes
// a RunCompletedEvent downstream.
type Sink struct {
	pipeline string
	policy   policy.Policy
	adapter  adapter.Adapter
	metrics  *metrics.Collector

	seq int64
}

// NewSink builds a Sink for pipeline, publishing through pub (nil disables
// downstream delivery; stats are still collected) and bookkeeping events
// through pol (nil defaults to policy.NewNoopPolicy()).
func NewSink(pipeline string, pub adapter.Adapter, pol policy.Policy) *Sink {
	if pol == nil {
		pol = policy.NewNoopPolicy()
	}
	return &Sink{
		pipeline: pipeline,
		policy:   pol,
		adapter:  pub,
		metrics:  metrics.NewCollector(pipeline, ""),
	}
}

// ReportRun builds a run_complete (terminalCode == 0) or run_error event for
// one completed run and pushes it through the configured policy and
// adapter. Errors from the policy or adapter are returned but never alter
// the caller's already-computed pipeline result — telemetry is advisory.
func (s *Sink) ReportRun(ctx context.Context, meta types.RunMeta, terminalCode int, nodesExecuted int, duration time.Duration, crashed bool) error {
	s.seq++
	s.metrics.IncRunStarted()

	eventType := types.EventTypeRunComplete
	payload := map[string]any{
		"terminal_code":  terminalCode,
		"nodes_executed": nodesExecuted,
		"duration_ms":    duration.Milliseconds(),
	}
	outcome := string(types.OutcomeSuccess)
	switch {
	case crashed:
		eventType = types.EventTypeRunError
		outcome = string(types.OutcomeEngineCrash)
		s.metrics.IncRunCrashed()
	case terminalCode != 0:
		eventType = types.EventTypeRunError
		outcome = string(types.OutcomeNodeError)
		s.metrics.IncRunFailed()
	default:
		s.metrics.IncRunCompleted()
	}

	env := &types.EventEnvelope{
		ContractVersion: types.ContractVersion,
		EventID:         fmt.Sprintf("%s-%d", meta.RunID, s.seq),
		RunID:           meta.RunID,
		Seq:             s.seq,
		Type:            eventType,
		Ts:              time.Now().UTC().Format(time.RFC3339Nano),
		Payload:         payload,
		JobID:           meta.JobID,
		ParentRunID:     meta.ParentRunID,
		Attempt:         meta.Attempt,
	}

	if err := s.policy.IngestEvent(ctx, env); err != nil {
		return fmt.Errorf("telemetry: policy rejected event: %w", err)
	}
	if err := s.policy.Flush(ctx); err != nil {
		return fmt.Errorf("telemetry: policy flush: %w", err)
	}

	if s.adapter == nil {
		return nil
	}

	jobID := s.pipeline
	if meta.JobID != nil {
		jobID = *meta.JobID
	}
	event := &adapter.RunCompletedEvent{
		ContractVersion: types.ContractVersion,
		EventType:       "run_completed",
		RunID:           meta.RunID,
		Source:          "pyfreeflow",
		Category:        s.pipeline,
		Day:             time.Now().UTC().Format("2006-01-02"),
		Outcome:         outcome,
		Timestamp:       env.Ts,
		JobID:           jobID,
		Attempt:         meta.Attempt,
		EventCount:      1,
		DurationMs:      duration.Milliseconds(),
	}
	if err := s.adapter.Publish(ctx, event); err != nil {
		return fmt.Errorf("telemetry: publish: %w", err)
	}
	return nil
}

// Stats returns the underlying policy's observability snapshot.
func (s *Sink) Stats() policy.Stats {
	return s.policy.Stats()
}

// Snapshot absorbs the policy's stats into the metrics collector and
// returns the combined point-in-time view.
func (s *Sink) Snapshot() metrics.Snapshot {
	st := s.policy.Stats()
	dropped := make(map[string]int64, len(st.DroppedByType))
	for k, v := range st.DroppedByType {
		dropped[string(k)] = v
	}
	s.metrics.AbsorbPolicyStats(st.TotalEvents, st.EventsPersisted, st.EventsDropped, dropped)
	return s.metrics.Snapshot()
}

// Close releases the policy and adapter.
func (s *Sink) Close() error {
	err := s.policy.Close()
	if s.adapter != nil {
		if aerr := s.adapter.Close(); aerr != nil && err == nil {
			err = aerr
		}
	}
	return err
}
