// Package operator defines the uniform operator contract every node type
// implements, and the default Unpack adapter that bridges single-envelope
// and fan-in list inputs.
package operator

import (
	"context"
	"sync"

	"github.com/senatoreg/pyfreeflow/envelope"
)

// Operator is the interface every node type implements.
//
// Do performs the operator's unit of work against a single input payload.
// Run is the uniform entry point the scheduler calls; most operators get
// it for free by embedding Base, which implements Run in terms of Do via
// Unpack. Operators with non-uniform fan-in semantics (the data transformer)
// override Run directly.
type Operator interface {
	Do(ctx context.Context, state envelope.State, value any) (envelope.State, envelope.Envelope)
	Run(ctx context.Context, state envelope.State, input envelope.Input) (envelope.State, any)
}

// Doer is the minimal shape Base needs from an embedding operator.
type Doer interface {
	Do(ctx context.Context, state envelope.State, value any) (envelope.State, envelope.Envelope)
}

// Base provides the default Run implementation (delegating to Unpack) for
// any operator that embeds it and supplies a Do method.
//
// Impl must be set to the embedding operator itself (Go has no implicit
// virtual dispatch through embedding), typically in the factory:
//
//	op := &HttpOperator{}
//	op.Base = operator.Base{Impl: op, MaxTasks: cfg.MaxTasks}
//
// MaxTasks bounds the number of concurrent Do sub-tasks Unpack runs for a
// fan-in input; zero or negative falls back to 1 (fully serial).
type Base struct {
	Impl     Doer
	MaxTasks int
}

// Run delegates to Unpack using Impl as the Doer. Operators that need
// non-default fan-in semantics (the data transformer) implement Run
// themselves instead of embedding Base.
func (b *Base) Run(ctx context.Context, state envelope.State, input envelope.Input) (envelope.State, any) {
	return Unpack(ctx, b.Impl, b.maxTasks(), state, input)
}

func (b *Base) maxTasks() int {
	if b.MaxTasks <= 0 {
		return 1
	}
	return b.MaxTasks
}

// Unpack implements the uniform fan-in/fan-out adapter:
//
//   - A single envelope with Code == 0 is passed straight to Do; a
//     non-zero-code single envelope is forwarded unchanged.
//   - A fan-in list schedules one Do sub-task per zero-code entry, bounded
//     to maxTasks concurrently in flight, and collects results in the
//     original predecessor order. Entries with a nonzero code are dropped
//     from scheduling entirely, so an all-error fan-in yields an empty
//     result list rather than placeholder envelopes.
//
// State updates returned by concurrently-running sub-tasks are merged
// sequentially, in completion order, onto the state handed back to the
// scheduler — never concurrently.
func Unpack(ctx context.Context, d Doer, maxTasks int, state envelope.State, input envelope.Input) (envelope.State, any) {
	if !input.IsFanin() {
		in := input.Single
		if in == nil || !in.OK() {
			if in == nil {
				return state, envelope.Fail(envelope.CodeBadInput)
			}
			return state, *in
		}
		newState, out := d.Do(ctx, state, in.Value)
		return newState, out
	}

	fanin := input.Fanin

	values := make([]any, 0, len(fanin))
	for _, e := range fanin {
		if e.OK() {
			values = append(values, e.Value)
		}
	}

	if len(values) == 0 {
		return state, []envelope.Envelope{}
	}

	results := make([]envelope.Envelope, len(values))

	sem := make(chan struct{}, maxTasks)
	var wg sync.WaitGroup
	var mu sync.Mutex
	merged := state

	for pos, v := range values {
		pos, v := pos, v
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			// Each sub-task reads the state as it stood at dispatch time
			// and the merge below folds its result back in sequentially,
			// never concurrently with another sub-task's merge.
			mu.Lock()
			snapshot := merged
			mu.Unlock()

			newState, out := d.Do(ctx, snapshot, v)

			mu.Lock()
			if m, err := merged.Merge(newState, true); err == nil {
				merged = m
			}
			results[pos] = out
			mu.Unlock()
		}()
	}
	wg.Wait()

	return merged, results
}
