package operator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/senatoreg/pyfreeflow/envelope"
)

type echoOp struct {
	inflight  atomic.Int64
	maxSeen   atomic.Int64
	sleepFunc func()
}

func (e *echoOp) Do(ctx context.Context, state envelope.State, value any) (envelope.State, envelope.Envelope) {
	n := e.inflight.Add(1)
	for {
		cur := e.maxSeen.Load()
		if n <= cur || e.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	if e.sleepFunc != nil {
		e.sleepFunc()
	}
	e.inflight.Add(-1)
	return state, envelope.New(value)
}

func TestUnpackSingleEnvelopeSuccess(t *testing.T) {
	op := &echoOp{}
	_, out := Unpack(context.Background(), op, 4, envelope.State{}, envelope.SingleInput(envelope.New("x")))
	e, ok := out.(envelope.Envelope)
	if !ok {
		t.Fatalf("expected Envelope, got %T", out)
	}
	if e.Value != "x" || !e.OK() {
		t.Fatalf("unexpected envelope: %#v", e)
	}
}

func TestUnpackSingleEnvelopeFailureForwarded(t *testing.T) {
	op := &echoOp{}
	in := envelope.Fail(envelope.CodeTargetFailure)
	_, out := Unpack(context.Background(), op, 4, envelope.State{}, envelope.SingleInput(in))
	e := out.(envelope.Envelope)
	if e.Code != envelope.CodeTargetFailure {
		t.Fatalf("expected forwarded failure code, got %#v", e)
	}
}

func TestUnpackFaninPreservesOrderAndDropsFailures(t *testing.T) {
	op := &echoOp{}
	fanin := []envelope.Envelope{
		envelope.New("a"),
		envelope.Fail(envelope.CodeBadInput),
		envelope.New("c"),
	}
	_, out := Unpack(context.Background(), op, 4, envelope.State{}, envelope.FaninInput(fanin))
	results := out.([]envelope.Envelope)
	if len(results) != 2 {
		t.Fatalf("expected 2 results (failed entry dropped, not padded), got %d: %#v", len(results), results)
	}
	if results[0].Value != "a" || results[1].Value != "c" {
		t.Fatalf("unexpected order: %#v", results)
	}
}

func TestUnpackEnforcesMaxTasksBound(t *testing.T) {
	op := &echoOp{sleepFunc: func() { time.Sleep(20 * time.Millisecond) }}
	fanin := make([]envelope.Envelope, 10)
	for i := range fanin {
		fanin[i] = envelope.New(i)
	}
	Unpack(context.Background(), op, 3, envelope.State{}, envelope.FaninInput(fanin))
	if op.maxSeen.Load() > 3 {
		t.Fatalf("expected at most 3 concurrent sub-tasks, saw %d", op.maxSeen.Load())
	}
}

func TestUnpackAllErrorFaninReturnsEmptyList(t *testing.T) {
	op := &echoOp{}
	fanin := []envelope.Envelope{
		envelope.Fail(envelope.CodeBadInput),
		envelope.Fail(envelope.CodeTargetFailure),
	}
	_, out := Unpack(context.Background(), op, 4, envelope.State{}, envelope.FaninInput(fanin))
	results := out.([]envelope.Envelope)
	if len(results) != 0 {
		t.Fatalf("expected empty result list for all-error fan-in, got %#v", results)
	}
}
