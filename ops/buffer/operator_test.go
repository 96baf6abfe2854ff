package buffer

import (
	"context"
	"testing"

	"github.com/senatoreg/pyfreeflow/envelope"
)

func newOp(c codec) *Operator {
	o := &Operator{codec: c}
	o.base.Impl = o
	o.base.MaxTasks = 1
	return o
}

func TestJsonWriteThenRead(t *testing.T) {
	o := newOp(jsonCodec{})

	_, out := o.Run(context.Background(), envelope.State{}, envelope.SingleInput(envelope.New(map[string]any{
		"op": "write", "data": map[string]any{"a": float64(1)},
	})))
	encoded := out.(envelope.Envelope)
	if !encoded.OK() {
		t.Fatalf("write failed: %#v", encoded)
	}

	_, out2 := o.Run(context.Background(), envelope.State{}, envelope.SingleInput(envelope.New(map[string]any{
		"op": "read", "data": encoded.Value,
	})))
	decoded := out2.(envelope.Envelope)
	if !decoded.OK() {
		t.Fatalf("read failed: %#v", decoded)
	}
	m := decoded.Value.(map[string]any)
	if m["a"] != float64(1) {
		t.Fatalf("round-trip mismatch: %#v", m)
	}
}

func TestYamlReadFailureReturns102(t *testing.T) {
	o := newOp(yamlCodec{})
	_, out := o.Run(context.Background(), envelope.State{}, envelope.SingleInput(envelope.New(map[string]any{
		"op": "read", "data": "a: [unterminated",
	})))
	e := out.(envelope.Envelope)
	if e.Code != envelope.CodeTargetFailure {
		t.Fatalf("expected code 102, got %#v", e)
	}
}

func TestBadInputTypeReturns101(t *testing.T) {
	o := newOp(jsonCodec{})
	_, out := o.Run(context.Background(), envelope.State{}, envelope.SingleInput(envelope.New("not a map")))
	e := out.(envelope.Envelope)
	if e.Code != envelope.CodeBadInput {
		t.Fatalf("expected code 101, got %#v", e)
	}
}

func TestAnyCodecWriteRejectsNonString(t *testing.T) {
	o := newOp(anyCodec{})
	_, out := o.Run(context.Background(), envelope.State{}, envelope.SingleInput(envelope.New(map[string]any{
		"op": "write", "data": 42,
	})))
	e := out.(envelope.Envelope)
	if e.Code != envelope.CodeBadPayload {
		t.Fatalf("expected code 103, got %#v", e)
	}
}
