package sleep

import (
	"context"
	"testing"
	"time"

	"github.com/senatoreg/pyfreeflow/envelope"
	"github.com/senatoreg/pyfreeflow/registry"
)

func TestOperatorPassesInputThrough(t *testing.T) {
	o := &Operator{min: 0, max: 0}
	o.base.Impl = o
	o.base.MaxTasks = 1

	_, out := o.Run(context.Background(), envelope.State{}, envelope.SingleInput(envelope.New("x")))
	e := out.(envelope.Envelope)
	if e.Value != "x" || !e.OK() {
		t.Fatalf("unexpected envelope: %#v", e)
	}
}

func TestOperatorRespectsContextCancellation(t *testing.T) {
	o := &Operator{min: time.Hour, max: time.Hour}
	o.base.Impl = o
	o.base.MaxTasks = 1

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, out := o.Run(ctx, envelope.State{}, envelope.SingleInput(envelope.New("x")))
	e := out.(envelope.Envelope)
	if e.Code != envelope.CodeTimeout {
		t.Fatalf("expected timeout code, got %#v", e)
	}
}

func TestRegisterBothTypes(t *testing.T) {
	r := registry.New()
	Register(r)

	if _, err := r.Get(SleepTypeName, Version); err != nil {
		t.Fatalf("Get %s: %v", SleepTypeName, err)
	}
	if _, err := r.Get(RandomSleepTypeName, Version); err != nil {
		t.Fatalf("Get %s: %v", RandomSleepTypeName, err)
	}
}
