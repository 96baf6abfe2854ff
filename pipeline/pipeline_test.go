package pipeline

import (
	"context"
	"testing"

	"github.com/senatoreg/pyfreeflow/envelope"
	"github.com/senatoreg/pyfreeflow/operator"
	"github.com/senatoreg/pyfreeflow/registry"
	"github.com/senatoreg/pyfreeflow/telemetry"
)

// echoOperator returns its input value unchanged, tagging state with its
// own node name so tests can assert merge order/visibility.
type echoOperator struct {
	base operator.Base
	name string
}

func newEchoOperator(name string, maxTasks int) *echoOperator {
	e := &echoOperator{name: name}
	e.base = operator.Base{Impl: e, MaxTasks: maxTasks}
	return e
}

func (e *echoOperator) Do(ctx context.Context, state envelope.State, value any) (envelope.State, envelope.Envelope) {
	next, _ := state.Merge(envelope.State{e.name: true}, true)
	return next, envelope.New(value)
}

func (e *echoOperator) Run(ctx context.Context, state envelope.State, input envelope.Input) (envelope.State, any) {
	return e.base.Run(ctx, state, input)
}

// concatOperator concatenates the string values of a fan-in list, or
// passes through a single value.
type concatOperator struct {
	base operator.Base
}

func newConcatOperator() *concatOperator {
	c := &concatOperator{}
	c.base = operator.Base{Impl: c, MaxTasks: 4}
	return c
}

func (c *concatOperator) Do(ctx context.Context, state envelope.State, value any) (envelope.State, envelope.Envelope) {
	return state, envelope.New(value)
}

func (c *concatOperator) Run(ctx context.Context, state envelope.State, input envelope.Input) (envelope.State, any) {
	if !input.IsFanin() {
		return c.base.Run(ctx, state, input)
	}
	out := ""
	for _, e := range input.Fanin {
		if e.OK() {
			if s, ok := e.Value.(string); ok {
				out += s
			}
		}
	}
	return state, envelope.New(out)
}

func newRegistryWithEcho() *registry.Registry {
	r := registry.New()
	r.Register("Echo", "1.0", func(name string, config map[string]any) (any, error) {
		return newEchoOperator(name, 4), nil
	})
	r.Register("Concat", "1.0", func(name string, config map[string]any) (any, error) {
		return newConcatOperator(), nil
	})
	return r
}

func TestLinearChain(t *testing.T) {
	r := newRegistryWithEcho()
	p, err := New(r, Config{
		Name:    "linear",
		Nodes:   []NodeConfig{{Name: "A", Type: "Echo", Version: "1.0"}, {Name: "B", Type: "Echo", Version: "1.0"}},
		Digraph: []string{"A -> B"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	value, code, err := p.Run(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != envelope.CodeOK || value != "hello" {
		t.Fatalf("unexpected result: value=%v code=%d", value, code)
	}
}

func TestFanOutFanIn(t *testing.T) {
	r := newRegistryWithEcho()
	p, err := New(r, Config{
		Name: "diamond",
		Nodes: []NodeConfig{
			{Name: "A", Type: "Echo", Version: "1.0"},
			{Name: "B", Type: "Echo", Version: "1.0"},
			{Name: "C", Type: "Echo", Version: "1.0"},
			{Name: "D", Type: "Concat", Version: "1.0"},
		},
		Digraph: []string{"A -> B", "A -> C", "B -> D", "C -> D"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	value, code, err := p.Run(context.Background(), "x")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != envelope.CodeOK || value != "xx" {
		t.Fatalf("unexpected fan-in result: value=%v code=%d", value, code)
	}
}

func TestTerminalOverride(t *testing.T) {
	r := newRegistryWithEcho()
	p, err := New(r, Config{
		Name: "diamond-override",
		Last: "B",
		Nodes: []NodeConfig{
			{Name: "A", Type: "Echo", Version: "1.0"},
			{Name: "B", Type: "Echo", Version: "1.0"},
			{Name: "C", Type: "Echo", Version: "1.0"},
			{Name: "D", Type: "Echo", Version: "1.0"},
		},
		Digraph: []string{"A -> B", "A -> C", "B -> D", "C -> D"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	value, code, err := p.Run(context.Background(), "v")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != envelope.CodeOK || value != "v" {
		t.Fatalf("unexpected result for terminal override: value=%v code=%d", value, code)
	}
}

func TestSingleNodeGraph(t *testing.T) {
	r := newRegistryWithEcho()
	p, err := New(r, Config{
		Name:  "single",
		Nodes: []NodeConfig{{Name: "A", Type: "Echo", Version: "1.0"}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	value, code, err := p.Run(context.Background(), 42)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != envelope.CodeOK || value != 42 {
		t.Fatalf("unexpected single-node result: value=%v code=%d", value, code)
	}
}

func TestConstructionFailsOnUnknownType(t *testing.T) {
	r := registry.New()
	_, err := New(r, Config{
		Name:  "bad",
		Nodes: []NodeConfig{{Name: "A", Type: "Nope", Version: "1.0"}},
	})
	if err == nil {
		t.Fatal("expected construction error for unknown operator type")
	}
}

func TestRunReportsTelemetry(t *testing.T) {
	r := newRegistryWithEcho()
	p, err := New(r, Config{
		Name:  "telemetered",
		Nodes: []NodeConfig{{Name: "A", Type: "Echo", Version: "1.0"}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sink := telemetry.NewSink("telemetered", nil, nil)
	p = p.WithTelemetry(sink)

	value, code, err := p.Run(context.Background(), "ok")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != envelope.CodeOK || value != "ok" {
		t.Fatalf("unexpected result: value=%v code=%d", value, code)
	}
	if sink.Snapshot().RunsCompleted != 1 {
		t.Fatalf("expected telemetry to record one completed run, got %#v", sink.Snapshot())
	}
}

func TestConstructionFailsOnCycle(t *testing.T) {
	r := newRegistryWithEcho()
	_, err := New(r, Config{
		Name: "cyclic",
		Nodes: []NodeConfig{
			{Name: "A", Type: "Echo", Version: "1.0"},
			{Name: "B", Type: "Echo", Version: "1.0"},
		},
		Digraph: []string{"A -> B", "B -> A"},
	})
	if err == nil {
		t.Fatal("expected construction error for cyclic graph")
	}
}
