// Package pipeline implements the DAG scheduler: instantiates operators
// from configuration, dispatches nodes as their predecessors complete,
// merges state on its own turn, and returns the terminal node's
// envelope.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/senatoreg/pyfreeflow/envelope"
	"github.com/senatoreg/pyfreeflow/graph"
	"github.com/senatoreg/pyfreeflow/log"
	"github.com/senatoreg/pyfreeflow/operator"
	"github.com/senatoreg/pyfreeflow/registry"
	"github.com/senatoreg/pyfreeflow/telemetry"
	"github.com/senatoreg/pyfreeflow/types"
)

// NodeConfig is one node descriptor from the pipeline document.
type NodeConfig struct {
	Name    string
	Type    string
	Version string
	Config  map[string]any
}

// Config is the pipeline document's "pipeline" object.
type Config struct {
	Name    string
	Last    string
	Nodes   []NodeConfig
	Digraph []string
}

// Pipeline is an instantiated DAG of operators plus the shared state they
// thread through a run. A Pipeline is reusable across runs; exactly one
// run executes at a time, enforced by runLock.
type Pipeline struct {
	name     string
	graph    *graph.Graph
	last     string
	operator map[string]operator.Operator
	logger   *log.Logger
	telem    *telemetry.Sink

	runLock sync.Mutex
}

// WithTelemetry attaches a telemetry sink that receives one run_complete
// or run_error report per Run call. Passing nil disables reporting.
func (p *Pipeline) WithTelemetry(sink *telemetry.Sink) *Pipeline {
	p.telem = sink
	return p
}

// New constructs a Pipeline from cfg, instantiating every node's operator
// via reg. Returns a construction-time error on duplicate names, an
// unknown (typename, version), or a cyclic graph — all fatal.
func New(reg *registry.Registry, cfg Config) (*Pipeline, error) {
	names := make([]string, 0, len(cfg.Nodes))
	ops := make(map[string]operator.Operator, len(cfg.Nodes))

	for _, n := range cfg.Nodes {
		names = append(names, n.Name)

		inst, err := reg.New(n.Type, n.Version, n.Name, n.Config)
		if err != nil {
			return nil, fmt.Errorf("pipeline: node %q: %w", n.Name, err)
		}
		op, ok := inst.(operator.Operator)
		if !ok {
			return nil, fmt.Errorf("pipeline: node %q: type %q version %q does not implement operator.Operator", n.Name, n.Type, n.Version)
		}
		ops[n.Name] = op
	}

	g, err := graph.New(names, cfg.Digraph)
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", cfg.Name, err)
	}

	last, err := g.Last(cfg.Last)
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", cfg.Name, err)
	}

	return &Pipeline{
		name:     cfg.Name,
		graph:    g,
		last:     last,
		operator: ops,
	}, nil
}

// completion is the result of one node's dispatched task.
type completion struct {
	node    string
	state   envelope.State
	out     any
	crashed bool
}

// Run executes the pipeline once against initialData, serialized by an
// exclusive per-pipeline lock so at most one run is active at a time:
// nodes are dispatched as their predecessors complete, waiting for the
// first in-flight task to finish before scheduling the next newly-ready
// node, until the terminal node's result is available.
func (p *Pipeline) Run(ctx context.Context, initialData any) (any, int, error) {
	p.runLock.Lock()
	defer p.runLock.Unlock()

	start := time.Now()
	runID := uuid.NewString()
	runMeta := types.RunMeta{RunID: runID, Attempt: 1}
	logger := log.NewLogger(&runMeta)

	var runCrashed bool

	nodes := p.graph.Nodes()
	remaining := make(map[string]int, len(nodes))
	for _, n := range nodes {
		remaining[n] = p.graph.InDegree(n)
	}

	out := make(map[string]envelope.Envelope, len(nodes))
	faninOut := make(map[string][]envelope.Envelope, len(nodes))
	state := envelope.State{}
	pending := len(nodes)

	results := make(chan completion, len(nodes))
	dispatchedCount := 0

	dispatchReady := func() {
		for _, v := range nodes {
			if remaining[v] != 0 {
				continue
			}
			remaining[v] = -1 // sentinel: dispatched, never dispatch twice
			dispatchedCount++

			v := v
			input := p.buildInput(v, initialData, out, faninOut)
			op := p.operator[v]
			nodeState := state

			go func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Error("node panicked", map[string]any{"node": v, "panic": fmt.Sprint(r)})
						results <- completion{node: v, state: nodeState, out: envelope.Fail(envelope.CodeBadInput), crashed: true}
					}
				}()
				newState, o := op.Run(ctx, nodeState, input)
				results <- completion{node: v, state: newState, out: o}
			}()
		}
	}

	dispatchReady()

	for pending > 0 {
		c := <-results
		pending--

		if c.crashed {
			runCrashed = true
		}

		switch v := c.out.(type) {
		case envelope.Envelope:
			out[c.node] = v
		case []envelope.Envelope:
			faninOut[c.node] = v
			if len(v) > 0 {
				out[c.node] = v[len(v)-1]
			} else {
				out[c.node] = envelope.Fail(envelope.CodeBadInput)
			}
		default:
			if c.crashed {
				runCrashed = true
				out[c.node] = envelope.Fail(envelope.CodeBadInput)
			} else {
				logger.Error("node returned unrecognized output shape", map[string]any{"node": c.node})
				out[c.node] = envelope.Fail(envelope.CodeBadInput)
			}
		}

		merged, err := state.Merge(c.state, true)
		if err != nil {
			logger.Error("state merge failed", map[string]any{"node": c.node, "error": err.Error()})
		} else {
			state = merged
		}

		for _, w := range p.graph.Successors(c.node) {
			if remaining[w] > 0 {
				remaining[w]--
			}
		}

		dispatchReady()
	}

	final := out[p.last]

	if p.telem != nil {
		if err := p.telem.ReportRun(ctx, runMeta, final.Code, len(nodes), time.Since(start), runCrashed); err != nil {
			logger.Warn("telemetry report failed", map[string]any{"error": err.Error()})
		}
	}

	return deepCopyValue(final.Value), final.Code, nil
}

// buildInput constructs the scheduler input for node v: no predecessors
// -> (initialData, 0); one predecessor -> that predecessor's envelope;
// multiple predecessors -> ordered fan-in list.
func (p *Pipeline) buildInput(v string, initialData any, out map[string]envelope.Envelope, faninOut map[string][]envelope.Envelope) envelope.Input {
	preds := p.graph.Predecessors(v)
	switch len(preds) {
	case 0:
		return envelope.SingleInput(envelope.New(initialData))
	case 1:
		u := preds[0]
		if list, ok := faninOut[u]; ok {
			return envelope.FaninInput(list)
		}
		return envelope.SingleInput(out[u])
	default:
		list := make([]envelope.Envelope, len(preds))
		for i, u := range preds {
			if e, ok := out[u]; ok {
				list[i] = e
			} else {
				list[i] = envelope.Fail(envelope.CodeBadInput)
			}
		}
		return envelope.FaninInput(list)
	}
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case envelope.State:
		return t.Clone()
	case map[string]any:
		return envelope.State(t).Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
