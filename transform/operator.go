package transform

import (
	"context"

	"github.com/senatoreg/pyfreeflow/envelope"
	"github.com/senatoreg/pyfreeflow/registry"
)

// TypeName is the operator's registry typename.
const TypeName = "DataTransformer"

// Version is the operator's registry version.
const Version = "1.0"

// DataTransformerOperator mediates value conversion around a compiled
// Transformer: it merges multiple predecessor envelopes into one input
// before invoking the sandbox, so it overrides Run directly rather than
// embedding operator.Base's default unpack.
type DataTransformerOperator struct {
	name        string
	transformer *Transformer
	force       bool
}

// Config configures a DataTransformerOperator.
type Config struct {
	Script string
	// Force, when true, treats the transformer's returned data itself as
	// an already-coded (value, code) pair rather than a plain success
	// value: a script written for force=true returns {value, code} and
	// that code flows straight through to the scheduler unchanged.
	Force bool
}

// New builds a DataTransformerOperator from cfg.
func New(name string, cfg Config) (*DataTransformerOperator, error) {
	tr, err := Compile(cfg.Script)
	if err != nil {
		return nil, err
	}
	return &DataTransformerOperator{name: name, transformer: tr, force: cfg.Force}, nil
}

// Register installs the DataTransformer factory into reg, decoding the
// opaque config bag into Config.
func Register(reg *registry.Registry) {
	reg.Register(TypeName, Version, func(name string, config map[string]any) (any, error) {
		script, _ := config["script"].(string)
		force, _ := config["force"].(bool)
		return New(name, Config{Script: script, Force: force})
	})
}

// Do is unused: DataTransformerOperator overrides Run directly because its
// fan-in merges predecessor data into a single transformer call instead of
// invoking Do once per predecessor.
func (o *DataTransformerOperator) Do(ctx context.Context, state envelope.State, value any) (envelope.State, envelope.Envelope) {
	return o.apply(state, value)
}

// Run implements the data-transformer's fan-in rule: a fan-in list is
// filtered to its successful entries and passed as a plain list to the
// sandbox; if none succeeded, returns (nil, 103) without invoking the
// script.
func (o *DataTransformerOperator) Run(ctx context.Context, state envelope.State, input envelope.Input) (envelope.State, any) {
	if !input.IsFanin() {
		in := input.Single
		if in == nil || !in.OK() {
			if in == nil {
				return state, envelope.Fail(envelope.CodeBadInput)
			}
			return state, *in
		}
		newState, out := o.apply(state, in.Value)
		return newState, out
	}

	values := make([]any, 0, len(input.Fanin))
	for _, e := range input.Fanin {
		if e.OK() {
			values = append(values, e.Value)
		}
	}
	if len(values) == 0 {
		return state, envelope.Fail(envelope.CodeBadPayload)
	}

	newState, out := o.apply(state, values)
	return newState, out
}

func (o *DataTransformerOperator) apply(state envelope.State, data any) (envelope.State, envelope.Envelope) {
	newState, newData, err := o.transformer.Transform(map[string]any(state), data)
	if err != nil {
		return state, envelope.Fail(envelope.CodeBadInput)
	}

	merged := state
	if m, ok := newState.(map[string]any); ok {
		if s, mergeErr := state.Merge(envelope.State(m), true); mergeErr == nil {
			merged = s
		}
	}

	if o.force {
		// The script itself decided the outcome: newData is expected to
		// be a two-element (value, code) pair rather than a plain value,
		// and that code is forwarded as-is instead of being coerced to
		// CodeOK.
		if pair, ok := newData.([]any); ok && len(pair) == 2 {
			if code, ok := asCode(pair[1]); ok {
				return merged, envelope.Envelope{Value: pair[0], Code: code}
			}
		}
		return merged, envelope.Envelope{Value: newData, Code: envelope.CodeOK}
	}

	return merged, envelope.New(newData)
}

// asCode coerces a Lua-derived numeric value (always float64 once converted
// through luaToGo) into an int wire code.
func asCode(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}
