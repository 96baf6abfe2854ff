// Package env implements EnvOperator: reads a configured list of
// environment variable names into a mapping. Always succeeds, mirroring
// the source's unconditional code-0 return.
package env

import (
	"context"
	"os"

	"github.com/senatoreg/pyfreeflow/envelope"
	"github.com/senatoreg/pyfreeflow/operator"
	"github.com/senatoreg/pyfreeflow/registry"
)

// TypeName is the operator's registry typename.
const TypeName = "EnvOperator"

// Version is the operator's registry version.
const Version = "1.0"

// Operator reads a fixed set of named environment variables per call.
type Operator struct {
	base operator.Base
	vars []string
}

// Register installs the Env operator factory into reg.
func Register(reg *registry.Registry) {
	reg.Register(TypeName, Version, func(name string, config map[string]any) (any, error) {
		var vars []string
		if raw, ok := config["vars"].([]any); ok {
			for _, v := range raw {
				if s, ok := v.(string); ok {
					vars = append(vars, s)
				}
			}
		}
		o := &Operator{vars: vars}
		o.base = operator.Base{Impl: o, MaxTasks: 4}
		return o, nil
	})
}

func (o *Operator) Do(ctx context.Context, state envelope.State, value any) (envelope.State, envelope.Envelope) {
	out := make(map[string]any, len(o.vars))
	for _, v := range o.vars {
		out[v] = os.Getenv(v)
	}
	return state, envelope.New(out)
}

func (o *Operator) Run(ctx context.Context, state envelope.State, input envelope.Input) (envelope.State, any) {
	return o.base.Run(ctx, state, input)
}
