package buffer

import (
	"context"

	"github.com/senatoreg/pyfreeflow/envelope"
	"github.com/senatoreg/pyfreeflow/operator"
	"github.com/senatoreg/pyfreeflow/registry"
)

// Registry typenames, one per supported format.
const (
	JsonTypeName = "JsonBufferOperator"
	YamlTypeName = "YamlBufferOperator"
	TomlTypeName = "TomlBufferOperator"
	AnyTypeName  = "AnyBufferOperator"
	Version      = "1.0"
)

// Operator reads/writes a value between its in-memory string
// representation and a decoded Go value.
type Operator struct {
	base  operator.Base
	codec codec
}

// Register installs all four buffer operator factories into reg.
func Register(reg *registry.Registry) {
	for typ, c := range map[string]codec{
		JsonTypeName: jsonCodec{},
		YamlTypeName: yamlCodec{},
		TomlTypeName: tomlCodec{},
		AnyTypeName:  anyCodec{},
	} {
		c := c
		reg.Register(typ, Version, func(name string, config map[string]any) (any, error) {
			o := &Operator{codec: c}
			o.base = operator.Base{Impl: o, MaxTasks: 4}
			return o, nil
		})
	}
}

// Do dispatches on data["op"] ("read" or "write"). Error codes: 101 bad
// input type, 102 read (decode) failure, 103 write (encode) failure.
func (o *Operator) Do(ctx context.Context, state envelope.State, value any) (envelope.State, envelope.Envelope) {
	data, ok := value.(map[string]any)
	if !ok {
		return state, envelope.Fail(envelope.CodeBadInput)
	}

	op, _ := data["op"].(string)
	switch op {
	case "read":
		raw, ok := data["data"].(string)
		if !ok {
			return state, envelope.Fail(envelope.CodeBadInput)
		}
		v, err := o.codec.decode(raw)
		if err != nil {
			return state, envelope.Fail(envelope.CodeTargetFailure)
		}
		return state, envelope.New(v)
	case "write":
		s, err := o.codec.encode(data["data"])
		if err != nil {
			return state, envelope.Fail(envelope.CodeBadPayload)
		}
		return state, envelope.New(s)
	default:
		return state, envelope.Fail(envelope.CodeBadInput)
	}
}

func (o *Operator) Run(ctx context.Context, state envelope.State, input envelope.Input) (envelope.State, any) {
	return o.base.Run(ctx, state, input)
}
