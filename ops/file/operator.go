// Package file implements the JSON/YAML/TOML/raw file operators:
// read/write a value between a file path and a decoded Go value.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/senatoreg/pyfreeflow/envelope"
	"github.com/senatoreg/pyfreeflow/operator"
	"github.com/senatoreg/pyfreeflow/registry"
)

var errBadFileInput = errors.New("file: value is not a string or []byte")

// Registry typenames, one per supported format.
const (
	JsonTypeName = "JsonFileOperator"
	YamlTypeName = "YamlFileOperator"
	TomlTypeName = "TomlFileOperator"
	AnyTypeName  = "AnyFileOperator"
	Version      = "1.0"
)

// format decodes/encodes file contents for a specific codec.
type format interface {
	decodeFile(path string) (any, error)
	encodeFile(path string, v any) error
}

// Operator reads/writes a value between a configured or per-call file
// path and a decoded value. Error codes: 101 bad input type (write),
// 102 read failure, 103 write failure.
type Operator struct {
	base   operator.Base
	format format
	path   string
}

// Register installs all four file operator factories into reg.
func Register(reg *registry.Registry) {
	for typ, f := range map[string]format{
		JsonTypeName: jsonFormat{},
		YamlTypeName: yamlFormat{},
		TomlTypeName: tomlFormat{},
		AnyTypeName:  anyFormat{},
	} {
		f := f
		reg.Register(typ, Version, func(name string, config map[string]any) (any, error) {
			path, _ := config["path"].(string)
			o := &Operator{format: f, path: path}
			o.base = operator.Base{Impl: o, MaxTasks: 4}
			return o, nil
		})
	}
}

func (o *Operator) Do(ctx context.Context, state envelope.State, value any) (envelope.State, envelope.Envelope) {
	data, ok := value.(map[string]any)
	if !ok {
		return state, envelope.Fail(envelope.CodeBadInput)
	}

	path := o.path
	if p, ok := data["path"].(string); ok && p != "" {
		path = p
	}

	op, _ := data["op"].(string)
	switch op {
	case "read":
		v, err := o.format.decodeFile(path)
		if err != nil {
			return state, envelope.Fail(envelope.CodeTargetFailure)
		}
		return state, envelope.New(v)
	case "write":
		if err := o.format.encodeFile(path, data["data"]); err != nil {
			return state, envelope.Fail(envelope.CodeBadPayload)
		}
		return state, envelope.New(nil)
	default:
		return state, envelope.Fail(envelope.CodeBadInput)
	}
}

func (o *Operator) Run(ctx context.Context, state envelope.State, input envelope.Input) (envelope.State, any) {
	return o.base.Run(ctx, state, input)
}

type jsonFormat struct{}

func (jsonFormat) decodeFile(path string) (any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v any
	err = json.Unmarshal(b, &v)
	return v, err
}

func (jsonFormat) encodeFile(path string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

type yamlFormat struct{}

func (yamlFormat) decodeFile(path string) (any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v any
	err = yaml.Unmarshal(b, &v)
	return v, err
}

func (yamlFormat) encodeFile(path string, v any) error {
	b, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

type tomlFormat struct{}

func (tomlFormat) decodeFile(path string) (any, error) {
	var v map[string]any
	_, err := toml.DecodeFile(path, &v)
	return v, err
}

func (tomlFormat) encodeFile(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(v)
}

type anyFormat struct{}

func (anyFormat) decodeFile(path string) (any, error) {
	b, err := os.ReadFile(path)
	return b, err
}

func (anyFormat) encodeFile(path string, v any) error {
	switch t := v.(type) {
	case string:
		return os.WriteFile(path, []byte(t), 0o644)
	case []byte:
		return os.WriteFile(path, t, 0o644)
	default:
		return errBadFileInput
	}
}
