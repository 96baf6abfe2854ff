// Package buffer implements the in-memory JSON/YAML/TOML/raw buffer
// operators: read decodes a string into a value, write encodes a value
// into a string.
package buffer

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// codec converts between a buffer's string representation and a decoded
// value.
type codec interface {
	decode(s string) (any, error)
	encode(v any) (string, error)
}

type jsonCodec struct{}

func (jsonCodec) decode(s string) (any, error) {
	var v any
	err := json.Unmarshal([]byte(s), &v)
	return v, err
}

func (jsonCodec) encode(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

type yamlCodec struct{}

func (yamlCodec) decode(s string) (any, error) {
	var v any
	err := yaml.Unmarshal([]byte(s), &v)
	return v, err
}

func (yamlCodec) encode(v any) (string, error) {
	b, err := yaml.Marshal(v)
	return string(b), err
}

type tomlCodec struct{}

func (tomlCodec) decode(s string) (any, error) {
	var v map[string]any
	_, err := toml.Decode(s, &v)
	return v, err
}

func (tomlCodec) encode(v any) (string, error) {
	var buf bytes.Buffer
	err := toml.NewEncoder(&buf).Encode(v)
	return buf.String(), err
}

type anyCodec struct{}

func (anyCodec) decode(s string) (any, error) { return s, nil }
func (anyCodec) encode(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, ok := v.([]byte)
	if ok {
		return string(b), nil
	}
	return "", errBadInput
}

var errBadInput = errors.New("buffer: value is not a string or []byte")
