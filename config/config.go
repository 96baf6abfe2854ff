// Package config loads a pipeline document from YAML: the extension list,
// the node list, operator configuration, and edge digraph that
// pipeline.New turns into a runnable graph, plus the initial args value
// handed to root nodes at run time.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/senatoreg/pyfreeflow/envutil"
	"github.com/senatoreg/pyfreeflow/pipeline"
)

// Document is the on-disk shape of a pipeline YAML file: a list of
// extension (operator type) names the document expects to be available,
// the pipeline's DAG definition, and the initial input value handed to
// root nodes when the pipeline runs.
type Document struct {
	Ext       []string       `yaml:"ext,omitempty"`
	Pipeline  PipelineDoc    `yaml:"pipeline"`
	Args      any            `yaml:"args,omitempty"`
	Telemetry map[string]any `yaml:"telemetry,omitempty"`
}

// PipelineDoc is the Document's "pipeline" key: the DAG itself.
type PipelineDoc struct {
	Name    string         `yaml:"name"`
	Last    string         `yaml:"last,omitempty"`
	Node    []NodeDocument `yaml:"node"`
	Digraph []string       `yaml:"digraph"`
}

// NodeDocument is one entry of a PipelineDoc's node list.
type NodeDocument struct {
	Name    string         `yaml:"name"`
	Type    string         `yaml:"type"`
	Version string         `yaml:"version"`
	Config  map[string]any `yaml:"config"`
}

// Load reads a YAML pipeline document, expands environment variable
// references in its raw text, and decodes it into a pipeline.Config.
// Unknown keys are rejected to catch typos early.
func Load(path string) (pipeline.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return pipeline.Config{}, fmt.Errorf("config: pipeline file not found: %s", path)
		}
		return pipeline.Config{}, fmt.Errorf("config: cannot read pipeline file %q: %w", path, err)
	}

	expanded := envutil.ExpandEnv(string(data))

	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return pipeline.Config{}, fmt.Errorf("config: invalid YAML in %s: %w", path, err)
	}

	return doc.ToPipelineConfig(), nil
}

// Parse decodes a pipeline document from an in-memory YAML string,
// after the same environment-variable expansion Load performs.
func Parse(raw string) (pipeline.Config, error) {
	expanded := envutil.ExpandEnv(raw)

	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return pipeline.Config{}, fmt.Errorf("config: invalid YAML: %w", err)
	}

	return doc.ToPipelineConfig(), nil
}

// LoadDocument reads and decodes a pipeline YAML file into its raw
// Document shape, for callers that need fields Load doesn't project
// into pipeline.Config: Ext, Args, and the optional Telemetry block.
func LoadDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Document{}, fmt.Errorf("config: pipeline file not found: %s", path)
		}
		return Document{}, fmt.Errorf("config: cannot read pipeline file %q: %w", path, err)
	}

	expanded := envutil.ExpandEnv(string(data))

	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return Document{}, fmt.Errorf("config: invalid YAML in %s: %w", path, err)
	}
	return doc, nil
}

// ToPipelineConfig projects a Document into the pipeline.Config shape
// pipeline.New consumes, dropping fields (Ext, Args, Telemetry) that
// belong to other layers of the application.
func (d Document) ToPipelineConfig() pipeline.Config {
	nodes := make([]pipeline.NodeConfig, 0, len(d.Pipeline.Node))
	for _, n := range d.Pipeline.Node {
		nodes = append(nodes, pipeline.NodeConfig{
			Name:    n.Name,
			Type:    n.Type,
			Version: n.Version,
			Config:  n.Config,
		})
	}
	return pipeline.Config{
		Name:    d.Pipeline.Name,
		Last:    d.Pipeline.Last,
		Nodes:   nodes,
		Digraph: d.Pipeline.Digraph,
	}
}
