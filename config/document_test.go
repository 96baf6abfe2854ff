package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDocumentReadsTelemetryBlock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	doc := `
pipeline:
  name: example
  last: A
  node:
    - name: A
      type: Echo
      version: "1.0"
  digraph: []
telemetry:
  webhook:
    url: https://example.com/hook
    timeout: 5s
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	d, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if d.Telemetry == nil {
		t.Fatal("expected telemetry block to decode")
	}
	wh, ok := d.Telemetry["webhook"].(map[string]any)
	if !ok {
		t.Fatalf("expected webhook sub-block, got %#v", d.Telemetry)
	}
	if wh["url"] != "https://example.com/hook" {
		t.Fatalf("unexpected webhook url: %#v", wh)
	}
}

func TestLoadDocumentWithoutTelemetryBlock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	doc := `
pipeline:
  name: example
  last: A
  node:
    - name: A
      type: Echo
      version: "1.0"
  digraph: []
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	d, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if d.Telemetry != nil {
		t.Fatalf("expected nil telemetry block, got %#v", d.Telemetry)
	}
	if d.ToPipelineConfig().Name != "example" {
		t.Fatalf("unexpected pipeline config: %#v", d.ToPipelineConfig())
	}
}

func TestLoadDocumentReadsExtAndArgs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	doc := `
ext:
  - Echo
pipeline:
  name: example
  last: A
  node:
    - name: A
      type: Echo
      version: "1.0"
  digraph: []
args:
  seed: 7
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	d, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if len(d.Ext) != 1 || d.Ext[0] != "Echo" {
		t.Fatalf("unexpected ext list: %#v", d.Ext)
	}
	args, ok := d.Args.(map[string]any)
	if !ok || args["seed"] != 7 {
		t.Fatalf("unexpected args: %#v", d.Args)
	}
}
