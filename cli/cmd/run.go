package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/senatoreg/pyfreeflow/cli/render"
	"github.com/senatoreg/pyfreeflow/config"
	"github.com/senatoreg/pyfreeflow/ops/buffer"
	"github.com/senatoreg/pyfreeflow/ops/crypto"
	"github.com/senatoreg/pyfreeflow/ops/env"
	"github.com/senatoreg/pyfreeflow/ops/feed"
	"github.com/senatoreg/pyfreeflow/ops/file"
	"github.com/senatoreg/pyfreeflow/ops/http"
	"github.com/senatoreg/pyfreeflow/ops/jwt"
	"github.com/senatoreg/pyfreeflow/ops/sleep"
	"github.com/senatoreg/pyfreeflow/ops/socket"
	"github.com/senatoreg/pyfreeflow/ops/sql"
	"github.com/senatoreg/pyfreeflow/pipeline"
	"github.com/senatoreg/pyfreeflow/registry"
	"github.com/senatoreg/pyfreeflow/telemetry"
	"github.com/senatoreg/pyfreeflow/transform"
)

// Exit codes for the run command: 0 success, 1 the terminal envelope
// carried a nonzero code (a node that panicked is recorded as code 101,
// so such a run also exits 1), 2 Pipeline.Run itself returned an error,
// 3 the document, its extension list, the pipeline or its telemetry
// could not be set up.
const (
	ExitSuccess       = 0
	ExitTerminalError = 1
	ExitEngineCrash   = 2
	ExitConfigError   = 3
)

// RunResponse is the response rendered for the run command.
type RunResponse struct {
	TerminalCode int `json:"terminal_code"`
	Value        any `json:"value"`
}

// defaultRegistry builds a registry with every built-in operator type.
func defaultRegistry() *registry.Registry {
	return registry.BuildDefault(
		sleep.Register,
		env.Register,
		buffer.Register,
		file.Register,
		jwt.Register,
		crypto.Register,
		sql.RegisterSqlite,
		sql.RegisterPostgres,
		socket.Register,
		http.Register,
		feed.Register,
		transform.Register,
	)
}

// RunCommand returns the run command: loads a pipeline document, runs it
// once to completion, and renders the terminal node's result.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run a pipeline document to completion",
		ArgsUsage: "<pipeline.yaml>",
		Flags:     OutputFlags(),
		Action:    runAction,
	}
}

func runAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("run: missing pipeline document path", ExitConfigError)
	}

	doc, err := config.LoadDocument(path)
	if err != nil {
		return cli.Exit(fmt.Sprintf("run: %v", err), ExitConfigError)
	}
	cfg := doc.ToPipelineConfig()

	reg := defaultRegistry()
	for _, ext := range doc.Ext {
		if !reg.Has(ext) {
			return cli.Exit(fmt.Sprintf("run: declared extension %q is not registered", ext), ExitConfigError)
		}
	}

	p, err := pipeline.New(reg, cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("run: %v", err), ExitConfigError)
	}

	if sink, err := buildTelemetrySink(cfg.Name, doc.Telemetry); err != nil {
		return cli.Exit(fmt.Sprintf("run: %v", err), ExitConfigError)
	} else if sink != nil {
		p = p.WithTelemetry(sink)
		defer sink.Close()
	}

	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	value, code, err := p.Run(ctx, doc.Args)
	if err != nil {
		return cli.Exit(fmt.Sprintf("run: %v", err), ExitEngineCrash)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if err := r.Render(RunResponse{TerminalCode: code, Value: value}); err != nil {
		return err
	}

	if code != 0 {
		return cli.Exit("", ExitTerminalError)
	}
	return nil
}

// buildTelemetrySink decodes a pipeline document's optional "telemetry"
// block and, if it selects a webhook or redis adapter, returns a Sink
// wired to publish one run_complete/run_error event per Run. A nil
// block (no telemetry configured) returns a nil Sink, leaving
// Pipeline.WithTelemetry uncalled.
func buildTelemetrySink(pipelineName string, raw map[string]any) (*telemetry.Sink, error) {
	if raw == nil {
		return nil, nil
	}
	cfg := telemetry.DecodeConfig(raw)
	adp, err := telemetry.BuildAdapter(cfg)
	if err != nil {
		return nil, err
	}
	if adp == nil {
		return nil, nil
	}
	return telemetry.NewSink(pipelineName, adp, nil), nil
}
