// Package feed implements FeedRequester: an HTTP requester whose
// response is routed through the XML tree converter, then dispatched to
// an RSS 2.0, Atom, or RSS 1.0/RDF parser based on the document's root
// element.
package feed

import (
	"context"
	"strings"
	"time"

	"github.com/senatoreg/pyfreeflow/envelope"
	"github.com/senatoreg/pyfreeflow/envutil"
	gohttp "github.com/senatoreg/pyfreeflow/ops/http"
	"github.com/senatoreg/pyfreeflow/operator"
	"github.com/senatoreg/pyfreeflow/registry"
	"github.com/senatoreg/pyfreeflow/xmltree"
)

const (
	// TypeName is the registry name for FeedRequester.
	TypeName = "FeedRequester"
	Version  = "1.0"
)

// Operator fetches a feed URL via the HTTP retry engine, converts the
// body to a tree, and dispatches it to the vocabulary parser matching
// the document's root element.
type Operator struct {
	base operator.Base

	http *gohttp.Operator
}

// Register installs the FeedRequester factory into reg.
func Register(reg *registry.Registry) {
	reg.Register(TypeName, Version, func(name string, config map[string]any) (any, error) {
		return New(decodeConfig(config))
	})
}

// New builds a FeedRequester operator from cfg.
func New(cfg gohttp.Config) (*Operator, error) {
	o := &Operator{}
	httpOp, err := gohttp.New(cfg, decodeFeedBody)
	if err != nil {
		return nil, err
	}
	o.http = httpOp
	o.base = operator.Base{Impl: o, MaxTasks: cfg.MaxTasks}
	if o.base.MaxTasks <= 0 {
		o.base.MaxTasks = 4
	}
	return o, nil
}

func decodeConfig(config map[string]any) gohttp.Config {
	cfg := gohttp.Config{
		Method:          "GET",
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		MaxRetrySleep:   5 * time.Second,
		MaxResponseSize: 10 * 1024 * 1024,
		MaxTasks:        4,
	}
	if v, ok := config["url"].(string); ok {
		cfg.URLTemplate = v
	}
	if v, ok := config["timeout"].(string); ok && v != "" {
		if us, err := envutil.ParseDuration(v); err == nil {
			cfg.Timeout = time.Duration(us) * time.Microsecond
		}
	}
	if v, ok := config["max_retries"].(int); ok {
		cfg.MaxRetries = v
	}
	if v, ok := config["max_retry_sleep"].(string); ok && v != "" {
		if us, err := envutil.ParseDuration(v); err == nil {
			cfg.MaxRetrySleep = time.Duration(us) * time.Microsecond
		}
	}
	if v, ok := config["max_response_size"].(int); ok {
		cfg.MaxResponseSize = int64(v)
	}
	if v, ok := config["max_tasks"].(int); ok {
		cfg.MaxTasks = v
	}
	return cfg
}

// decodeFeedBody converts a response body to a tree (strict XML unless
// the Content-Type names an HTML-like feed dialect) and dispatches it
// to the RSS 2.0, Atom, or RDF parser based on the root element.
func decodeFeedBody(body []byte, contentType string) (any, error) {
	relaxed := strings.Contains(contentType, "html")

	root, tag, err := xmltree.ParseRoot(strings.NewReader(string(body)), xmltree.Options{
		HTML:     relaxed,
		MaxDepth: 256,
		MaxSize:  int64(len(body)) + 1,
	})
	if err != nil {
		return nil, err
	}

	return Parse(root, tag)
}

// Do delegates to the embedded HTTP requester, which already applies
// retry/backoff, the response size cap, and this operator's decoder.
func (o *Operator) Do(ctx context.Context, state envelope.State, value any) (envelope.State, envelope.Envelope) {
	_, out := o.http.Do(ctx, state, value)
	return state, out
}

func (o *Operator) Run(ctx context.Context, state envelope.State, input envelope.Input) (envelope.State, any) {
	return o.base.Run(ctx, state, input)
}
