package http

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	gohttp "net/http"
	"strings"
	"time"

	"github.com/senatoreg/pyfreeflow/envelope"
	"github.com/senatoreg/pyfreeflow/envutil"
	"github.com/senatoreg/pyfreeflow/operator"
	"github.com/senatoreg/pyfreeflow/registry"
	"github.com/senatoreg/pyfreeflow/xmltree"
)

// Registry typenames.
const (
	RestTypeName = "RestApiRequester"
	HtmlTypeName = "HtmlRequester"
	Version      = "1.0"
)

// Decoder turns a successful response body into the operator's result
// value. REST decodes JSON (falling back to the raw string); HTML
// parses via xmltree in relaxed mode.
type Decoder func(body []byte, contentType string) (any, error)

// Config configures an HTTP-family operator.
type Config struct {
	URLTemplate     string
	Method          string
	Headers         map[string]string
	Timeout         time.Duration
	TLS             TLSPolicy
	MaxRetries      int
	MaxRetrySleep   time.Duration
	MaxResponseSize int64
	MaxTasks        int
}

// Operator issues templated HTTP requests with retry/backoff, a
// response size cap, and a format-specific decoder.
type Operator struct {
	base operator.Base

	cfg     Config
	client  *gohttp.Client
	decoder Decoder
}

// Register installs the REST and HTML requester factories into reg.
func Register(reg *registry.Registry) {
	reg.Register(RestTypeName, Version, func(name string, config map[string]any) (any, error) {
		return New(decodeConfig(config), decodeJSON)
	})
	reg.Register(HtmlTypeName, Version, func(name string, config map[string]any) (any, error) {
		return New(decodeConfig(config), decodeHTML)
	})
}

// New builds an Operator from cfg using the given body decoder.
func New(cfg Config, decoder Decoder) (*Operator, error) {
	client, err := buildClient(cfg.Timeout, cfg.TLS)
	if err != nil {
		return nil, err
	}

	o := &Operator{cfg: cfg, client: client, decoder: decoder}
	o.base = operator.Base{Impl: o, MaxTasks: cfg.MaxTasks}
	if o.base.MaxTasks <= 0 {
		o.base.MaxTasks = 4
	}
	return o, nil
}

func decodeConfig(config map[string]any) Config {
	cfg := Config{
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
	if v, ok := config["method"].(string); ok && v != "" {
		cfg.Method = strings.ToUpper(v)
	}
	if v, ok := config["headers"].(map[string]any); ok {
		cfg.Headers = stringMap(v)
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
	if tlsCfg, ok := config["tls"].(map[string]any); ok {
		cfg.TLS = TLSPolicy{
			Enabled:  boolField(tlsCfg["enabled"]),
			Insecure: boolField(tlsCfg["insecure"]),
		}
		cfg.TLS.CAFile, _ = tlsCfg["ca_file"].(string)
		cfg.TLS.CAPath, _ = tlsCfg["ca_path"].(string)
		cfg.TLS.CAData, _ = tlsCfg["ca_data"].(string)
	}
	return cfg
}

func stringMap(v map[string]any) map[string]string {
	out := make(map[string]string, len(v))
	for k, val := range v {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	return out
}

func boolField(v any) bool {
	b, _ := v.(bool)
	return b
}

// Do substitutes urlcomp placeholders, issues the request with
// retry/backoff, enforces the response size cap, and decodes the body.
// Error codes: 103 bad caller payload, 101 transport error/oversize,
// 102 HTTP status >= 400, 104 timeout, 106 parse failure.
func (o *Operator) Do(ctx context.Context, state envelope.State, value any) (envelope.State, envelope.Envelope) {
	data, ok := value.(map[string]any)
	if !ok {
		return state, envelope.Fail(envelope.CodeBadPayload)
	}

	url, err := substitutePlaceholders(o.cfg.URLTemplate, data["urlcomp"])
	if err != nil {
		return state, envelope.Fail(envelope.CodeBadPayload)
	}

	headers := map[string]string{}
	for k, v := range o.cfg.Headers {
		headers[k] = v
	}
	if perCall, ok := data["headers"].(map[string]any); ok {
		for k, v := range stringMap(perCall) {
			headers[k] = v
		}
	}

	resp, body, err := o.requestWithRetry(ctx, url, headers, data["body"])
	if err != nil {
		var netErr net.Error
		switch {
		case ctx.Err() != nil, errors.As(err, &netErr) && netErr.Timeout():
			return state, envelope.Fail(envelope.CodeTimeout)
		default:
			return state, envelope.Fail(envelope.CodeBadInput)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return state, envelope.Envelope{
			Value: map[string]any{"body": map[string]any{}, "status": resp.StatusCode},
			Code:  envelope.CodeTargetFailure,
		}
	}

	value2, err := o.decoder(body, resp.Header.Get("Content-Type"))
	if err != nil {
		return state, envelope.Fail(envelope.CodeParseError)
	}

	return state, envelope.New(map[string]any{"body": value2, "status": resp.StatusCode})
}

func (o *Operator) requestWithRetry(ctx context.Context, url string, headers map[string]string, body any) (*gohttp.Response, []byte, error) {
	maxRetries := o.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			sleep, err := randomBackoff(attempt, o.cfg.MaxRetrySleep, maxRetries)
			if err == nil {
				select {
				case <-time.After(sleep):
				case <-ctx.Done():
					return nil, nil, ctx.Err()
				}
			}
		}

		resp, respBody, err := o.doOnce(ctx, url, headers, body)
		if err == nil {
			return resp, respBody, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
	}

	return nil, nil, fmt.Errorf("http: request failed after %d attempts: %w", maxRetries, lastErr)
}

// randomBackoff computes a per-attempt random sleep bounded by
// attempt*(maxRetrySleep/maxRetries).
func randomBackoff(attempt int, maxRetrySleep time.Duration, maxRetries int) (time.Duration, error) {
	bound := time.Duration(attempt) * (maxRetrySleep / time.Duration(maxRetries))
	if bound <= 0 {
		return 0, nil
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(bound)))
	if err != nil {
		return 0, err
	}
	return time.Duration(n.Int64()), nil
}

func (o *Operator) doOnce(ctx context.Context, url string, headers map[string]string, body any) (*gohttp.Response, []byte, error) {
	var reqBody io.Reader
	if body != nil {
		if s, ok := body.(string); ok {
			reqBody = strings.NewReader(s)
		} else {
			encoded, err := json.Marshal(body)
			if err != nil {
				return nil, nil, err
			}
			reqBody = strings.NewReader(string(encoded))
		}
	}

	req, err := gohttp.NewRequestWithContext(ctx, o.cfg.Method, url, reqBody)
	if err != nil {
		return nil, nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, nil, err
	}

	if resp.ContentLength > 0 && resp.ContentLength > o.cfg.MaxResponseSize {
		resp.Body.Close()
		return nil, nil, fmt.Errorf("http: advertised content-length %d exceeds cap %d", resp.ContentLength, o.cfg.MaxResponseSize)
	}

	limited := io.LimitReader(resp.Body, o.cfg.MaxResponseSize+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		resp.Body.Close()
		return nil, nil, err
	}
	if int64(len(data)) > o.cfg.MaxResponseSize {
		resp.Body.Close()
		return nil, nil, fmt.Errorf("http: response body exceeds cap %d", o.cfg.MaxResponseSize)
	}

	return resp, data, nil
}

func substitutePlaceholders(template string, urlcomp any) (string, error) {
	comp, _ := urlcomp.(map[string]any)
	result := template
	for k, v := range comp {
		s := fmt.Sprintf("%v", v)
		result = strings.ReplaceAll(result, "{"+k+"}", s)
	}
	return result, nil
}

func decodeJSON(body []byte, _ string) (any, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return string(body), nil
	}
	return v, nil
}

func decodeHTML(body []byte, _ string) (any, error) {
	node, err := xmltree.Parse(strings.NewReader(string(body)), xmltree.Options{HTML: true, MaxDepth: 256, MaxSize: int64(len(body)) + 1})
	if err != nil {
		return nil, err
	}
	return node, nil
}

func (o *Operator) Run(ctx context.Context, state envelope.State, input envelope.Input) (envelope.State, any) {
	return o.base.Run(ctx, state, input)
}
