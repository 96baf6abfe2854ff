package telemetry

import (
	"fmt"
	"time"

	"github.com/senatoreg/pyfreeflow/adapter"
	"github.com/senatoreg/pyfreeflow/adapter/redis"
	"github.com/senatoreg/pyfreeflow/adapter/webhook"
	"github.com/senatoreg/pyfreeflow/envutil"
)

// Config selects and configures a single downstream adapter for a
// pipeline's telemetry sink. Exactly one of Webhook/Redis should be set;
// an empty Config disables downstream delivery (stats are still collected).
type Config struct {
	Webhook *webhook.Config
	Redis   *redis.Config
}

// BuildAdapter constructs the configured adapter.Adapter, or nil if cfg
// selects none.
func BuildAdapter(cfg Config) (adapter.Adapter, error) {
	switch {
	case cfg.Webhook != nil:
		a, err := webhook.New(*cfg.Webhook)
		if err != nil {
			return nil, fmt.Errorf("telemetry: webhook adapter: %w", err)
		}
		return a, nil
	case cfg.Redis != nil:
		a, err := redis.New(*cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("telemetry: redis adapter: %w", err)
		}
		return a, nil
	default:
		return nil, nil
	}
}

// DecodeConfig reads a pipeline document's optional "telemetry" block:
//
//	telemetry:
//	  webhook:
//	    url: https://...
//	    timeout: 5s
//	  redis:
//	    url: redis://...
//	    channel: pyfreeflow:run_completed
func DecodeConfig(raw map[string]any) Config {
	var cfg Config
	if wh, ok := raw["webhook"].(map[string]any); ok {
		c := webhook.Config{Headers: map[string]string{}}
		if v, ok := wh["url"].(string); ok {
			c.URL = envutil.ExpandEnv(v)
		}
		if v, ok := wh["timeout"].(string); ok && v != "" {
			if us, err := envutil.ParseDuration(v); err == nil {
				c.Timeout = time.Duration(us) * time.Microsecond
			}
		}
		if v, ok := wh["retries"].(int); ok {
			c.Retries = v
		}
		if h, ok := wh["headers"].(map[string]any); ok {
			for k, v := range h {
				if s, ok := v.(string); ok {
					c.Headers[k] = s
				}
			}
		}
		cfg.Webhook = &c
	}
	if rd, ok := raw["redis"].(map[string]any); ok {
		c := redis.Config{}
		if v, ok := rd["url"].(string); ok {
			c.URL = envutil.ExpandEnv(v)
		}
		if v, ok := rd["channel"].(string); ok {
			c.Channel = v
		}
		if v, ok := rd["timeout"].(string); ok && v != "" {
			if us, err := envutil.ParseDuration(v); err == nil {
				c.Timeout = time.Duration(us) * time.Microsecond
			}
		}
		if v, ok := rd["retries"].(int); ok {
			c.Retries = v
		}
		cfg.Redis = &c
	}
	return cfg
}
