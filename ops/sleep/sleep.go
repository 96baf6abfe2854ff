// Package sleep implements the pacing operators SleepOperator and
// RandomSleepOperator, both of which suspend the node and pass their
// input through unchanged.
package sleep

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/senatoreg/pyfreeflow/envelope"
	"github.com/senatoreg/pyfreeflow/operator"
	"github.com/senatoreg/pyfreeflow/registry"
)

// SleepTypeName is the fixed-duration sleep operator's registry typename.
const SleepTypeName = "SleepOperator"

// RandomSleepTypeName is the random-duration sleep operator's typename.
const RandomSleepTypeName = "RandomSleepOperator"

// Version is shared by both operators.
const Version = "1.0"

// Operator suspends for a fixed or randomized duration, then passes its
// input value through unchanged.
type Operator struct {
	base     operator.Base
	min, max time.Duration
}

// Register installs both sleep operator factories into reg.
func Register(reg *registry.Registry) {
	reg.Register(SleepTypeName, Version, func(name string, config map[string]any) (any, error) {
		d := durationFromConfig(config, "sleep", 5*time.Second)
		o := &Operator{min: d, max: d}
		o.base = operator.Base{Impl: o, MaxTasks: maxTasksFromConfig(config)}
		return o, nil
	})
	reg.Register(RandomSleepTypeName, Version, func(name string, config map[string]any) (any, error) {
		min := durationFromConfig(config, "sleep_min", 5*time.Second)
		max := durationFromConfig(config, "sleep_max", 10*time.Second)
		o := &Operator{min: min, max: max}
		o.base = operator.Base{Impl: o, MaxTasks: maxTasksFromConfig(config)}
		return o, nil
	})
}

func durationFromConfig(config map[string]any, key string, def time.Duration) time.Duration {
	if v, ok := config[key]; ok {
		switch t := v.(type) {
		case int:
			return time.Duration(t) * time.Second
		case float64:
			return time.Duration(t) * time.Second
		}
	}
	return def
}

func maxTasksFromConfig(config map[string]any) int {
	if v, ok := config["max_tasks"].(int); ok && v > 0 {
		return v
	}
	return 4
}

func (o *Operator) Do(ctx context.Context, state envelope.State, value any) (envelope.State, envelope.Envelope) {
	d := o.min
	if o.max > o.min {
		span, err := rand.Int(rand.Reader, big.NewInt(int64(o.max-o.min)))
		if err == nil {
			d = o.min + time.Duration(span.Int64())
		}
	}

	select {
	case <-time.After(d):
	case <-ctx.Done():
		return state, envelope.Fail(envelope.CodeTimeout)
	}

	return state, envelope.New(value)
}

func (o *Operator) Run(ctx context.Context, state envelope.State, input envelope.Input) (envelope.State, any) {
	return o.base.Run(ctx, state, input)
}
