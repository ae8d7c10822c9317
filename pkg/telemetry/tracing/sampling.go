package tracing

import (
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	// SamplerAlways samples all traces
	SamplerAlways = "always"

	// SamplerNever samples no traces
	SamplerNever = "never"

	// SamplerRatio samples a fraction of traces by trace ID
	SamplerRatio = "ratio"
)

// createSampler creates a parent-based sampler: a child follows its
// parent's decision, and root spans use the configured strategy.
func createSampler(strategy string, ratio float64) (sdktrace.Sampler, error) {
	var base sdktrace.Sampler

	switch strategy {
	case SamplerAlways:
		base = sdktrace.AlwaysSample()
	case SamplerNever:
		base = sdktrace.NeverSample()
	case SamplerRatio:
		if ratio < 0.0 || ratio > 1.0 {
			return nil, fmt.Errorf("sample ratio must be between 0.0 and 1.0, got %f", ratio)
		}
		base = sdktrace.TraceIDRatioBased(ratio)
	default:
		return nil, fmt.Errorf("unknown sampler strategy: %s (valid: always, never, ratio)", strategy)
	}

	return sdktrace.ParentBased(base), nil
}
