package flowgraph

import (
	"log/slog"

	"github.com/randalmurphal/invoicegraph/pkg/flowgraph/observability"
)

// DefaultMaxSteps bounds the number of node executions in one run.
const DefaultMaxSteps = 150

// runConfig holds configuration for graph execution.
type runConfig struct {
	maxSteps  int
	runID     string
	graphName string

	logger         *slog.Logger
	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
	tracingEnabled bool
}

// defaultRunConfig returns the default execution configuration.
// Logging is off until WithRunLogger is given; metrics and spans are no-ops.
func defaultRunConfig() runConfig {
	return runConfig{
		maxSteps:  DefaultMaxSteps,
		graphName: "flowgraph",
		metrics:   observability.NoopMetrics{},
		spans:     observability.NoopSpanManager{},
	}
}

// RunOption configures execution behavior.
type RunOption func(*runConfig)

// WithMaxSteps sets the maximum number of node executions.
// Default: 150
//
// A run that would execute more nodes than this fails with a
// *StepLimitError carrying the state at termination.
//
// Example:
//
//	result, err := compiled.Run(ctx, state, flowgraph.WithMaxSteps(40))
func WithMaxSteps(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.maxSteps = n
		}
	}
}

// WithRunID overrides the run identifier used for logs and spans.
// Defaults to the Context's RunID.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}

// WithGraphName names the graph in run spans.
func WithGraphName(name string) RunOption {
	return func(c *runConfig) {
		if name != "" {
			c.graphName = name
		}
	}
}

// WithRunLogger enables run and node lifecycle logging.
func WithRunLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// WithMetrics records node and run metrics through the given recorder.
// Pass observability.NewMetricsRecorder() for OpenTelemetry.
func WithMetrics(recorder observability.MetricsRecorder) RunOption {
	return func(c *runConfig) {
		if recorder != nil {
			c.metrics = recorder
		}
	}
}

// WithTracing enables a span per run and per node using OpenTelemetry.
func WithTracing() RunOption {
	return WithSpanManager(observability.NewSpanManager())
}

// WithSpanManager enables tracing with a custom span manager.
func WithSpanManager(spans observability.SpanManager) RunOption {
	return func(c *runConfig) {
		if spans != nil {
			c.spans = spans
			c.tracingEnabled = true
		}
	}
}
