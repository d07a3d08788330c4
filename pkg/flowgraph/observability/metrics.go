package observability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope used for all instruments.
const MeterName = "invoicegraph"

// MetricsRecorder records graph and pipeline metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records a node execution with its duration and error status.
	RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error)

	// RecordGraphRun records a graph run completion.
	RecordGraphRun(ctx context.Context, success bool, duration time.Duration)

	// RecordTokenUsage records the tokens and cost of one model call.
	RecordTokenUsage(ctx context.Context, model string, promptTokens, completionTokens int64, cost float64)

	// RecordDocument records the final status of one processed document.
	RecordDocument(ctx context.Context, status string, attempts int, duration time.Duration)
}

type otelMetrics struct {
	nodeExecutions metric.Int64Counter
	nodeLatency    metric.Float64Histogram
	nodeErrors     metric.Int64Counter
	graphRuns      metric.Int64Counter
	graphLatency   metric.Float64Histogram
	tokens         metric.Int64Counter
	cost           metric.Float64Counter
	documents      metric.Int64Counter
	attempts       metric.Int64Histogram
}

// NewMetricsRecorder returns a MetricsRecorder backed by the global
// meter provider. If instrument creation fails, a no-op recorder is returned.
//
// Configure the provider first:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := NewMetricsRecorderWithProvider(otel.GetMeterProvider())
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// NewMetricsRecorderWithProvider creates the instruments on a specific provider.
func NewMetricsRecorderWithProvider(provider metric.MeterProvider) (MetricsRecorder, error) {
	meter := provider.Meter(MeterName)
	m := &otelMetrics{}
	var err error

	if m.nodeExecutions, err = meter.Int64Counter("flowgraph.node.executions",
		metric.WithDescription("Number of node executions")); err != nil {
		return nil, err
	}
	if m.nodeLatency, err = meter.Float64Histogram("flowgraph.node.latency_ms",
		metric.WithDescription("Node execution latency in milliseconds"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.nodeErrors, err = meter.Int64Counter("flowgraph.node.errors",
		metric.WithDescription("Number of node execution errors")); err != nil {
		return nil, err
	}
	if m.graphRuns, err = meter.Int64Counter("flowgraph.graph.runs",
		metric.WithDescription("Number of graph runs")); err != nil {
		return nil, err
	}
	if m.graphLatency, err = meter.Float64Histogram("flowgraph.graph.latency_ms",
		metric.WithDescription("Graph run latency in milliseconds"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.tokens, err = meter.Int64Counter("llm.tokens",
		metric.WithDescription("Model tokens consumed"),
		metric.WithUnit("{token}")); err != nil {
		return nil, err
	}
	if m.cost, err = meter.Float64Counter("llm.cost",
		metric.WithDescription("Estimated model cost"),
		metric.WithUnit("USD")); err != nil {
		return nil, err
	}
	if m.documents, err = meter.Int64Counter("batch.documents",
		metric.WithDescription("Documents processed by final status")); err != nil {
		return nil, err
	}
	if m.attempts, err = meter.Int64Histogram("batch.attempts",
		metric.WithDescription("Attempts needed per document")); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *otelMetrics) RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("node_id", nodeID))

	m.nodeExecutions.Add(ctx, 1, attrs)
	m.nodeLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		m.nodeErrors.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordGraphRun(ctx context.Context, success bool, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	m.graphRuns.Add(ctx, 1, attrs)
	m.graphLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
}

func (m *otelMetrics) RecordTokenUsage(ctx context.Context, model string, promptTokens, completionTokens int64, cost float64) {
	m.tokens.Add(ctx, promptTokens, metric.WithAttributes(
		attribute.String("model", model), attribute.String("kind", "prompt")))
	m.tokens.Add(ctx, completionTokens, metric.WithAttributes(
		attribute.String("model", model), attribute.String("kind", "completion")))
	if cost > 0 {
		m.cost.Add(ctx, cost, metric.WithAttributes(attribute.String("model", model)))
	}
}

func (m *otelMetrics) RecordDocument(ctx context.Context, status string, attempts int, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.documents.Add(ctx, 1, attrs)
	m.attempts.Record(ctx, int64(attempts), attrs)
}
