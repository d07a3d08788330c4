package flowgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/invoicegraph/pkg/flowgraph/observability"
)

// testLogHandler captures log records as JSON lines.
type testLogHandler struct {
	buf *bytes.Buffer
}

func newTestLogHandler() *testLogHandler {
	return &testLogHandler{buf: &bytes.Buffer{}}
}

func (h *testLogHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *testLogHandler) Handle(_ context.Context, r slog.Record) error {
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})
	return json.NewEncoder(h.buf).Encode(data)
}

func (h *testLogHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *testLogHandler) WithGroup(string) slog.Handler      { return h }

func (h *testLogHandler) messages() []string {
	var msgs []string
	for _, line := range bytes.Split(h.buf.Bytes(), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(line, &m); err == nil {
			msgs = append(msgs, m["msg"].(string))
		}
	}
	return msgs
}

func twoStepGraph(t *testing.T) *CompiledGraph[Counter] {
	t.Helper()
	compiled, err := NewGraph[Counter]().
		AddNode("inc1", increment).
		AddNode("inc2", increment).
		AddEdge("inc1", "inc2").
		AddEdge("inc2", END).
		SetEntry("inc1").
		Compile()
	require.NoError(t, err)
	return compiled
}

func TestRun_WithRunLogger(t *testing.T) {
	h := newTestLogHandler()

	ctx := NewContext(context.Background(), WithContextRunID("email-1"))
	result, err := twoStepGraph(t).Run(ctx, Counter{}, WithRunLogger(slog.New(h)))

	require.NoError(t, err)
	assert.Equal(t, 2, result.Value)
	assert.Equal(t, []string{
		"graph run starting",
		"node starting", "node completed",
		"node starting", "node completed",
		"graph run completed",
	}, h.messages())
}

func TestRun_WithRunLogger_Error(t *testing.T) {
	h := newTestLogHandler()

	compiled, err := NewGraph[State]().
		AddNode("fail", makeFailingNode(errors.New("boom"))).
		AddEdge("fail", END).
		SetEntry("fail").
		Compile()
	require.NoError(t, err)

	_, err = compiled.Run(testCtx(), State{}, WithRunLogger(slog.New(h)))

	require.Error(t, err)
	assert.Equal(t, []string{"graph run starting", "node starting", "node failed", "graph run failed"}, h.messages())
}

func TestRun_WithoutLogger_IsSilent(t *testing.T) {
	_, err := twoStepGraph(t).Run(testCtx(), Counter{})
	require.NoError(t, err)
}

func TestRun_WithMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	recorder, err := observability.NewMetricsRecorderWithProvider(provider)
	require.NoError(t, err)

	_, err = twoStepGraph(t).Run(testCtx(), Counter{}, WithMetrics(recorder))
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var executions int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "flowgraph.node.executions" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				executions += dp.Value
			}
		}
	}
	assert.Equal(t, int64(2), executions)
}

func TestRun_WithTracing_SpansPerNode(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	var nodeSpan trace.SpanContext
	capture := func(ctx Context, s Counter) (Counter, error) {
		nodeSpan = trace.SpanContextFromContext(ctx)
		s.Value++
		return s, nil
	}

	compiled, err := NewGraph[Counter]().
		AddNode("capture", capture).
		AddEdge("capture", END).
		SetEntry("capture").
		Compile()
	require.NoError(t, err)

	_, err = compiled.Run(testCtx(), Counter{},
		WithSpanManager(observability.NewSpanManagerWithProvider(tp)),
		WithGraphName("reconciliation"))
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "flowgraph.node.capture", spans[0].Name)
	assert.Equal(t, "flowgraph.run", spans[1].Name)
	assert.True(t, nodeSpan.IsValid(), "node context should carry its span")
	assert.Equal(t, spans[0].SpanContext.SpanID(), nodeSpan.SpanID())
}

func TestRun_WithTracing_GlobalProvider(t *testing.T) {
	result, err := twoStepGraph(t).Run(testCtx(), Counter{}, WithTracing())

	require.NoError(t, err)
	assert.Equal(t, 2, result.Value)
}
