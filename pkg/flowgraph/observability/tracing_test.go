package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestSpans(t *testing.T) (SpanManager, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	return NewSpanManagerWithProvider(tp), exporter
}

func attrString(stub tracetest.SpanStub, key attribute.Key) string {
	for _, kv := range stub.Attributes {
		if kv.Key == key {
			return kv.Value.AsString()
		}
	}
	return ""
}

func TestSpanManager_RunAndNodeSpans(t *testing.T) {
	spans, exporter := newTestSpans(t)

	ctx, runSpan := spans.StartRunSpan(context.Background(), "reconciliation", "email-5")
	_, nodeSpan := spans.StartNodeSpan(ctx, "finance_clerk")
	spans.EndSpanWithError(nodeSpan, nil)
	spans.EndSpanWithError(runSpan, nil)

	stubs := exporter.GetSpans()
	require.Len(t, stubs, 2)

	node, run := stubs[0], stubs[1]
	assert.Equal(t, "flowgraph.node.finance_clerk", node.Name)
	assert.Equal(t, "finance_clerk", attrString(node, "node.id"))
	assert.Equal(t, "flowgraph.run", run.Name)
	assert.Equal(t, "reconciliation", attrString(run, "graph.name"))
	assert.Equal(t, "email-5", attrString(run, "run.id"))
	assert.Equal(t, run.SpanContext.SpanID(), node.Parent.SpanID())
	assert.Equal(t, codes.Ok, run.Status.Code)
}

func TestSpanManager_EndSpanWithError(t *testing.T) {
	spans, exporter := newTestSpans(t)

	_, span := spans.StartNodeSpan(context.Background(), "call_invoice_db_update_tool")
	spans.EndSpanWithError(span, errors.New("no rows"))

	stubs := exporter.GetSpans()
	require.Len(t, stubs, 1)
	assert.Equal(t, codes.Error, stubs[0].Status.Code)
	assert.Equal(t, "no rows", stubs[0].Status.Description)
	require.NotEmpty(t, stubs[0].Events)
	assert.Equal(t, "exception", stubs[0].Events[0].Name)
}

func TestSpanManager_AddSpanEvent(t *testing.T) {
	spans, exporter := newTestSpans(t)

	ctx, span := spans.StartNodeSpan(context.Background(), "clerk")
	spans.AddSpanEvent(ctx, "tool_requested", attribute.String("tool", "ocr_tool"))
	spans.EndSpanWithError(span, nil)

	stubs := exporter.GetSpans()
	require.Len(t, stubs, 1)
	require.Len(t, stubs[0].Events, 1)
	assert.Equal(t, "tool_requested", stubs[0].Events[0].Name)

	assert.NotPanics(t, func() {
		spans.AddSpanEvent(context.Background(), "no span")
	})
}

func TestNoopSpanManager(t *testing.T) {
	var spans SpanManager = NoopSpanManager{}
	ctx := context.Background()

	got, span := spans.StartRunSpan(ctx, "g", "r")
	assert.Equal(t, ctx, got)
	assert.False(t, span.IsRecording())

	assert.NotPanics(t, func() {
		spans.EndSpanWithError(span, errors.New("x"))
		spans.AddSpanEvent(ctx, "e")
	})
}
