package flowgraph

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/randalmurphal/invoicegraph/pkg/flowgraph/observability"
)

func TestDefaultRunConfig(t *testing.T) {
	cfg := defaultRunConfig()

	assert.Equal(t, DefaultMaxSteps, cfg.maxSteps)
	assert.Equal(t, 150, cfg.maxSteps)
	assert.Nil(t, cfg.logger)
	assert.IsType(t, observability.NoopMetrics{}, cfg.metrics)
	assert.False(t, cfg.tracingEnabled)
}

func TestWithMaxSteps(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{name: "positive", in: 40, want: 40},
		{name: "one", in: 1, want: 1},
		{name: "zero keeps default", in: 0, want: DefaultMaxSteps},
		{name: "negative keeps default", in: -3, want: DefaultMaxSteps},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultRunConfig()
			WithMaxSteps(tt.in)(&cfg)
			assert.Equal(t, tt.want, cfg.maxSteps)
		})
	}
}

func TestObservabilityOptions(t *testing.T) {
	cfg := defaultRunConfig()
	logger := slog.Default()

	for _, opt := range []RunOption{
		WithRunLogger(logger),
		WithRunID("email-9"),
		WithGraphName("reconciliation"),
		WithSpanManager(observability.NoopSpanManager{}),
		WithMetrics(nil),
	} {
		opt(&cfg)
	}

	assert.Same(t, logger, cfg.logger)
	assert.Equal(t, "email-9", cfg.runID)
	assert.Equal(t, "reconciliation", cfg.graphName)
	assert.True(t, cfg.tracingEnabled)
	assert.IsType(t, observability.NoopMetrics{}, cfg.metrics)
}
