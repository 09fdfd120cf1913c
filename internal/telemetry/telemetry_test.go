package telemetry

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/canalenergetico/canal-web/internal/config"
)

// Init runs once per process, so one test covers the installed providers.
func TestInitExportsSpansAndMetrics(t *testing.T) {
	ctx := context.Background()
	exported := tracetest.NewInMemoryExporter()
	var project string
	newTraceExporter = func(projectID string) (sdktrace.SpanExporter, error) {
		project = projectID
		return exported, nil
	}

	provs, err := Init(ctx, config.TelemetryConfig{Enabled: true, ServiceName: "canal-web-test", ProjectID: "canal-prod"})
	require.NoError(t, err)
	require.NotNil(t, provs)
	assert.Equal(t, "canal-prod", project)

	again, err := Init(ctx, config.TelemetryConfig{ServiceName: "ignored"})
	require.NoError(t, err)
	assert.Same(t, provs, again)
	assert.Same(t, provs.Tracer, otel.GetTracerProvider())

	_, span := Tracer("test").Start(ctx, "unit")
	span.End()
	require.NoError(t, provs.Tracer.ForceFlush(ctx))
	spans := exported.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "unit", spans[0].Name)

	counter, err := otel.Meter("test").Int64Counter("telemetry_check")
	require.NoError(t, err)
	counter.Add(ctx, 2)
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "telemetry_check_total")

	require.NoError(t, provs.Shutdown(ctx))
}

func TestShutdownNil(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
}
