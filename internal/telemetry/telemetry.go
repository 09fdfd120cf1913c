// Package telemetry wires OpenTelemetry tracing (exported to Google Cloud
// Trace) and bridges OpenTelemetry metrics into the Prometheus registry.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/canalenergetico/canal-web/internal/config"
)

// Providers are the installed tracer and meter providers.
type Providers struct {
	Tracer *sdktrace.TracerProvider
	Meter  *sdkmetric.MeterProvider
}

var (
	initOnce sync.Once
	provs    *Providers
	initErr  error
)

// newTraceExporter is swapped in tests; the real exporter needs GCP credentials.
var newTraceExporter = func(projectID string) (sdktrace.SpanExporter, error) {
	return texporter.New(texporter.WithProjectID(projectID))
}

// Init installs global providers tagged with cfg.ServiceName and the W3C
// propagators. Spans go to Cloud Trace when cfg.ProjectID is set; otel
// metrics (otelhttp server metrics among them) are served by /metrics.
// Repeated calls return the first providers.
func Init(ctx context.Context, cfg config.TelemetryConfig, opts ...sdktrace.TracerProviderOption) (*Providers, error) {
	initOnce.Do(func() {
		attrs := []resource.Option{resource.WithAttributes(semconv.ServiceName(cfg.ServiceName))}
		if cfg.ProjectID != "" {
			attrs = append(attrs, resource.WithAttributes(semconv.CloudProviderGCP, semconv.CloudAccountID(cfg.ProjectID)))
		}
		res, err := resource.New(ctx, attrs...)
		if err != nil {
			initErr = fmt.Errorf("failed to create resource: %w", err)
			return
		}

		all := []sdktrace.TracerProviderOption{
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		}
		if cfg.ProjectID != "" {
			exp, err := newTraceExporter(cfg.ProjectID)
			if err != nil {
				initErr = fmt.Errorf("failed to create google trace exporter: %w", err)
				return
			}
			all = append(all, sdktrace.WithBatcher(exp))
		}
		tp := sdktrace.NewTracerProvider(append(all, opts...)...)

		promExporter, err := otelprom.New(otelprom.WithRegisterer(prometheus.DefaultRegisterer))
		if err != nil {
			_ = tp.Shutdown(ctx)
			initErr = fmt.Errorf("failed to create prometheus exporter: %w", err)
			return
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(promExporter),
		)

		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
		otel.SetTextMapPropagator(
			propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
		)
		provs = &Providers{Tracer: tp, Meter: mp}
	})
	return provs, initErr
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer("github.com/canalenergetico/canal-web/" + name)
}

// Shutdown flushes pending spans and metrics. It is a no-op on nil.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.Tracer != nil {
		if err := p.Tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.Meter != nil {
		if err := p.Meter.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}
