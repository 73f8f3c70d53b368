package observe

import (
	"context"
	"errors"

	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig describes the telemetry identity and export targets for
// [InitProvider].
type ProviderConfig struct {
	// ServiceName is reported as service.name on every metric and span.
	// Defaults to "earshot".
	ServiceName string

	// ServiceVersion is reported as service.version. Typically the build
	// version stamped into the binary.
	ServiceVersion string

	// TraceExporter, when set, receives finished spans through a batch
	// processor. Left nil, spans stay local: correlation IDs and trace-aware
	// logging keep working, nothing leaves the process.
	TraceExporter sdktrace.SpanExporter
}

// InitProvider wires up the global OpenTelemetry providers: a meter provider
// backed by the Prometheus exporter bridge (scraped through /metrics) and a
// tracer provider with the optional span exporter from cfg. Every instrument
// created through [NewMetrics] or span started through [StartSpan] after this
// call flows into those providers.
//
// The returned shutdown function flushes both providers; defer it from main.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "earshot"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	var closers []func(context.Context) error

	promExp, err := promexporter.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)
	otel.SetMeterProvider(mp)
	closers = append(closers, mp.Shutdown)

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)
	closers = append(closers, tp.Shutdown)

	shutdown = func(ctx context.Context) error {
		var errs []error
		for _, close := range closers {
			if err := close(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	return shutdown, nil
}
