// Package observe provides application-wide observability primitives for
// Earshot: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)


// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ClassifyDuration tracks sound-classifier inference latency.
	ClassifyDuration metric.Float64Histogram

	// --- Counters ---

	// IngestBursts counts audio bursts received from publishers. Use with
	// attribute: attribute.String("codec", ...)
	IngestBursts metric.Int64Counter

	// AnalysisFrames counts completed 15,600-sample analysis frames.
	AnalysisFrames metric.Int64Counter

	// DroppedFrames counts frames skipped because the classifier was still
	// busy with an earlier frame.
	DroppedFrames metric.Int64Counter

	// StaleResults counts classifier completions discarded because the
	// session they belonged to had already ended.
	StaleResults metric.Int64Counter

	// Detections counts accepted detections. Use with attribute:
	//   attribute.String("label", ...)
	Detections metric.Int64Counter

	// SpectrumSnapshots counts spectrum snapshots accepted by the sampler.
	SpectrumSnapshots metric.Int64Counter

	// --- Error counters ---

	// ClassifierErrors counts failed classifier calls. Use with attribute:
	//   attribute.String("reason", ...)
	ClassifierErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live listening sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActivePublishers tracks the number of connected audio publishers.
	ActivePublishers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// classifier round trips, which dominate pipeline latency.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(scopeName)
	var err error
	met := &Metrics{}

	if met.ClassifyDuration, err = m.Float64Histogram("earshot.classify.duration",
		metric.WithDescription("Latency of sound classifier inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.IngestBursts, err = m.Int64Counter("earshot.ingest.bursts",
		metric.WithDescription("Total audio bursts received, by codec."),
	); err != nil {
		return nil, err
	}
	if met.AnalysisFrames, err = m.Int64Counter("earshot.analysis.frames",
		metric.WithDescription("Total completed analysis frames."),
	); err != nil {
		return nil, err
	}
	if met.DroppedFrames, err = m.Int64Counter("earshot.classify.dropped_frames",
		metric.WithDescription("Frames skipped while the classifier was busy."),
	); err != nil {
		return nil, err
	}
	if met.StaleResults, err = m.Int64Counter("earshot.classify.stale_results",
		metric.WithDescription("Classifier completions discarded after session end."),
	); err != nil {
		return nil, err
	}
	if met.Detections, err = m.Int64Counter("earshot.detections",
		metric.WithDescription("Accepted detections by label."),
	); err != nil {
		return nil, err
	}
	if met.SpectrumSnapshots, err = m.Int64Counter("earshot.spectrum.snapshots",
		metric.WithDescription("Spectrum snapshots accepted by the sampler."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ClassifierErrors, err = m.Int64Counter("earshot.classifier.errors",
		metric.WithDescription("Failed classifier calls by reason."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("earshot.active_sessions",
		metric.WithDescription("Number of live listening sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActivePublishers, err = m.Int64UpDownCounter("earshot.active_publishers",
		metric.WithDescription("Number of connected audio publishers."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("earshot.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordClassify records one classifier round trip with its latency and
// outcome status ("ok", "error", "timeout", or "shed").
func (m *Metrics) RecordClassify(ctx context.Context, elapsed time.Duration, status string) {
	m.ClassifyDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordBurst records one received audio burst for the given codec.
func (m *Metrics) RecordBurst(ctx context.Context, codec string) {
	m.IngestBursts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("codec", codec)),
	)
}

// RecordDetections records n accepted detections for one label.
func (m *Metrics) RecordDetections(ctx context.Context, label string, n int64) {
	m.Detections.Add(ctx, n,
		metric.WithAttributes(attribute.String("label", label)),
	)
}

// RecordClassifierError records one failed classifier call.
func (m *Metrics) RecordClassifierError(ctx context.Context, reason string) {
	m.ClassifierErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}
