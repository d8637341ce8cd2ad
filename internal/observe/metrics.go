// Package observe provides application-wide observability primitives for
// Auricle: OpenTelemetry metrics, distributed tracing, structured logging,
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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Auricle metrics.
const meterName = "github.com/auricle-audio/auricle"

// Metrics holds all OpenTelemetry metric instruments for the engine.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text inference latency per push/flush.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks LLM call latency. Use with attribute:
	//   attribute.String("phase", "map"|"reduce"|"extract")
	LLMDuration metric.Float64Histogram

	// --- Counters ---

	// AudioSeconds accumulates ingested audio duration in capture-rate seconds.
	AudioSeconds metric.Float64Counter

	// Segments counts transcript segments emitted by STT backends. Use with
	// attribute: attribute.String("provider", ...)
	Segments metric.Int64Counter

	// Chunks counts transcript chunks sealed for the MAP phase.
	Chunks metric.Int64Counter

	// SessionsCompleted counts finished sessions. Use with attribute:
	//   attribute.String("status", "completed"|"insufficient_content"|"failed")
	SessionsCompleted metric.Int64Counter

	// --- Error counters ---

	// EngineErrors counts errors surfaced to clients. Use with attribute:
	//   attribute.String("code", ...)
	EngineErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live recording sessions.
	ActiveSessions metric.Int64UpDownCounter

	// MapQueueDepth tracks pending MAP work across all sessions.
	MapQueueDepth metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). STT
// windows and local LLM calls both land in the 0.1–10 s range on CPU.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("auricle.stt.duration",
		metric.WithDescription("Latency of speech-to-text inference per window."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("auricle.llm.duration",
		metric.WithDescription("Latency of LLM calls by phase."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.AudioSeconds, err = m.Float64Counter("auricle.audio.seconds",
		metric.WithDescription("Total ingested audio duration in capture-rate seconds."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.Segments, err = m.Int64Counter("auricle.stt.segments",
		metric.WithDescription("Total transcript segments emitted by provider."),
	); err != nil {
		return nil, err
	}
	if met.Chunks, err = m.Int64Counter("auricle.transcript.chunks",
		metric.WithDescription("Total transcript chunks sealed for the MAP phase."),
	); err != nil {
		return nil, err
	}
	if met.SessionsCompleted, err = m.Int64Counter("auricle.sessions.completed",
		metric.WithDescription("Total finished sessions by terminal status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.EngineErrors, err = m.Int64Counter("auricle.engine.errors",
		metric.WithDescription("Total errors surfaced to clients by error code."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("auricle.active_sessions",
		metric.WithDescription("Number of live recording sessions."),
	); err != nil {
		return nil, err
	}
	if met.MapQueueDepth, err = m.Int64UpDownCounter("auricle.map_queue.depth",
		metric.WithDescription("Pending MAP work across all sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("auricle.http.request.duration",
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordLLMCall records one LLM call's latency under its pipeline phase.
func (m *Metrics) RecordLLMCall(ctx context.Context, phase string, seconds float64) {
	m.LLMDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("phase", phase)),
	)
}

// RecordSegments records segments emitted by an STT provider.
func (m *Metrics) RecordSegments(ctx context.Context, provider string, n int) {
	if n == 0 {
		return
	}
	m.Segments.Add(ctx, int64(n),
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordSessionEnd records a session reaching a terminal status.
func (m *Metrics) RecordSessionEnd(ctx context.Context, status string) {
	m.SessionsCompleted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordEngineError records an error surfaced to a client by its code.
func (m *Metrics) RecordEngineError(ctx context.Context, code string) {
	m.EngineErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("code", code)),
	)
}
