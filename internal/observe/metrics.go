// Package observe provides application-wide observability primitives for
// koushi: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all koushi metrics.
const meterName = "github.com/mianlab/koushi"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Gauges ---

	// ActiveSessions tracks the number of live interview sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- Counters ---

	// InboundMessages counts client messages by frame type. Use with
	// attribute.String("type", ...).
	InboundMessages metric.Int64Counter

	// AnswersFlushed counts persisted answers.
	AnswersFlushed metric.Int64Counter

	// ASRConnectAttempts counts transcription connect attempts. Use with
	// attribute.String("status", "ok"|"failed").
	ASRConnectAttempts metric.Int64Counter

	// ASRFragments counts delivered transcription fragments.
	ASRFragments metric.Int64Counter

	// PlannerFallbacks counts question plans served by the deterministic
	// template instead of the LLM.
	PlannerFallbacks metric.Int64Counter

	// ScoringJobs counts scoring jobs by outcome. Use with
	// attribute.String("status", "ok"|"failed").
	ScoringJobs metric.Int64Counter

	// ProctorInspections counts inspected frames by verdict. Use with
	// attribute.String("verdict", ...).
	ProctorInspections metric.Int64Counter

	// CheatEvents counts multi-person violations forwarded to candidates.
	CheatEvents metric.Int64Counter

	// --- Latency histograms ---

	// ScoringDuration tracks end-to-end scoring job latency.
	ScoringDuration metric.Float64Histogram

	// MuxDuration tracks clip finalisation latency.
	MuxDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...).
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Scoring
// jobs include an LLM round trip, so the upper buckets stretch to a minute.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("koushi.active_sessions",
		metric.WithDescription("Number of live interview sessions."),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.InboundMessages, err = m.Int64Counter("koushi.inbound.messages",
		metric.WithDescription("Total inbound client messages by frame type."),
	); err != nil {
		return nil, err
	}
	if met.AnswersFlushed, err = m.Int64Counter("koushi.answers.flushed",
		metric.WithDescription("Total persisted answers."),
	); err != nil {
		return nil, err
	}
	if met.ASRConnectAttempts, err = m.Int64Counter("koushi.asr.connect_attempts",
		metric.WithDescription("Total transcription connect attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.ASRFragments, err = m.Int64Counter("koushi.asr.fragments",
		metric.WithDescription("Total transcription fragments delivered to sessions."),
	); err != nil {
		return nil, err
	}
	if met.PlannerFallbacks, err = m.Int64Counter("koushi.planner.fallbacks",
		metric.WithDescription("Total question plans served by the deterministic fallback."),
	); err != nil {
		return nil, err
	}
	if met.ScoringJobs, err = m.Int64Counter("koushi.scoring.jobs",
		metric.WithDescription("Total scoring jobs by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ProctorInspections, err = m.Int64Counter("koushi.proctor.inspections",
		metric.WithDescription("Total inspected frames by verdict."),
	); err != nil {
		return nil, err
	}
	if met.CheatEvents, err = m.Int64Counter("koushi.proctor.cheat_events",
		metric.WithDescription("Total multi-person violations forwarded to candidates."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.ScoringDuration, err = m.Float64Histogram("koushi.scoring.duration",
		metric.WithDescription("End-to-end scoring job latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MuxDuration, err = m.Float64Histogram("koushi.mux.duration",
		metric.WithDescription("Clip finalisation latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("koushi.http.request.duration",
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

// RecordScoringJob records one finished scoring job with its outcome and
// duration in seconds.
func (m *Metrics) RecordScoringJob(ctx context.Context, status string, seconds float64) {
	m.ScoringJobs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.ScoringDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("status", status)))
}

// RecordInbound records one inbound client message by frame type.
func (m *Metrics) RecordInbound(ctx context.Context, frameType string) {
	m.InboundMessages.Add(ctx, 1, metric.WithAttributes(attribute.String("type", frameType)))
}
