// Package observe carries the observability plumbing of speechscore:
// OpenTelemetry metrics exported to Prometheus, tracing, context-aware
// structured logging, and the HTTP middleware that ties them to requests.
//
// [Setup] installs the SDK providers at startup. Code records through a
// [Metrics] value; production uses [DefaultMetrics], tests build their own
// with [NewMetrics] on a manual reader.
package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of every speechscore instrument.
const meterName = "github.com/MrWong99/speechscore"

// Provider kinds, used as the "kind" attribute and to pick a latency
// histogram in [Metrics.RecordProviderCall].
const (
	KindSTT = "stt"
	KindLLM = "llm"
	KindTTS = "tts"
)

// Metrics holds the application's instruments. Fields may be used directly;
// the Record helpers keep attribute names consistent.
type Metrics struct {
	// Upstream latency per provider kind, attribute "stage" ("score",
	// "segment", ...).
	STTDuration metric.Float64Histogram
	LLMDuration metric.Float64Histogram
	TTSDuration metric.Float64Histogram

	// ProviderRequests has attributes kind, stage and status ("ok"/"error").
	ProviderRequests metric.Int64Counter
	// ProviderErrors has attributes kind and cause.
	ProviderErrors metric.Int64Counter

	// ScoreDuration times whole scoring runs, attribute "status".
	ScoreDuration metric.Float64Histogram
	ActiveScores  metric.Int64UpDownCounter

	// SegmentCount has attribute "outcome" ("scored"/"skipped").
	SegmentCount metric.Int64Counter

	// BreakerTransitions has attributes breaker and state.
	BreakerTransitions metric.Int64Counter

	// HTTPRequestDuration has attributes method, route and status.
	HTTPRequestDuration metric.Float64Histogram
}

// Upstream calls on a full presentation can take minutes.
var providerBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

var scoreBuckets = []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200}

// builder creates instruments on one meter and keeps every creation error.
type builder struct {
	meter metric.Meter
	errs  []error
}

func (b *builder) check(name string, err error) {
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("%s: %w", name, err))
	}
}

func (b *builder) histogram(name, desc string, buckets []float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit("s")}
	if buckets != nil {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := b.meter.Float64Histogram(name, opts...)
	b.check(name, err)
	return h
}

func (b *builder) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	b.check(name, err)
	return c
}

func (b *builder) gauge(name, desc string) metric.Int64UpDownCounter {
	g, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	b.check(name, err)
	return g
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := &builder{meter: mp.Meter(meterName)}
	m := &Metrics{
		STTDuration: b.histogram("speechscore.stt.duration", "Speech-to-text call latency.", providerBuckets),
		LLMDuration: b.histogram("speechscore.llm.duration", "LLM completion latency.", providerBuckets),
		TTSDuration: b.histogram("speechscore.tts.duration", "Text-to-speech call latency.", providerBuckets),

		ProviderRequests: b.counter("speechscore.provider.requests", "Upstream calls by kind, stage and status."),
		ProviderErrors:   b.counter("speechscore.provider.errors", "Failed upstream calls by kind and cause."),

		ScoreDuration: b.histogram("speechscore.score.duration", "End-to-end presentation scoring latency.", scoreBuckets),
		ActiveScores:  b.gauge("speechscore.scores.active", "Scoring runs in flight."),
		SegmentCount:  b.counter("speechscore.segment.count", "Analyzed time windows by outcome."),

		BreakerTransitions:  b.counter("speechscore.breaker.transitions", "Circuit breaker transitions by breaker and new state."),
		HTTPRequestDuration: b.histogram("speechscore.http.request.duration", "HTTP request latency by method, route and status.", nil),
	}
	if err := errors.Join(b.errs...); err != nil {
		return nil, fmt.Errorf("observe: create instruments: %w", err)
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics] on the global meter
// provider, creating it on first use.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		if defaultMetrics, err = NewMetrics(otel.GetMeterProvider()); err != nil {
			panic(err)
		}
	})
	return defaultMetrics
}

// RecordProviderCall records one upstream call of kind made during stage.
// cause is empty for a successful call and the error class otherwise.
func (m *Metrics) RecordProviderCall(ctx context.Context, kind, stage string, elapsed time.Duration, cause string) {
	var h metric.Float64Histogram
	switch kind {
	case KindSTT:
		h = m.STTDuration
	case KindLLM:
		h = m.LLMDuration
	case KindTTS:
		h = m.TTSDuration
	}
	if h != nil {
		h.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
	}

	status := "ok"
	if cause != "" {
		status = "error"
		m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("cause", cause)))
	}
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("stage", stage),
		attribute.String("status", status)))
}

// RecordSegment counts one analyzed window.
func (m *Metrics) RecordSegment(ctx context.Context, outcome string) {
	m.SegmentCount.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordScore records a finished scoring run.
func (m *Metrics) RecordScore(ctx context.Context, status string, seconds float64) {
	m.ScoreDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("status", status)))
}

// RecordBreakerTransition counts a breaker entering state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, state string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", breaker),
		attribute.String("state", state)))
}
