package observe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Trace exporter names accepted by [NewTraceExporter].
const (
	TraceExporterNone   = "none"
	TraceExporterStdout = "stdout"
	TraceExporterOTLP   = "otlp"
)

// TraceExporterConfig selects and configures a span exporter.
type TraceExporterConfig struct {
	// Kind is one of "none", "stdout" or "otlp". Empty means "none".
	Kind string

	// Endpoint is the OTLP gRPC collector address (host:port).
	Endpoint string

	// Insecure disables TLS for the OTLP connection.
	Insecure bool

	// Writer receives stdout spans. Default: os.Stdout.
	Writer io.Writer
}

// NewTraceExporter builds the span exporter named by cfg.Kind, or nil for
// "none".
func NewTraceExporter(ctx context.Context, cfg TraceExporterConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Kind {
	case "", TraceExporterNone:
		return nil, nil
	case TraceExporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		return stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	case TraceExporterOTLP:
		if cfg.Endpoint == "" {
			return nil, errors.New("observe: otlp trace exporter needs an endpoint")
		}
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("observe: unknown trace exporter %q", cfg.Kind)
	}
}

// SetupConfig configures [Setup].
type SetupConfig struct {
	ServiceName    string // default "speechscore"
	ServiceVersion string

	// Traces selects the span exporter. With "none" spans are still created,
	// so correlation IDs keep working, but nothing leaves the process.
	Traces TraceExporterConfig

	// SampleRatio is the fraction of root traces kept. Zero or anything
	// above one keeps all of them.
	SampleRatio float64

	// Registerer receives the OTel metrics. Default:
	// prometheus.DefaultRegisterer, which [MetricsHandler] serves.
	Registerer prometheus.Registerer
}

// Telemetry owns the SDK providers installed by [Setup].
type Telemetry struct {
	meters   *sdkmetric.MeterProvider
	tracers  *sdktrace.TracerProvider
	exporter string
}

// Setup installs global meter and tracer providers. Metrics go to the
// default Prometheus registry, served by [MetricsHandler]; spans go to the
// exporter chosen in cfg.Traces.
func Setup(ctx context.Context, cfg SetupConfig) (*Telemetry, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "speechscore"
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}

	spans, err := NewTraceExporter(ctx, cfg.Traces)
	if err != nil {
		return nil, err
	}
	var promOpts []promexporter.Option
	if cfg.Registerer != nil {
		promOpts = append(promOpts, promexporter.WithRegisterer(cfg.Registerer))
	}
	prom, err := promexporter.New(promOpts...)
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}

	t := &Telemetry{
		meters:   sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(prom)),
		exporter: cfg.Traces.Kind,
	}
	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
	}
	if spans != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(spans))
	}
	t.tracers = sdktrace.NewTracerProvider(tpOpts...)

	otel.SetMeterProvider(t.meters)
	otel.SetTracerProvider(t.tracers)
	return t, nil
}

func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// TraceExporter reports the configured exporter kind.
func (t *Telemetry) TraceExporter() string {
	if t.exporter == "" {
		return TraceExporterNone
	}
	return t.exporter
}

// Shutdown flushes pending spans and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		t.tracers.Shutdown(ctx),
		t.meters.Shutdown(ctx),
	)
}

// MetricsHandler serves the Prometheus registry [Setup] exports to.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
