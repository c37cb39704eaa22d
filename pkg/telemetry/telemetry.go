package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/thoughtforge/thoughtsync/pkg/config"
)

const instrumentationName = "github.com/thoughtforge/thoughtsync"

// Init wires OpenTelemetry with Jaeger and Prometheus exporters and returns
// a shutdown func. When telemetry is disabled the global no-op providers stay
// in place and every span/counter call is free.
func Init(cfg *config.TelemetryConfig, logger *zap.Logger) (func(), error) {
	if !cfg.Enabled {
		logger.Info("Telemetry disabled")
		return func() {}, nil
	}

	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion("0.1.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var shutdownFuncs []func(context.Context) error

	if cfg.JaegerURL != "" {
		jaegerExporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerURL)))
		if err != nil {
			return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(jaegerExporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		shutdownFuncs = append(shutdownFuncs, tp.Shutdown)

		logger.Info("Jaeger exporter initialized", zap.String("url", cfg.JaegerURL))
	}

	if cfg.PrometheusEnabled {
		exporter, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
		}

		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(exporter),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		shutdownFuncs = append(shutdownFuncs, mp.Shutdown)

		logger.Info("Prometheus exporter initialized", zap.Int("port", cfg.PrometheusPort))
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, fn := range shutdownFuncs {
			if err := fn(shutdownCtx); err != nil {
				logger.Error("Error shutting down telemetry", zap.Error(err))
			}
		}
	}, nil
}

// MetricsHandler serves the Prometheus registry the exporter writes to.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// Tracer returns the process tracer. It resolves through the global provider
// on every call so spans started before Init are still valid no-ops.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartSpan starts a new span
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// Counters groups the domain counters exported to Prometheus.
type Counters struct {
	DedupHits         metric.Int64Counter
	Timeouts          metric.Int64Counter
	ThoughtsMigrated  metric.Int64Counter
	FavoritesMigrated metric.Int64Counter
	RateLimited       metric.Int64Counter
}

var (
	countersOnce sync.Once
	counters     *Counters
)

// Metrics returns the shared counters, creating them on first use.
func Metrics() *Counters {
	countersOnce.Do(func() {
		meter := otel.Meter(instrumentationName)
		counters = &Counters{
			DedupHits:         mustCounter(meter, "governor.dedup_hits", "Remote calls served by an in-flight or lingering entry"),
			Timeouts:          mustCounter(meter, "governor.timeouts", "Remote calls abandoned at their deadline"),
			ThoughtsMigrated:  mustCounter(meter, "sync.thoughts_migrated", "Local thoughts moved to the remote backend"),
			FavoritesMigrated: mustCounter(meter, "sync.favorites_migrated", "Local favorites moved to the remote backend"),
			RateLimited:       mustCounter(meter, "ratelimit.rejected", "Template generations rejected by the rate limiter"),
		}
	})
	return counters
}

func mustCounter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		// the API only fails on invalid names, which are constants here
		panic(fmt.Sprintf("telemetry: counter %s: %v", name, err))
	}
	return c
}
