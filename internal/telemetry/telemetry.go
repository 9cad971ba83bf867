// Package telemetry installs the OpenTelemetry tracer and meter providers.
//
// When tracing or metrics are disabled the global no-op providers stay in
// place, so instrumented code never has to check.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// DefaultMetricInterval is how often metrics are exported.
const DefaultMetricInterval = 30 * time.Second

// Config selects which signals are exported and where.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Traces         bool
	Metrics        bool
	// Writer receives the exported data. Defaults to os.Stderr.
	Writer io.Writer
	// MetricInterval defaults to DefaultMetricInterval.
	MetricInterval time.Duration
}

// ShutdownFunc flushes and stops the installed providers.
type ShutdownFunc func(context.Context) error

// Setup installs the configured providers as the globals and returns a
// function that flushes them. The returned function is never nil.
func Setup(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	var shutdowns []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var errs []error
		for i := len(shutdowns) - 1; i >= 0; i-- {
			errs = append(errs, shutdowns[i](ctx))
		}
		return errors.Join(errs...)
	}

	if !cfg.Traces && !cfg.Metrics {
		return shutdown, nil
	}

	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	name := cfg.ServiceName
	if name == "" {
		name = "storefront"
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", name),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	if cfg.Traces {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return shutdown, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.TraceContext{})
		shutdowns = append(shutdowns, tp.Shutdown)
	}

	if cfg.Metrics {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			_ = shutdown(ctx)
			return func(context.Context) error { return nil }, fmt.Errorf("failed to create metric exporter: %w", err)
		}
		interval := cfg.MetricInterval
		if interval <= 0 {
			interval = DefaultMetricInterval
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		shutdowns = append(shutdowns, mp.Shutdown)
	}

	return shutdown, nil
}
