// Package tracing configures OpenTelemetry and offers a small span helper
// used by repositories, the executor and services.
package tracing

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "github.com/iliyamo/anythought"

type Options struct {
	Endpoint     string // OTLP gRPC endpoint; empty disables export
	ServiceName  string
	Environment  string
	SamplingRate float64
	BatchTimeout time.Duration
}

// Setup installs a global tracer provider exporting over OTLP gRPC.  With no
// endpoint it leaves the no-op provider in place.  The returned function
// flushes and stops the provider.
func Setup(ctx context.Context, opt Options) (func(context.Context) error, error) {
	if opt.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	if opt.SamplingRate <= 0 {
		opt.SamplingRate = 1
	}
	if opt.BatchTimeout <= 0 {
		opt.BatchTimeout = 5 * time.Second
	}

	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(opt.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create otlp exporter")
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", opt.ServiceName),
			attribute.String("environment", opt.Environment),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create trace resource")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opt.SamplingRate))),
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(opt.BatchTimeout)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tp.Shutdown, nil
}

// Start opens a span named after the operation, e.g. "UserRepo.Create".
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentation).Start(ctx, name, trace.WithAttributes(attrs...))
}

// End records err on span (if any) and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
