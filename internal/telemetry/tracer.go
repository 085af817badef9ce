// Package telemetry bootstraps the OpenTelemetry SDK (traces and metrics)
// and registers the Prometheus metric set that the handler package serves
// at /metrics alongside the OTLP push pipeline.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// InitTracer bootstraps the OpenTelemetry TracerProvider with an OTLP/gRPC
// span exporter targeting the given endpoint (e.g. "otel-collector:4317").
// Spans are batched and flushed periodically via a BatchSpanProcessor.
// The caller must defer tp.Shutdown(ctx) to flush pending spans.
func InitTracer(ctx context.Context, serviceName string, endpoint string) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp, nil
}
