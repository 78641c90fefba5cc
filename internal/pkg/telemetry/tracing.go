package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope for spans created by this module.
const TracerName = "github.com/samirrijal/overlapscan"

// Span attribute keys.
const (
	AttrSource         = attribute.Key("overlapscan.source")
	AttrBBox           = attribute.Key("overlapscan.bbox")
	AttrTaskID         = attribute.Key("overlapscan.task_id")
	AttrFootprints     = attribute.Key("overlapscan.footprints")
	AttrPairs          = attribute.Key("overlapscan.pairs")
	AttrPairsExamined  = attribute.Key("overlapscan.pairs_examined")
	AttrTruncated      = attribute.Key("overlapscan.truncated")
	AttrGeometryErrors = attribute.Key("overlapscan.geometry_errors")
	AttrCacheHit       = attribute.Key("overlapscan.cache_hit")
)

// Tracer returns the module tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// InitTracer installs a global tracer provider exporting over OTLP/gRPC to endpoint
// (e.g. "tempo:4317"). The returned func flushes and stops the exporter.
func InitTracer(ctx context.Context, serviceName, endpoint string) (func(), error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}, nil
}
