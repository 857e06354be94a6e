package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/nexus/internal/resource"
)

type ctxKey struct{}

// TracerFromCtx returns the tracer set for ctx, or a no-op tracer.
func TracerFromCtx(ctx context.Context) trace.Tracer {
	tracer, ok := ctx.Value(ctxKey{}).(trace.Tracer)
	if !ok {
		return trace.NewNoopTracerProvider().Tracer("")
	}
	return tracer
}

// SetTracer returns a context carrying tracer. A nil tracer stores a no-op tracer.
func SetTracer(ctx context.Context, tracer trace.Tracer) context.Context {
	if tracer == nil {
		tracer = trace.NewNoopTracerProvider().Tracer("")
	}
	if existing, ok := ctx.Value(ctxKey{}).(trace.Tracer); ok && existing == tracer {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, tracer)
}

// Start starts a span with the context's tracer.
func Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return TracerFromCtx(ctx).Start(ctx, spanName, opts...)
}

// RefAttributes describes a resource on a span.
func RefAttributes(ref resource.Ref) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrKeyResourceKind, string(ref.Kind)),
		attribute.String(AttrKeyResourceRef, ref.Path),
	}
}

// SetSpanError records err on the span in ctx, tagged with its error code.
func SetSpanError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String(AttrKeyErrorCode, resource.Code(err)))
	span.SetStatus(codes.Error, resource.Message(err))
}

// End finishes the span in ctx, recording *errp when set. Use as
//
//	ctx, span := tracing.Start(ctx, "store.update")
//	defer tracing.End(ctx, &err)
func End(ctx context.Context, errp *error) {
	if errp != nil && *errp != nil {
		SetSpanError(ctx, *errp)
	}
	trace.SpanFromContext(ctx).End()
}
