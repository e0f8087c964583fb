package timing

import (
	"context"

	"github.com/gwos/unit/duration"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TraceAttrOption defines option to set span attribute
type TraceAttrOption func(span trace.Span)

// StartTraceSpan starts a span
func StartTraceSpan(ctx context.Context, tracerName, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.GetTracerProvider().
		Tracer(tracerName).Start(ctx, spanName, opts...)
}

// EndTraceSpan ends span, optionally sets attributes
func EndTraceSpan(span trace.Span, opts ...TraceAttrOption) {
	for _, optFn := range opts {
		optFn(span)
	}
	span.End()
}

// TraceAttrElapsed sets the canonical duration attribute
func TraceAttrElapsed(d duration.Duration) TraceAttrOption {
	return func(span trace.Span) {
		span.SetAttributes(attribute.String(ElapsedFieldName, d.String()))
	}
}

// TraceAttrError sets an error attribute and the span status
func TraceAttrError(v error) TraceAttrOption {
	return func(span trace.Span) {
		if v == nil {
			span.SetAttributes(attribute.Bool("err", false))
			return
		}
		span.SetAttributes(attribute.Bool("err", true))
		span.RecordError(v)
		span.SetStatus(codes.Error, v.Error())
	}
}
