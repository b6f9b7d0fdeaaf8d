package telemetry

import (
	"context"

	"github.com/irfndi/vana-arb-go/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BusinessTracer starts spans for the aggregation cycle and its side effects.
type BusinessTracer struct {
	tracer trace.Tracer
}

// NewBusinessTracer creates a tracer bound to the global provider.
func NewBusinessTracer() *BusinessTracer {
	return &BusinessTracer{tracer: Tracer()}
}

// NewBusinessTracerWith uses an explicit tracer, mostly for tests.
func NewBusinessTracerWith(tracer trace.Tracer) *BusinessTracer {
	return &BusinessTracer{tracer: tracer}
}

// TraceAggregation starts the span that covers one full aggregation cycle.
func (bt *BusinessTracer) TraceAggregation(ctx context.Context, targets int) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "aggregation",
		trace.WithAttributes(attribute.Int("aggregation.targets", targets)))
}

// TraceVenueFetch starts a child span for a single (exchange, symbol) fetch.
func (bt *BusinessTracer) TraceVenueFetch(ctx context.Context, exchange, symbol string) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "venue_fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("exchange", exchange),
			attribute.String("symbol", symbol),
		))
}

// RecordFetchResult marks a venue fetch span with its outcome.
func (bt *BusinessTracer) RecordFetchResult(span trace.Span, err error) {
	if err != nil {
		RecordError(span, err)
		return
	}
	SetSpanStatus(span, codes.Ok, "")
}

// AggregationResult summarizes a cycle for its span.
type AggregationResult struct {
	Quotes        int
	Failures      int
	Opportunities int
	Best          *models.ArbitrageOpportunity
}

// RecordAggregationResult annotates the cycle span.
func (bt *BusinessTracer) RecordAggregationResult(span trace.Span, result AggregationResult, err error) {
	span.SetAttributes(
		attribute.Int("aggregation.quotes", result.Quotes),
		attribute.Int("aggregation.failures", result.Failures),
		attribute.Int("aggregation.opportunities", result.Opportunities),
	)
	if result.Best != nil {
		span.SetAttributes(
			attribute.String("arbitrage.best.kind", string(result.Best.Kind)),
			attribute.String("arbitrage.best.net", result.Best.Net.String()),
			attribute.StringSlice("arbitrage.best.exchanges", result.Best.Exchanges()),
		)
	}
	if err != nil {
		RecordError(span, err)
		return
	}
	SetSpanStatus(span, codes.Ok, "")
}

// TraceNotification starts a span for an outbound alert.
func (bt *BusinessTracer) TraceNotification(ctx context.Context, notificationType string, channel string) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "notification",
		trace.WithAttributes(
			attribute.String("notification.type", notificationType),
			attribute.String("notification.channel", channel),
		))
}

// RecordNotificationResult records the outcome of a notification attempt onto a span.
func (bt *BusinessTracer) RecordNotificationResult(span trace.Span, success bool, recipientCount int, err error) {
	span.SetAttributes(
		attribute.Bool("notification.success", success),
		attribute.Int("notification.recipients", recipientCount),
	)
	if err != nil {
		RecordError(span, err)
		return
	}
	SetSpanStatus(span, codes.Ok, "")
}
