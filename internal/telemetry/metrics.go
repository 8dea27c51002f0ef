package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys shared by spans and metrics.
const (
	AttrEventID = "event.id"
	AttrOutcome = "registration.outcome"
	AttrAttempt = "registration.attempt"
)

// EventIDAttr tags a span or measurement with the event id.
func EventIDAttr(id string) attribute.KeyValue {
	return attribute.String(AttrEventID, id)
}

// OutcomeAttr tags a span or measurement with a registration outcome.
func OutcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String(AttrOutcome, outcome)
}

// AdmissionMetrics records registration attempts.
type AdmissionMetrics struct {
	attempts metric.Int64Counter
	retries  metric.Int64Counter
	duration metric.Float64Histogram
}

// NewAdmissionMetrics registers the admission instruments on the global meter
// provider. Call it after Init so the instruments bind to the SDK provider.
func NewAdmissionMetrics() (*AdmissionMetrics, error) {
	meter := otel.Meter(instrumentationName)

	attempts, err := meter.Int64Counter("registration_attempts_total",
		metric.WithDescription("Registration attempts by outcome"),
	)
	if err != nil {
		return nil, err
	}
	retries, err := meter.Int64Counter("registration_retries_total",
		metric.WithDescription("Registration transactions retried after a transient store failure"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("registration_duration_seconds",
		metric.WithDescription("End-to-end registration latency including lock wait"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, err
	}

	return &AdmissionMetrics{attempts: attempts, retries: retries, duration: duration}, nil
}

// RecordAttempt counts one finished registration and its latency.
func (m *AdmissionMetrics) RecordAttempt(ctx context.Context, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	opt := metric.WithAttributes(OutcomeAttr(outcome))
	m.attempts.Add(ctx, 1, opt)
	m.duration.Record(ctx, elapsed.Seconds(), opt)
}

// RecordRetry counts one transient-failure retry.
func (m *AdmissionMetrics) RecordRetry(ctx context.Context) {
	if m == nil {
		return
	}
	m.retries.Add(ctx, 1)
}
