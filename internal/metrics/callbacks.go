// Package metrics holds the callback pipeline's OpenTelemetry instruments.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// CallbackMetrics 回调处理计数
type CallbackMetrics struct {
	callbacks    metric.Int64Counter
	fulfillments metric.Int64Counter
	alerts       metric.Int64Counter
	emails       metric.Int64Counter
	duration     metric.Float64Histogram
}

func New(meter metric.Meter) (*CallbackMetrics, error) {
	m := &CallbackMetrics{}
	var err error

	m.callbacks, err = meter.Int64Counter("billing.callbacks.total",
		metric.WithDescription("Payment callbacks received, by provider and outcome"),
		metric.WithUnit("{callback}"),
	)
	if err != nil {
		return nil, err
	}

	m.fulfillments, err = meter.Int64Counter("billing.fulfillments.total",
		metric.WithDescription("Fulfillment runs after a completed transition"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, err
	}

	m.alerts, err = meter.Int64Counter("billing.alerts.total",
		metric.WithDescription("Operator alerts raised"),
		metric.WithUnit("{alert}"),
	)
	if err != nil {
		return nil, err
	}

	m.emails, err = meter.Int64Counter("billing.emails.total",
		metric.WithDescription("Notification emails dispatched"),
		metric.WithUnit("{email}"),
	)
	if err != nil {
		return nil, err
	}

	m.duration, err = meter.Float64Histogram("billing.callback.duration",
		metric.WithDescription("Callback handling duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// NewNoop for tests and when no exporter is configured.
func NewNoop() *CallbackMetrics {
	m, _ := New(noop.NewMeterProvider().Meter(meterName))
	return m
}

func (m *CallbackMetrics) RecordCallback(ctx context.Context, provider, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	)
	m.callbacks.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}

func (m *CallbackMetrics) RecordFulfillment(ctx context.Context, provider, result string) {
	m.fulfillments.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("result", result),
	))
}

func (m *CallbackMetrics) RecordAlert(ctx context.Context, kind string) {
	m.alerts.Add(ctx, 1, metric.WithAttributes(attribute.String("alert", kind)))
}

func (m *CallbackMetrics) RecordEmail(ctx context.Context, template string, ok bool) {
	m.emails.Add(ctx, 1, metric.WithAttributes(
		attribute.String("template", template),
		attribute.Bool("ok", ok),
	))
}
