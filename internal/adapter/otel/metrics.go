package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "forgetop"

// Metrics holds the dashboard's metric instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	UpdatesIngested  metric.Int64Counter
	UpdatesDropped   metric.Int64Counter
	ControlsSent     metric.Int64Counter
	ControlsRejected metric.Int64Counter
	Notifications    metric.Int64Counter
	AgentCost        metric.Float64Histogram
}

// NewMetrics creates all instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter(meterName))
}

// NewMetricsWithMeter creates all instruments on meter.
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.UpdatesIngested, err = meter.Int64Counter("forgetop.feed.updates",
		metric.WithDescription("Feed updates applied to the agent registry"))
	if err != nil {
		return nil, err
	}

	m.UpdatesDropped, err = meter.Int64Counter("forgetop.feed.dropped",
		metric.WithDescription("Feed updates rejected as malformed"))
	if err != nil {
		return nil, err
	}

	m.ControlsSent, err = meter.Int64Counter("forgetop.controls.sent",
		metric.WithDescription("Control intents sent to the platform"))
	if err != nil {
		return nil, err
	}

	m.ControlsRejected, err = meter.Int64Counter("forgetop.controls.rejected",
		metric.WithDescription("Control requests that were disabled, in flight, or refused"))
	if err != nil {
		return nil, err
	}

	m.Notifications, err = meter.Int64Counter("forgetop.store.notifications",
		metric.WithDescription("Store change notifications"))
	if err != nil {
		return nil, err
	}

	m.AgentCost, err = meter.Float64Histogram("forgetop.agent.cost_usd",
		metric.WithDescription("Cost of agents reaching a terminal state"),
		metric.WithUnit("USD"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Ingested counts one applied feed update of the given kind.
func (m *Metrics) Ingested(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.UpdatesIngested.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// Dropped counts one malformed feed update.
func (m *Metrics) Dropped(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.UpdatesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// ControlSent counts one intent handed to the control sink.
func (m *Metrics) ControlSent(ctx context.Context, control string) {
	if m == nil {
		return
	}
	m.ControlsSent.Add(ctx, 1, metric.WithAttributes(attribute.String("control", control)))
}

// ControlRejected counts one control request that produced no intent or was refused.
func (m *Metrics) ControlRejected(ctx context.Context, control, reason string) {
	if m == nil {
		return
	}
	m.ControlsRejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("control", control),
		attribute.String("reason", reason),
	))
}

// Notified counts one store notification.
func (m *Metrics) Notified(ctx context.Context, store string) {
	if m == nil {
		return
	}
	m.Notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("store", store)))
}

// Finished records the final cost of an agent that reached a terminal state.
func (m *Metrics) Finished(ctx context.Context, status string, costUSD float64) {
	if m == nil {
		return
	}
	m.AgentCost.Record(ctx, costUSD, metric.WithAttributes(attribute.String("status", status)))
}
