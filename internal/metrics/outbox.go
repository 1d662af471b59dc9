package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OutboxSnapshot carries the counts recorded by OutboxMetrics.RecordHealth.
type OutboxSnapshot struct {
	Pending          int64
	Leased           int64
	TerminallyFailed int64
	StaleLeases      int64
	CriticalPending  int64
	Reclaimed        int64
	Healthy          bool
}

// OutboxMetrics records dispatcher outcomes and outbox health gauges.
type OutboxMetrics interface {
	// RecordDispatch counts one publish attempt. Outcome examples: "published", "failed",
	// "released", "state_update_failed". Kind is the transport error kind, empty on success.
	RecordDispatch(ctx context.Context, outcome, priority, kind string)

	// RecordHealth sets the health gauges from a snapshot.
	RecordHealth(ctx context.Context, snapshot OutboxSnapshot)
}

type outboxMetrics struct {
	dispatchCounter metric.Int64Counter
	eventsGauge     metric.Int64Gauge
	reclaimedGauge  metric.Int64Gauge
	healthyGauge    metric.Int64Gauge
}

// NewOutboxMetrics creates OutboxMetrics on the given meter provider, prefixing names with namespace.
func NewOutboxMetrics(meterProvider metric.MeterProvider, namespace string) (OutboxMetrics, error) {
	meter := meterProvider.Meter(namespace)

	dispatchCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_outbox_dispatch_total", namespace),
		metric.WithDescription("Total number of outbox publish attempts"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create outbox dispatch counter: %w", err)
	}

	eventsGauge, err := meter.Int64Gauge(
		fmt.Sprintf("%s_outbox_events", namespace),
		metric.WithDescription("Outbox events by delivery state at the last health check"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create outbox events gauge: %w", err)
	}

	reclaimedGauge, err := meter.Int64Gauge(
		fmt.Sprintf("%s_outbox_reclaimed_leases", namespace),
		metric.WithDescription("Stale leases released by the last health check"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create outbox reclaimed gauge: %w", err)
	}

	healthyGauge, err := meter.Int64Gauge(
		fmt.Sprintf("%s_outbox_healthy", namespace),
		metric.WithDescription("1 when the last outbox health check passed, 0 otherwise"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create outbox healthy gauge: %w", err)
	}

	return &outboxMetrics{
		dispatchCounter: dispatchCounter,
		eventsGauge:     eventsGauge,
		reclaimedGauge:  reclaimedGauge,
		healthyGauge:    healthyGauge,
	}, nil
}

func (o *outboxMetrics) RecordDispatch(ctx context.Context, outcome, priority, kind string) {
	o.dispatchCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.String("priority", priority),
			attribute.String("error_kind", kind),
		),
	)
}

func (o *outboxMetrics) RecordHealth(ctx context.Context, snapshot OutboxSnapshot) {
	states := []struct {
		state string
		value int64
	}{
		{"pending", snapshot.Pending},
		{"leased", snapshot.Leased},
		{"failed", snapshot.TerminallyFailed},
		{"stale", snapshot.StaleLeases},
		{"critical_pending", snapshot.CriticalPending},
	}
	for _, s := range states {
		o.eventsGauge.Record(ctx, s.value, metric.WithAttributes(attribute.String("state", s.state)))
	}

	o.reclaimedGauge.Record(ctx, snapshot.Reclaimed)

	var healthy int64
	if snapshot.Healthy {
		healthy = 1
	}
	o.healthyGauge.Record(ctx, healthy)
}

// NoOpOutboxMetrics is a no-op implementation of OutboxMetrics for when metrics are disabled.
type NoOpOutboxMetrics struct{}

// NewNoOpOutboxMetrics creates a no-op OutboxMetrics implementation.
func NewNoOpOutboxMetrics() OutboxMetrics {
	return &NoOpOutboxMetrics{}
}

// RecordDispatch does nothing when metrics are disabled.
func (n *NoOpOutboxMetrics) RecordDispatch(ctx context.Context, outcome, priority, kind string) {}

// RecordHealth does nothing when metrics are disabled.
func (n *NoOpOutboxMetrics) RecordHealth(ctx context.Context, snapshot OutboxSnapshot) {}
