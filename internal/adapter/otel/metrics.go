package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "agentlink"

// Metrics holds all agentlink metric instruments.
type Metrics struct {
	TasksCreated      metric.Int64Counter
	TaskTransitions   metric.Int64Counter
	TaskDuration      metric.Float64Histogram
	WebhookDeliveries metric.Int64Counter
	WebhookAttempts   metric.Int64Histogram
	OutboundCalls     metric.Int64Counter
	KeyValidations    metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.TasksCreated, err = meter.Int64Counter("agentlink.tasks.created",
		metric.WithDescription("Number of A2A tasks created"))
	if err != nil {
		return nil, err
	}

	m.TaskTransitions, err = meter.Int64Counter("agentlink.tasks.transitions",
		metric.WithDescription("Number of task status transitions, by target status"))
	if err != nil {
		return nil, err
	}

	m.TaskDuration, err = meter.Float64Histogram("agentlink.task.duration_seconds",
		metric.WithDescription("Time from task creation to terminal status"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.WebhookDeliveries, err = meter.Int64Counter("agentlink.webhook.deliveries",
		metric.WithDescription("Webhook deliveries, by outcome"))
	if err != nil {
		return nil, err
	}

	m.WebhookAttempts, err = meter.Int64Histogram("agentlink.webhook.attempts",
		metric.WithDescription("HTTP attempts per webhook delivery"))
	if err != nil {
		return nil, err
	}

	m.OutboundCalls, err = meter.Int64Counter("agentlink.outbound.calls",
		metric.WithDescription("Outbound agent calls, by mode and outcome"))
	if err != nil {
		return nil, err
	}

	m.KeyValidations, err = meter.Int64Counter("agentlink.apikeys.validations",
		metric.WithDescription("API key validations, by result"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
