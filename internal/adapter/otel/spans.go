package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "agentlink"

// StartTaskSpan starts a span for a task lifecycle operation.
func StartTaskSpan(ctx context.Context, op, projectID, taskID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "task."+op,
		trace.WithAttributes(
			attribute.String("project.id", projectID),
			attribute.String("task.id", taskID),
		),
	)
}

// StartExecutionSpan starts a span for running a task against an agent session.
func StartExecutionSpan(ctx context.Context, projectID, taskID, agentID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "task.execute",
		trace.WithAttributes(
			attribute.String("project.id", projectID),
			attribute.String("task.id", taskID),
			attribute.String("agent.id", agentID),
		),
	)
}

// StartOutboundSpan starts a span for a call to a remote agent.
func StartOutboundSpan(ctx context.Context, projectID, agentURL, mode string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "outbound."+mode,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("project.id", projectID),
			attribute.String("agent.url", agentURL),
		),
	)
}

// StartWebhookSpan starts a span for a task-completion webhook delivery.
func StartWebhookSpan(ctx context.Context, taskID, status string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "webhook.deliver",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("task.status", status),
		),
	)
}
