package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "vizforge"

// StartTaskSpan starts the root span for one visualization task.
func StartTaskSpan(ctx context.Context, taskID, taskType, db string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "task",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("task.type", taskType),
			attribute.String("task.database", db),
		),
	)
}

// StartStageSpan starts a span for one pipeline stage within a task.
func StartStageSpan(ctx context.Context, stage string, iteration int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, stage,
		trace.WithAttributes(
			attribute.Int("task.iteration", iteration),
		),
	)
}
