package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "vizforge"

// Metrics holds all VizForge metric instruments.
type Metrics struct {
	TasksStarted    metric.Int64Counter
	TasksSucceeded  metric.Int64Counter
	TasksGaveUp     metric.Int64Counter
	TasksFailed     metric.Int64Counter
	TaskDuration    metric.Float64Histogram
	TaskIterations  metric.Int64Histogram
	SandboxWallTime metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.TasksStarted, err = meter.Int64Counter("vizforge.tasks.started",
		metric.WithDescription("Number of visualization tasks started"))
	if err != nil {
		return nil, err
	}

	m.TasksSucceeded, err = meter.Int64Counter("vizforge.tasks.succeeded",
		metric.WithDescription("Number of tasks that produced an accepted chart"))
	if err != nil {
		return nil, err
	}

	m.TasksGaveUp, err = meter.Int64Counter("vizforge.tasks.gave_up",
		metric.WithDescription("Number of tasks that exhausted the repair budget"))
	if err != nil {
		return nil, err
	}

	m.TasksFailed, err = meter.Int64Counter("vizforge.tasks.failed",
		metric.WithDescription("Number of tasks terminated by a fatal error"))
	if err != nil {
		return nil, err
	}

	m.TaskDuration, err = meter.Float64Histogram("vizforge.task.duration_seconds",
		metric.WithDescription("Task wall time in seconds"))
	if err != nil {
		return nil, err
	}

	m.TaskIterations, err = meter.Int64Histogram("vizforge.task.iterations",
		metric.WithDescription("Repair iterations consumed per task"))
	if err != nil {
		return nil, err
	}

	m.SandboxWallTime, err = meter.Float64Histogram("vizforge.sandbox.wall_time_seconds",
		metric.WithDescription("Sandbox execution wall time per attempt in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
