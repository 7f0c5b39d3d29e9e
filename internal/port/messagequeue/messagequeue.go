// Package messagequeue defines the message queue port (interface) for
// publishing task lifecycle events to external observers.
package messagequeue

import "context"

// Queue is the port interface for publishing messages. Event publishing
// is optional; a nil Queue disables it.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Close shuts down the queue connection.
	Close() error
}

// Subject constants for VizForge task lifecycle events.
const (
	SubjectTaskStarted   = "viz.tasks.started"
	SubjectTaskIteration = "viz.tasks.iteration"
	SubjectTaskCompleted = "viz.tasks.completed"
)
