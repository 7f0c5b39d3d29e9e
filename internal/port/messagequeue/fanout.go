package messagequeue

import (
	"context"
	"errors"
)

// Fanout publishes every message to all member queues. Serve mode uses
// it to feed both NATS and the WebSocket hub from one sink.
type Fanout []Queue

// Publish delivers to every member; failures are joined, not
// short-circuited, so one slow sink never starves the others.
func (f Fanout) Publish(ctx context.Context, subject string, data []byte) error {
	var errs []error
	for _, q := range f {
		if err := q.Publish(ctx, subject, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every member queue.
func (f Fanout) Close() error {
	var errs []error
	for _, q := range f {
		if err := q.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
