package ws

import (
	"context"
	"encoding/json"
)

// Publish forwards a task lifecycle event to all connected clients,
// letting the Hub serve as an event sink alongside NATS. The subject
// becomes the message type; payloads are already JSON.
func (h *Hub) Publish(ctx context.Context, subject string, data []byte) error {
	h.Broadcast(ctx, Message{
		Type:    subject,
		Payload: json.RawMessage(data),
	})
	return nil
}

// Close implements the message queue port; the hub's connections are
// owned by the HTTP server and close with it.
func (h *Hub) Close() error { return nil }
