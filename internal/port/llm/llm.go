// Package llm defines the chat-completion port (interface).
package llm

import "context"

// Message is one chat message. Image carries an optional data URL for
// multimodal requests; backends without vision ignore it.
type Message struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	ImageURL string `json:"-"`
}

// Request is a single synchronous completion request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Client is the port interface for synchronous chat completion.
type Client interface {
	// Complete sends the request and returns the assistant's text.
	// Transport-level failures wrap task.ErrTransport; they terminate
	// the task instead of entering the repair loop.
	Complete(ctx context.Context, req Request) (string, error)
}
