// Package litellm provides the chat-completion client for the LiteLLM
// proxy. It implements the llm.Client port.
package litellm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Strob0t/VizForge/internal/domain/task"
	"github.com/Strob0t/VizForge/internal/port/llm"
	"github.com/Strob0t/VizForge/internal/resilience"
)

// DefaultTimeout bounds one completion round trip. Visualization code
// generation regularly takes tens of seconds on large prompts.
const DefaultTimeout = 2 * time.Minute

// Client talks to the LiteLLM proxy chat-completions API.
type Client struct {
	baseURL    string
	masterKey  string
	httpClient *http.Client
	breaker    *resilience.Breaker
	maxTokens  int
}

// NewClient creates a new LiteLLM chat client. A non-positive timeout
// falls back to DefaultTimeout.
func NewClient(baseURL, masterKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:   baseURL,
		masterKey: masterKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls. An
// open circuit surfaces as a transport failure.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// SetMaxTokens sets the completion token cap applied to requests that
// do not specify one.
func (c *Client) SetMaxTokens(n int) {
	c.maxTokens = n
}

// chatRequest is the OpenAI-compatible wire format LiteLLM accepts.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// wireMessage carries either plain text content or a multimodal part
// list when an image is attached.
type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends one chat completion request and returns the
// assistant's text. All failure modes here (connection, HTTP status,
// open circuit, malformed response) wrap task.ErrTransport: the
// collaborator itself is broken and the repair loop must not retry.
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	if req.MaxTokens == 0 {
		req.MaxTokens = c.maxTokens
	}
	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    toWire(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	data, err := c.doRequest(ctx, body)
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("%w: unmarshal completion response: %v", task.ErrTransport, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: completion response has no choices", task.ErrTransport)
	}
	return parsed.Choices[0].Message.Content, nil
}

func toWire(messages []llm.Message) []wireMessage {
	wire := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		if m.ImageURL == "" {
			wire = append(wire, wireMessage{Role: m.Role, Content: m.Content})
			continue
		}
		wire = append(wire, wireMessage{
			Role: m.Role,
			Content: []contentPart{
				{Type: "text", Text: m.Content},
				{Type: "image_url", ImageURL: &imageURL{URL: m.ImageURL}},
			},
		})
	}
	return wire
}

func (c *Client) doRequest(ctx context.Context, body []byte) ([]byte, error) {
	var result []byte
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		if c.masterKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.masterKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 400 {
			return fmt.Errorf("litellm API error %d: %s", resp.StatusCode, string(data))
		}

		result = data
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", task.ErrTransport, err)
	}
	return result, nil
}
