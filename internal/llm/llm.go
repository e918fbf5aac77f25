package llm

import (
	"context"
	"errors"
)

// Message is a single chat-completion turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat roles understood by completion providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Request captures one completion call.
type Request struct {
	// Model overrides the client's default model when non-empty.
	Model    string
	Messages []Message
	// JSONOnly asks the provider to return a single JSON object.
	JSONOnly bool
}

// Client abstracts LLM completion providers.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ErrNotImplemented is returned by the placeholder client.
var ErrNotImplemented = errors.New("LLM not implemented")

// PlaceholderClient is a stub implementation until provider wiring is added.
type PlaceholderClient struct{}

// Complete returns ErrNotImplemented.
func (PlaceholderClient) Complete(ctx context.Context, req Request) (string, error) {
	_ = ctx
	_ = req
	return "", ErrNotImplemented
}
