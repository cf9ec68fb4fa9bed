package ai

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is one chat-completion backend. Chat returns the assistant text of
// a single non-streamed completion.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Options bounds a completion. Zero values leave the backend default.
type Options struct {
	MaxTokens   int
	Temperature float32
}
