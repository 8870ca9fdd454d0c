// Package llm defines the language-model port used to turn retrieved
// context into answers. Adapters live in subpackages.
package llm

import "context"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prior conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Client produces a completion for a prompt given prior conversation
// turns. Implementations must honor ctx cancellation.
type Client interface {
	Complete(ctx context.Context, prompt string, history []Message) (string, error)

	// Model returns the configured model identifier, for logging.
	Model() string
}
