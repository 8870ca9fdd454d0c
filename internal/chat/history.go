package chat

import (
	"strings"

	"github.com/RobMal123/ai-helpdesk-chatbot/internal/llm"
)

// TruncateHistory keeps the trailing limit messages of a conversation.
// Older turns are dropped so prompts stay bounded regardless of how
// long a session runs.
func TruncateHistory(history []llm.Message, limit int) []llm.Message {
	if limit <= 0 || len(history) == 0 {
		return nil
	}
	if len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}

// NormalizeHistory drops messages with empty content or a role the
// model API does not understand. Clients send arbitrary JSON; only
// user and assistant turns reach the prompt.
func NormalizeHistory(history []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, msg := range history {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		if msg.Role != llm.RoleUser && msg.Role != llm.RoleAssistant {
			continue
		}
		out = append(out, msg)
	}
	return out
}
