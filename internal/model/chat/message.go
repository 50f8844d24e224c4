package chat

import "github.com/zhouzirui/yui-companion/backend/internal/analysis/emotion"

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the conversation roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one turn of the conversation. It is never mutated after creation.
type Message struct {
	Role    Role          `json:"role"`
	Content string        `json:"content"`
	Emotion emotion.Label `json:"emotion,omitempty"`
}

// UserMessage builds a user turn.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant turn with its expression label.
func AssistantMessage(content string, label emotion.Label) Message {
	return Message{Role: RoleAssistant, Content: content, Emotion: label}
}

// CopyHistory returns an independent copy of messages.
func CopyHistory(messages []Message) []Message {
	if len(messages) == 0 {
		return nil
	}
	return append([]Message(nil), messages...)
}
