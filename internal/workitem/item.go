package workitem

import "strings"

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole normalizes a role string. Unknown roles are reported as invalid.
func ParseRole(value string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleSystem:
		return RoleSystem, true
	case RoleUser:
		return RoleUser, true
	case RoleAssistant:
		return RoleAssistant, true
	default:
		return "", false
	}
}

// Message is one turn of a conversation. Reasoning carries auxiliary model
// output and is never consulted for routing.
type Message struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`
}

// Item is a single unit of pipeline work: a chat request plus the
// conversation it has accumulated so far.
type Item struct {
	ID          int64
	Messages    []Message
	Temperature *float64
	TopP        *float64

	// Attempts counts dispatch attempts made for this item. It travels with
	// the item across re-enqueues.
	Attempts int
}

// WithReply returns a new item with msg appended. The receiver is left
// untouched so a failed downstream step can re-enqueue the original.
func (it Item) WithReply(msg Message) Item {
	next := it
	next.Messages = make([]Message, len(it.Messages), len(it.Messages)+1)
	copy(next.Messages, it.Messages)
	next.Messages = append(next.Messages, msg)
	return next
}

// LastReply returns the trailing assistant message, if any.
func (it Item) LastReply() (Message, bool) {
	if n := len(it.Messages); n > 0 && it.Messages[n-1].Role == RoleAssistant {
		return it.Messages[n-1], true
	}
	return Message{}, false
}

// FirstUserPrompt returns the content of the first user message.
func (it Item) FirstUserPrompt() (string, bool) {
	for _, msg := range it.Messages {
		if msg.Role == RoleUser {
			return msg.Content, true
		}
	}
	return "", false
}
