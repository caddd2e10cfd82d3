package chat

import "time"

// Role tags a turn or prompt message with its author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r may appear in a transcript.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one entry of a session transcript.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Message is one role-tagged entry of a prompt sent to the language model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
