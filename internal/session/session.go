// Package session keeps the bounded conversation history used to give the
// model context for follow-up questions.
package session

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role
	Content string
}

// Store persists conversations. History of an unknown session is empty, and
// AddExchange creates the session when needed.
type Store interface {
	Create(ctx context.Context) (string, error)
	History(ctx context.Context, sessionID string) (string, error)
	AddExchange(ctx context.Context, sessionID, question, answer string) error
	Ping(ctx context.Context) error
}

func newID() string {
	return "session_" + uuid.NewString()
}

// FormatHistory renders messages as "User: ...\nAssistant: ..." lines.
func FormatHistory(msgs []Message) string {
	if len(msgs) == 0 {
		return ""
	}
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = m.Role.label() + ": " + m.Content
	}
	return strings.Join(lines, "\n")
}

func (r Role) label() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}
