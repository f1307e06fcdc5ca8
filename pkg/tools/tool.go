package tools

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/comigor/groq-extension-go/internal/session"
	"github.com/comigor/groq-extension-go/internal/verify"
)

// Tool is the interface for all tools.
//
// Run must turn its own recoverable failures (bad arguments, unreachable
// catalog, upstream model errors) into messages of the returned
// RunnerResponse. A non-nil error is reserved for failures the tool cannot
// describe; the dispatcher answers those with an internal error.
type Tool interface {
	Descriptor() Descriptor
	Run(ctx context.Context, req Request) (RunnerResponse, error)
}

// Descriptor is the static metadata of a tool.
type Descriptor struct {
	// ID is the function id clients invoke the tool with.
	ID string
	// Name is the snake_case function name advertised to models.
	Name        string
	Description string
	// Parameters is the JSON schema of the arguments object.
	Parameters json.RawMessage
	// FollowUp tools return a prompt meant to be sent to a model, rather
	// than a finished answer.
	FollowUp bool
}

// Request is one tool invocation built from a verified payload.
type Request struct {
	Arguments json.RawMessage
	Messages  []verify.Message
}

// RunnerResponse is the uniform result of every tool.
type RunnerResponse struct {
	ModelUsed string    `json:"modelUsed"`
	Messages  []Message `json:"messages"`
}

// HasChat reports whether any message is a chat message.
func (r RunnerResponse) HasChat() bool {
	for _, m := range r.Messages {
		if m.Chat != nil {
			return true
		}
	}
	return false
}

// Conversation converts every message to a chat message; plain text becomes
// a system message.
func (r RunnerResponse) Conversation() []session.ChatMessage {
	out := make([]session.ChatMessage, 0, len(r.Messages))
	for _, m := range r.Messages {
		out = append(out, m.AsChat())
	}
	return out
}

// Texts returns the content of every message in order.
func (r RunnerResponse) Texts() []string {
	out := make([]string, 0, len(r.Messages))
	for _, m := range r.Messages {
		out = append(out, m.String())
	}
	return out
}

// Message is either plain text or a chat message. On the wire it is a JSON
// string or a {role, content} object.
type Message struct {
	Text string
	Chat *session.ChatMessage
}

func Text(s string) Message {
	return Message{Text: s}
}

func Chat(role session.Role, content string) Message {
	return Message{Chat: &session.ChatMessage{Role: role, Content: content}}
}

func (m Message) String() string {
	if m.Chat != nil {
		return m.Chat.Content
	}
	return m.Text
}

func (m Message) AsChat() session.ChatMessage {
	if m.Chat != nil {
		return *m.Chat
	}
	return session.ChatMessage{Role: session.RoleSystem, Content: m.Text}
}

func (m Message) MarshalJSON() ([]byte, error) {
	if m.Chat != nil {
		return json.Marshal(m.Chat)
	}
	return json.Marshal(m.Text)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		*m = Message{}
		return json.Unmarshal(data, &m.Text)
	}
	var c session.ChatMessage
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}
	*m = Message{Chat: &c}
	return nil
}
