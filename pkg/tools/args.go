package tools

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/comigor/groq-extension-go/internal/session"
	"github.com/comigor/groq-extension-go/internal/verify"
)

// decodeArgs unmarshals raw into v. Clients send either the arguments
// object itself or a one-element array holding it.
func decodeArgs(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return fmt.Errorf("invalid arguments: %w", err)
		}
		if len(list) == 0 {
			return nil
		}
		return decodeArgs(list[0], v)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// history converts the client conversation, treating unknown roles as user.
func history(msgs []verify.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		role := m.Role
		if !role.Valid() {
			role = session.RoleUser
		}
		out = append(out, Chat(role, m.Content))
	}
	return out
}

func schema(s string) json.RawMessage {
	return json.RawMessage(s)
}
