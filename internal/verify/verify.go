// Package verify authenticates inbound extension requests and parses their
// envelope.
package verify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/comigor/groq-extension-go/internal/session"
)

// Invocation names the tool a request wants to run.
type Invocation struct {
	FunctionID string          `json:"functionId"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
}

// Reference is a piece of client context attached to a message.
type Reference struct {
	Type     string          `json:"type"`
	ID       string          `json:"id"`
	Data     json.RawMessage `json:"data,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Message is a conversation turn as sent by the client.
type Message struct {
	Role       session.Role `json:"role"`
	Content    string       `json:"content"`
	References []Reference  `json:"copilot_references,omitempty"`
}

// Payload is the verified request envelope.
type Payload struct {
	ToolInvocation *Invocation `json:"toolInvocation,omitempty"`
	Messages       []Message   `json:"messages,omitempty"`
}

// Result reports whether the signature matched and, if so, the parsed payload.
type Result struct {
	Valid   bool
	Payload Payload
}

// Verifier checks a request body against its signature.
type Verifier interface {
	Verify(ctx context.Context, body []byte, signature, keyID string) (Result, error)
}

// HMACVerifier accepts bodies signed with HMAC-SHA256 under a shared secret.
// Signatures are hex encoded, optionally prefixed with "sha256=".
type HMACVerifier struct {
	keyID  string
	secret []byte
}

func NewHMACVerifier(keyID, secret string) *HMACVerifier {
	return &HMACVerifier{keyID: keyID, secret: []byte(secret)}
}

// Verify never returns an error for a bad signature or body; it reports
// Valid=false instead. A body that is signed correctly but is not a JSON
// object is also invalid.
func (v *HMACVerifier) Verify(_ context.Context, body []byte, signature, keyID string) (Result, error) {
	if keyID != v.keyID || !hmac.Equal(v.expected(body), decode(signature)) {
		return Result{}, nil
	}
	if trimmed := bytes.TrimSpace(body); len(trimmed) == 0 || trimmed[0] != '{' {
		return Result{}, nil
	}
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Result{}, nil
	}
	return Result{Valid: true, Payload: p}, nil
}

// Sign returns the signature Verify expects for body.
func (v *HMACVerifier) Sign(body []byte) string {
	return "sha256=" + hex.EncodeToString(v.expected(body))
}

func (v *HMACVerifier) expected(body []byte) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return mac.Sum(nil)
}

func decode(signature string) []byte {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil {
		return nil
	}
	return raw
}
