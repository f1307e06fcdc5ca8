package tools

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/comigor/groq-extension-go/internal/logger"
	"github.com/comigor/groq-extension-go/internal/session"
)

const unsetModel = "default"

// StartSession creates a server-held conversation.
type StartSession struct{ deps Deps }

func (t *StartSession) Descriptor() Descriptor {
	return Descriptor{
		ID:          "startSession",
		Name:        "start_session",
		Description: "Create a new agent session for interactive conversations with Groq.",
		Parameters: schema(`{"type":"object","properties":{` +
			`"model":{"type":"string","description":"Optional model id to use for the session"},` +
			`"systemPrompt":{"type":"string","description":"Optional system prompt to seed the session"}},"required":[]}`),
	}
}

func (t *StartSession) Run(_ context.Context, req Request) (RunnerResponse, error) {
	var args struct {
		Model        string `json:"model"`
		SystemPrompt string `json:"systemPrompt"`
	}
	if err := decodeArgs(req.Arguments, &args); err != nil {
		return RunnerResponse{ModelUsed: unsetModel, Messages: []Message{Text(err.Error())}}, nil
	}

	var seed []session.ChatMessage
	if args.SystemPrompt != "" {
		seed = append(seed, session.ChatMessage{Role: session.RoleSystem, Content: args.SystemPrompt})
	}
	id := t.deps.sessionID()
	s := t.deps.Sessions.Create(id, session.Options{Model: args.Model, Messages: seed})

	created, err := json.Marshal(map[string]string{"createdAt": s.CreatedAt.Format(time.RFC3339Nano)})
	if err != nil {
		return RunnerResponse{}, err
	}
	logger.L.Info("session started", "session", id, "model", args.Model)

	return RunnerResponse{
		ModelUsed: cmp.Or(args.Model, unsetModel),
		Messages:  []Message{Text("sessionId:" + id), Text(string(created))},
	}, nil
}

// SendMessage sends a user message inside a session and returns the reply.
type SendMessage struct{ deps Deps }

func (t *SendMessage) Descriptor() Descriptor {
	return Descriptor{
		ID:          "sendMessage",
		Name:        "send_message",
		Description: "Send a user message inside an agent session and get the model response.",
		Parameters: schema(`{"type":"object","properties":{` +
			`"sessionId":{"type":"string"},"message":{"type":"string"},"model":{"type":"string"}},` +
			`"required":["sessionId","message"]}`),
	}
}

// Run sends the session history plus the new message to the model. The
// user message and the reply are appended together only once the model
// answered, so they always sit next to each other in the history.
func (t *SendMessage) Run(ctx context.Context, req Request) (RunnerResponse, error) {
	var args struct {
		SessionID string `json:"sessionId"`
		Message   string `json:"message"`
		Model     string `json:"model"`
	}
	if err := decodeArgs(req.Arguments, &args); err != nil {
		return RunnerResponse{ModelUsed: unsetModel, Messages: []Message{Text(err.Error())}}, nil
	}
	if args.SessionID == "" || args.Message == "" {
		return RunnerResponse{ModelUsed: cmp.Or(args.Model, unsetModel), Messages: []Message{Text("sessionId and message are required")}}, nil
	}

	s, ok := t.deps.Sessions.Get(args.SessionID)
	if !ok {
		return RunnerResponse{ModelUsed: cmp.Or(args.Model, unsetModel), Messages: []Message{Text(fmt.Sprintf("Session %s not found", args.SessionID))}}, nil
	}

	model := cmp.Or(args.Model, s.Model, t.deps.DefaultModel)
	user := session.ChatMessage{Role: session.RoleUser, Content: args.Message}

	reply, err := t.deps.Completer.Complete(ctx, model, append(s.Messages, user))
	if err != nil {
		logger.L.Error("send_message: model call failed", "session", args.SessionID, "model", model, "error", err)
		return RunnerResponse{ModelUsed: model, Messages: []Message{Text("Groq error: " + err.Error())}}, nil
	}
	if reply == "" {
		reply = "No response from model"
	}

	if _, err := t.deps.Sessions.AppendMessage(args.SessionID, user, session.ChatMessage{Role: session.RoleAssistant, Content: reply}); err != nil {
		return RunnerResponse{ModelUsed: model, Messages: []Message{Text(fmt.Sprintf("Session %s not found", args.SessionID))}}, nil
	}
	return RunnerResponse{ModelUsed: model, Messages: []Message{Text(reply)}}, nil
}

type sessionArgs struct {
	SessionID string `json:"sessionId"`
}

const sessionIDSchema = `{"type":"object","properties":{"sessionId":{"type":"string"}},"required":["sessionId"]}`

// ResetSession clears a session's history.
type ResetSession struct{ deps Deps }

func (t *ResetSession) Descriptor() Descriptor {
	return Descriptor{
		ID:          "resetSession",
		Name:        "reset_session",
		Description: "Clear the message history of an agent session, keeping its model.",
		Parameters:  schema(sessionIDSchema),
	}
}

func (t *ResetSession) Run(_ context.Context, req Request) (RunnerResponse, error) {
	var args sessionArgs
	if err := decodeArgs(req.Arguments, &args); err != nil || args.SessionID == "" {
		return RunnerResponse{ModelUsed: unsetModel, Messages: []Message{Text("sessionId is required")}}, nil
	}
	s, ok := t.deps.Sessions.Reset(args.SessionID)
	if !ok {
		return RunnerResponse{ModelUsed: unsetModel, Messages: []Message{Text(fmt.Sprintf("Session %s not found", args.SessionID))}}, nil
	}
	return RunnerResponse{ModelUsed: cmp.Or(s.Model, unsetModel), Messages: []Message{Text(fmt.Sprintf("Session %s reset", args.SessionID))}}, nil
}

// EndSession deletes a session.
type EndSession struct{ deps Deps }

func (t *EndSession) Descriptor() Descriptor {
	return Descriptor{
		ID:          "endSession",
		Name:        "end_session",
		Description: "Delete an agent session and its history.",
		Parameters:  schema(sessionIDSchema),
	}
}

func (t *EndSession) Run(_ context.Context, req Request) (RunnerResponse, error) {
	var args sessionArgs
	if err := decodeArgs(req.Arguments, &args); err != nil || args.SessionID == "" {
		return RunnerResponse{ModelUsed: unsetModel, Messages: []Message{Text("sessionId is required")}}, nil
	}
	if !t.deps.Sessions.Delete(args.SessionID) {
		return RunnerResponse{ModelUsed: unsetModel, Messages: []Message{Text(fmt.Sprintf("Session %s not found", args.SessionID))}}, nil
	}
	return RunnerResponse{ModelUsed: unsetModel, Messages: []Message{Text(fmt.Sprintf("Session %s ended", args.SessionID))}}, nil
}
