// Package stream relays tool and model output to the caller as server-sent
// events.
package stream

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/qmuntal/stateless"

	"github.com/comigor/groq-extension-go/internal/dispatch"
	"github.com/comigor/groq-extension-go/internal/llm"
	"github.com/comigor/groq-extension-go/internal/logger"
	"github.com/comigor/groq-extension-go/internal/metrics"
	"github.com/comigor/groq-extension-go/internal/session"
	"github.com/comigor/groq-extension-go/pkg/tools"
)

// FSM States
const (
	StateIdle         = "Idle"
	StateToolResolved = "ToolResolved"
	StateModelInvoked = "ModelInvoked"
	StateStreaming    = "Streaming"
	StateDone         = "Done"   // Terminal
	StateFailed       = "Failed" // Terminal
)

// FSM Triggers
const (
	triggerResolved = "Resolved"
	triggerInvoked  = "Invoked"
	triggerOpened   = "Opened"
	triggerFinished = "Finished"
	triggerFailed   = "Failed"
)

// Resolver is the part of the dispatcher the responder drives.
type Resolver interface {
	Resolve(ctx context.Context, body []byte, signature, keyID string) (dispatch.Call, error)
	Invoke(ctx context.Context, call dispatch.Call) (tools.RunnerResponse, error)
}

// Streamer opens a chunk stream for a conversation.
type Streamer interface {
	Stream(ctx context.Context, model string, msgs []session.ChatMessage) (llm.ChunkStream, error)
}

// Event is one framed server-sent event.
type Event struct {
	Event   string `json:"event"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

const (
	EventDelta = "delta"
	EventDone  = "done"
	EventError = "error"
)

type Responder struct {
	resolver     Resolver
	streamer     Streamer
	defaultModel string
	metrics      *metrics.Metrics
}

func NewResponder(r Resolver, s Streamer, defaultModel string, m *metrics.Metrics) *Responder {
	return &Responder{resolver: r, streamer: s, defaultModel: defaultModel, metrics: m}
}

func newMachine() *stateless.StateMachine {
	fsm := stateless.NewStateMachine(StateIdle)
	fsm.Configure(StateIdle).
		Permit(triggerResolved, StateToolResolved)
	fsm.Configure(StateToolResolved).
		Permit(triggerInvoked, StateModelInvoked)
	fsm.Configure(StateModelInvoked).
		Permit(triggerOpened, StateStreaming).
		Permit(triggerFailed, StateFailed)
	fsm.Configure(StateStreaming).
		Permit(triggerFinished, StateDone).
		Permit(triggerFailed, StateFailed)
	return fsm
}

// Respond verifies and runs the request, then streams the result to w.
// It returns the state the exchange ended in. A request that never got
// past verification or tool lookup ends in StateIdle with an HTTP error.
func (r *Responder) Respond(ctx context.Context, w http.ResponseWriter, body []byte, signature, keyID string) string {
	fsm := newMachine()
	state := func() string { return fsm.MustState().(string) }
	fire := func(trigger string) {
		if err := fsm.FireCtx(ctx, trigger); err != nil {
			logger.L.Error("stream FSM fire error", "trigger", trigger, "state", state(), "error", err)
		}
	}

	call, err := r.resolver.Resolve(ctx, body, signature, keyID)
	if err != nil {
		writeError(w, dispatch.AsError(err))
		return state()
	}
	fire(triggerResolved)

	fire(triggerInvoked)
	chunks, err := r.open(ctx, call)
	if err != nil {
		logger.L.Error("stream: could not open", "tool", call.ID(), "error", err)
		fire(triggerFailed)
		writeError(w, dispatch.AsError(err))
		r.metrics.ObserveStream(state())
		return state()
	}
	defer func() {
		if cerr := chunks.Close(); cerr != nil {
			logger.L.Warn("stream close error", "error", cerr)
		}
	}()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fire(triggerOpened)

	for state() == StateStreaming {
		chunk, err := chunks.Recv()
		switch {
		case errors.Is(err, io.EOF):
			if werr := writeEvent(w, Event{Event: EventDone}); werr != nil {
				logger.L.Warn("stream: could not write done marker", "error", werr)
				fire(triggerFailed)
				break
			}
			fire(triggerFinished)
		case err != nil:
			logger.L.Error("stream: upstream failed mid-stream", "tool", call.ID(), "error", err)
			if werr := writeEvent(w, Event{Event: EventError, Error: err.Error()}); werr != nil {
				logger.L.Warn("stream: could not write error notice", "error", werr)
			}
			fire(triggerFailed)
		default:
			if werr := writeEvent(w, Event{Event: EventDelta, Content: chunk}); werr != nil {
				logger.L.Warn("stream: client went away", "tool", call.ID(), "error", werr)
				fire(triggerFailed)
				break
			}
			r.metrics.ObserveChunk()
		}
	}

	r.metrics.ObserveStream(state())
	return state()
}

// open runs the tool. Tools that return a prompt get a follow-on model
// stream; everything else replays the tool's messages as chunks.
func (r *Responder) open(ctx context.Context, call dispatch.Call) (llm.ChunkStream, error) {
	resp, err := r.resolver.Invoke(ctx, call)
	if err != nil {
		return nil, err
	}
	if !call.Tool.Descriptor().FollowUp || !resp.HasChat() {
		return llm.SliceStream(resp.Texts()...), nil
	}

	model := cmp.Or(resp.ModelUsed, r.defaultModel)
	logger.L.Debug("stream: follow-on model call", "tool", call.ID(), "model", model)
	chunks, err := r.streamer.Stream(ctx, model, resp.Conversation())
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", model, err)
	}
	return chunks, nil
}

func writeEvent(w http.ResponseWriter, ev Event) error {
	var buf bytes.Buffer
	buf.WriteString("data: ")
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ev); err != nil {
		return err
	}
	// Encode ends the payload with one newline; the frame needs two
	buf.WriteByte('\n')
	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

func writeError(w http.ResponseWriter, e *dispatch.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	if _, err := w.Write(dispatch.ErrorBody(e)); err != nil {
		logger.L.Warn("stream: could not write error response", "error", err)
	}
}
