// Package dispatch turns a signed request body into a tool result.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/comigor/groq-extension-go/internal/logger"
	"github.com/comigor/groq-extension-go/internal/metrics"
	"github.com/comigor/groq-extension-go/internal/verify"
	"github.com/comigor/groq-extension-go/pkg/tools"
)

// Response is what the transport writes back.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Call is a verified invocation of a registered tool.
type Call struct {
	Tool    tools.Tool
	Request tools.Request
}

func (c Call) ID() string {
	return c.Tool.Descriptor().ID
}

// Dispatcher verifies requests and runs the tool they name. It holds no
// global state; everything it needs is passed to New.
type Dispatcher struct {
	verifier verify.Verifier
	registry *tools.Registry
	metrics  *metrics.Metrics
}

func New(v verify.Verifier, r *tools.Registry, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{verifier: v, registry: r, metrics: m}
}

// Dispatch handles one request body. An empty body is a liveness probe and
// is answered without verification.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte, signature, keyID string) Response {
	if len(body) == 0 {
		return Response{StatusCode: http.StatusOK, ContentType: "text/plain; charset=utf-8", Body: []byte("OK")}
	}

	start := time.Now()
	call, err := d.Resolve(ctx, body, signature, keyID)
	if err != nil {
		e := AsError(err)
		d.metrics.ObserveDispatch("", e.Status, time.Since(start))
		return errorResponse(e)
	}

	result, err := d.Invoke(ctx, call)
	if err != nil {
		e := AsError(err)
		d.metrics.ObserveDispatch(call.ID(), e.Status, time.Since(start))
		return errorResponse(e)
	}

	out, err := marshal(result)
	if err != nil {
		e := internal("failed to encode tool result")
		logger.L.Error("encode runner response", "tool", call.ID(), "error", err)
		d.metrics.ObserveDispatch(call.ID(), e.Status, time.Since(start))
		return errorResponse(e)
	}
	d.metrics.ObserveDispatch(call.ID(), http.StatusOK, time.Since(start))
	return Response{StatusCode: http.StatusOK, ContentType: "application/json", Body: out}
}

// Resolve verifies the body and looks up the tool it invokes.
func (d *Dispatcher) Resolve(ctx context.Context, body []byte, signature, keyID string) (Call, error) {
	res, err := d.verifier.Verify(ctx, body, signature, keyID)
	if err != nil {
		logger.L.Error("verification failed", "error", err)
		return Call{}, internal("Failed to verify request.")
	}
	if !res.Valid {
		logger.L.Warn("rejected request: invalid signature or envelope", "key_id", keyID)
		return Call{}, unauthenticated()
	}

	inv := res.Payload.ToolInvocation
	if inv == nil {
		return Call{}, malformed("No tool invocation found.")
	}
	if inv.FunctionID == "" {
		return Call{}, malformed("Tool invocation has no functionId.")
	}

	tool, ok := d.registry.Lookup(inv.FunctionID)
	if !ok {
		logger.L.Warn("unknown tool", "function_id", inv.FunctionID)
		return Call{}, unknownTool(inv.FunctionID)
	}
	return Call{Tool: tool, Request: tools.Request{Arguments: inv.Arguments, Messages: res.Payload.Messages}}, nil
}

// Invoke runs the tool. Errors returned by the tool and panics inside it
// both become ErrInternal.
func (d *Dispatcher) Invoke(ctx context.Context, call Call) (resp tools.RunnerResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.L.Error("tool panicked", "tool", call.ID(), "panic", r, "stack", string(debug.Stack()))
			err = internal(fmt.Sprintf("Tool %s failed.", call.ID()))
		}
	}()

	logger.L.Debug("running tool", "tool", call.ID())
	resp, err = call.Tool.Run(ctx, call.Request)
	if err != nil {
		logger.L.Error("tool failed", "tool", call.ID(), "error", err)
		return tools.RunnerResponse{}, internal(fmt.Sprintf("Tool %s failed.", call.ID()))
	}
	return resp, nil
}

func errorResponse(e *Error) Response {
	return Response{StatusCode: e.Status, ContentType: "application/json", Body: ErrorBody(e)}
}

// ErrorBody renders e as {"error": message}. Tool ids and messages are kept
// verbatim, without HTML escaping.
func ErrorBody(e *Error) []byte {
	body, err := marshal(map[string]string{"error": e.Message})
	if err != nil {
		return []byte(`{"error":"internal error"}`)
	}
	return body
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
