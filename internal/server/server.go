// Package server exposes the dispatcher over HTTP.
package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/comigor/groq-extension-go/internal/dispatch"
	"github.com/comigor/groq-extension-go/internal/logger"
	"github.com/comigor/groq-extension-go/internal/metrics"
	"github.com/comigor/groq-extension-go/internal/stream"
	"github.com/comigor/groq-extension-go/pkg/tools"
)

const (
	HeaderSignature = "X-Request-Signature"
	HeaderKeyID     = "X-Request-Key-Id"

	maxBodyBytes = 1 << 20
)

// Options selects optional surfaces of the router.
type Options struct {
	// MCP mounts the tool registry as an MCP server at /sse and /message.
	MCP bool
	// Version is reported to MCP clients.
	Version string
}

// NewRouter wires HTTP routes to the dispatcher and the streaming responder.
func NewRouter(d *dispatch.Dispatcher, resp *stream.Responder, registry *tools.Registry, m *metrics.Metrics, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	h := &handler{dispatcher: d, responder: resp}
	r.Get("/", ok)
	r.Post("/", h.invoke)
	r.Get("/healthz", ok)
	r.Get("/manifest", manifestHandler(registry, opts.Version))
	r.Method(http.MethodGet, "/metrics", m.Handler())

	if opts.MCP {
		bridge := newMCPBridge(d, registry, opts.Version)
		r.Handle("/sse", bridge.SSEHandler())
		r.Handle("/message", bridge.MessageHandler())
		logger.L.Info("MCP bridge enabled", "tools", len(registry.List()))
	}

	return r
}

type handler struct {
	dispatcher *dispatch.Dispatcher
	responder  *stream.Responder
}

func ok(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *handler) invoke(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		logger.L.Warn("read body error", "error", err)
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) == 0 {
		ok(w, r)
		return
	}

	signature, keyID := credentials(r)
	if wantsStream(r) {
		state := h.responder.Respond(r.Context(), w, body, signature, keyID)
		logger.L.Debug("stream finished", "state", state, "request_id", middleware.GetReqID(r.Context()))
		return
	}

	res := h.dispatcher.Dispatch(r.Context(), body, signature, keyID)
	w.Header().Set("Content-Type", res.ContentType)
	w.WriteHeader(res.StatusCode)
	if _, err := w.Write(res.Body); err != nil {
		logger.L.Warn("write response error", "error", err)
	}
}

// credentials reads the signature and key id from headers, falling back to
// query parameters.
func credentials(r *http.Request) (signature, keyID string) {
	q := r.URL.Query()
	signature = r.Header.Get(HeaderSignature)
	if signature == "" {
		signature = q.Get("signature")
	}
	keyID = r.Header.Get(HeaderKeyID)
	if keyID == "" {
		keyID = q.Get("key_id")
	}
	return signature, keyID
}

func wantsStream(r *http.Request) bool {
	if r.URL.Query().Get("stream") == "true" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}
