package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/comigor/groq-extension-go/internal/dispatch"
	"github.com/comigor/groq-extension-go/internal/llm"
	"github.com/comigor/groq-extension-go/internal/metrics"
	"github.com/comigor/groq-extension-go/internal/session"
	"github.com/comigor/groq-extension-go/internal/stream"
	"github.com/comigor/groq-extension-go/internal/verify"
	"github.com/comigor/groq-extension-go/pkg/tools"
)

type stubTool struct {
	desc tools.Descriptor
	run  func(req tools.Request) (tools.RunnerResponse, error)
}

func (s *stubTool) Descriptor() tools.Descriptor { return s.desc }

func (s *stubTool) Run(_ context.Context, req tools.Request) (tools.RunnerResponse, error) {
	return s.run(req)
}

type sliceStreamer struct{ chunks []string }

func (s sliceStreamer) Stream(context.Context, string, []session.ChatMessage) (llm.ChunkStream, error) {
	return llm.SliceStream(s.chunks...), nil
}

const keyID = "key-1"

var echo = &stubTool{
	desc: tools.Descriptor{ID: "echo", Name: "echo_args", Description: "Echo.", Parameters: json.RawMessage(`{"type":"object","properties":{"say":{"type":"string"}}}`)},
	run: func(req tools.Request) (tools.RunnerResponse, error) {
		var args struct {
			Say string `json:"say"`
		}
		_ = json.Unmarshal(req.Arguments, &args)
		return tools.RunnerResponse{ModelUsed: "none", Messages: []tools.Message{tools.Text(args.Say)}}, nil
	},
}

var prompt = &stubTool{
	desc: tools.Descriptor{ID: "listModels", Name: "list_models", Parameters: json.RawMessage(`{"type":"object"}`), FollowUp: true},
	run: func(tools.Request) (tools.RunnerResponse, error) {
		return tools.RunnerResponse{ModelUsed: "gemma2-9b-it", Messages: []tools.Message{tools.Chat(session.RoleSystem, "list")}}, nil
	},
}

var failing = &stubTool{
	desc: tools.Descriptor{ID: "failing", Name: "failing", Parameters: json.RawMessage(`{"type":"object"}`)},
	run: func(tools.Request) (tools.RunnerResponse, error) {
		return tools.RunnerResponse{}, errors.New("boom")
	},
}

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *verify.HMACVerifier, *dispatch.Dispatcher, *tools.Registry) {
	t.Helper()
	v := verify.NewHMACVerifier(keyID, "s3cret")
	registry, err := tools.NewRegistry(echo, prompt, failing)
	require.NoError(t, err)
	m := metrics.New()
	d := dispatch.New(v, registry, m)
	resp := stream.NewResponder(d, sliceStreamer{chunks: []string{"a", "b"}}, "gemma2-9b-it", m)

	srv := httptest.NewServer(NewRouter(d, resp, registry, m, opts))
	t.Cleanup(srv.Close)
	return srv, v, d, registry
}

func post(t *testing.T, url, body string, header http.Header) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, vs := range header {
		req.Header[k] = vs
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	out, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(out)
}

func signed(v *verify.HMACVerifier, body string) http.Header {
	h := http.Header{}
	h.Set(HeaderSignature, v.Sign([]byte(body)))
	h.Set(HeaderKeyID, keyID)
	return h
}

func TestLiveness(t *testing.T) {
	srv, _, _, _ := newTestServer(t, Options{})

	for _, path := range []string{"/", "/healthz"} {
		res, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		body, _ := io.ReadAll(res.Body)
		res.Body.Close()
		require.Equal(t, http.StatusOK, res.StatusCode)
		require.Equal(t, "OK", string(body))
	}

	res, body := post(t, srv.URL+"/", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "OK", body)
}

func TestInvoke(t *testing.T) {
	srv, v, _, _ := newTestServer(t, Options{})
	body := `{"toolInvocation":{"functionId":"echo","arguments":{"say":"hello"}}}`

	res, out := post(t, srv.URL+"/", body, signed(v, body))
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "application/json", res.Header.Get("Content-Type"))
	require.JSONEq(t, `{"modelUsed":"none","messages":["hello"]}`, out)

	res, _ = post(t, srv.URL+"/", body, http.Header{HeaderSignature: {"sha256=00"}, HeaderKeyID: {keyID}})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	unknown := `{"toolInvocation":{"functionId":"ghost"}}`
	res, out = post(t, srv.URL+"/", unknown, signed(v, unknown))
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	require.Contains(t, out, "ghost")

	broken := `{"toolInvocation":{"functionId":"failing"}}`
	res, _ = post(t, srv.URL+"/", broken, signed(v, broken))
	require.Equal(t, http.StatusInternalServerError, res.StatusCode)
}

func TestInvoke_QueryCredentials(t *testing.T) {
	srv, v, _, _ := newTestServer(t, Options{})
	body := `{"toolInvocation":{"functionId":"echo","arguments":{"say":"q"}}}`

	u := srv.URL + "/?key_id=" + keyID + "&signature=" + v.Sign([]byte(body))
	res, out := post(t, u, body, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, out, `"q"`)
}

func TestInvoke_Streaming(t *testing.T) {
	srv, v, _, _ := newTestServer(t, Options{})
	body := `{"toolInvocation":{"functionId":"listModels"}}`
	h := signed(v, body)
	h.Set("Accept", "text/event-stream")

	res, out := post(t, srv.URL+"/", body, h)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))
	require.Equal(t,
		"data: {\"event\":\"delta\",\"content\":\"a\"}\n\n"+
			"data: {\"event\":\"delta\",\"content\":\"b\"}\n\n"+
			"data: {\"event\":\"done\"}\n\n", out)

	res, out = post(t, srv.URL+"/?stream=true", body, signed(v, body))
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.True(t, strings.HasSuffix(out, "data: {\"event\":\"done\"}\n\n"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv, v, _, _ := newTestServer(t, Options{})
	body := `{"toolInvocation":{"functionId":"echo","arguments":{"say":"x"}}}`
	post(t, srv.URL+"/", body, signed(v, body))

	res, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	out, _ := io.ReadAll(res.Body)
	require.Contains(t, string(out), `groq_extension_dispatch_requests_total{status="200",tool="echo"} 1`)
}

func TestManifest(t *testing.T) {
	srv, _, _, _ := newTestServer(t, Options{Version: "1.2.3"})

	res, err := http.Get(srv.URL + "/manifest")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var m manifest
	require.NoError(t, json.NewDecoder(res.Body).Decode(&m))
	require.Equal(t, "Groq Extension", m.Name)
	require.Equal(t, "Interact with Groq's Models.", m.Description)
	require.Equal(t, "1.2.3", m.Version)
	ids := []string{}
	for _, f := range m.Functions {
		ids = append(ids, f.ID)
	}
	require.Equal(t, []string{"echo", "failing", "listModels"}, ids)
	require.JSONEq(t, `{"type":"object","properties":{"say":{"type":"string"}}}`, string(m.Functions[0].Parameters))
}

func TestMCPRoutesDisabledByDefault(t *testing.T) {
	srv, _, _, _ := newTestServer(t, Options{})
	res, err := http.Get(srv.URL + "/sse")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestMCPToolHandler(t *testing.T) {
	_, _, d, registry := newTestServer(t, Options{})

	var req mcp.CallToolRequest
	req.Params.Name = "echo_args"
	req.Params.Arguments = map[string]any{"say": "over mcp"}

	tool, ok := registry.Lookup("echo_args")
	require.True(t, ok)
	res, err := toolHandler(d, tool)(context.Background(), req)
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Equal(t, "over mcp", res.Content[0].(mcp.TextContent).Text)

	tool, _ = registry.Lookup("failing")
	res, err = toolHandler(d, tool)(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestNewMCPServerRegistersTools(t *testing.T) {
	_, _, d, registry := newTestServer(t, Options{})
	s := newMCPServer(d, registry, "test")

	raw := json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`)
	msg := s.HandleMessage(context.Background(), raw)
	out, err := json.Marshal(msg)
	require.NoError(t, err)
	for _, name := range []string{"echo_args", "list_models", "failing"} {
		require.Contains(t, string(out), `"name":"`+name+`"`)
	}

	initReq := json.RawMessage(`{"jsonrpc":"2.0","id":2,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"t","version":"0"}}}`)
	out, err = json.Marshal(s.HandleMessage(context.Background(), initReq))
	require.NoError(t, err)
	require.Contains(t, string(out), `"name":"Groq Extension"`)
}
