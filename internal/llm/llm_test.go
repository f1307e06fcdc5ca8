package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/comigor/groq-extension-go/internal/config"
	"github.com/comigor/groq-extension-go/internal/session"
)

// fakeGroq emulates the OpenAI-compatible endpoints the extension uses.
type fakeGroq struct {
	mu       sync.Mutex
	requests []openai.ChatCompletionRequest
	reply    string
	chunks   []string
}

func (f *fakeGroq) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()

		if req.Stream {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, `data: {"id":"c1","object":"chat.completion.chunk","model":"m","choices":[{"index":0,"delta":{"role":"assistant"}}]}`+"\n\n")
			for _, c := range f.chunks {
				b, _ := json.Marshal(c)
				fmt.Fprintf(w, `data: {"id":"c1","object":"chat.completion.chunk","model":"m","choices":[{"index":0,"delta":{"content":%s}}]}`+"\n\n", b)
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		b, _ := json.Marshal(f.reply)
		fmt.Fprintf(w, `{"id":"c1","object":"chat.completion","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":%s},"finish_reason":"stop"}]}`, b)
	})
	return mux
}

func newFakeClient(t *testing.T, f *fakeGroq) *openai.Client {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return NewClient(config.LLMConfig{APIKey: "test", BaseURL: srv.URL})
}

func drain(t *testing.T, s ChunkStream) []string {
	t.Helper()
	var out []string
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, chunk)
	}
}

var question = []session.ChatMessage{{Role: session.RoleUser, Content: "2+2?"}}

func TestCompleter_Complete(t *testing.T) {
	f := &fakeGroq{reply: "4"}
	c := NewCompleter(newFakeClient(t, f), nil)

	out, err := c.Complete(context.Background(), "gemma2-9b-it", question)
	require.NoError(t, err)
	require.Equal(t, "4", out)
	require.Len(t, f.requests, 1)
	require.Equal(t, "gemma2-9b-it", f.requests[0].Model)
	require.Equal(t, "user", f.requests[0].Messages[0].Role)
}

func TestCompleter_StreamRelaysChunksInOrder(t *testing.T) {
	f := &fakeGroq{chunks: []string{"The ", "answer ", "is 4"}}
	c := NewCompleter(newFakeClient(t, f), nil)

	s, err := c.Stream(context.Background(), "gemma2-9b-it", question)
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, []string{"The ", "answer ", "is 4"}, drain(t, s))
	require.True(t, f.requests[0].Stream)
}

func TestCompleter_NonStreamingModelYieldsSingleChunk(t *testing.T) {
	f := &fakeGroq{reply: "whole answer"}
	c := NewCompleter(newFakeClient(t, f), []string{"batch-only"})

	s, err := c.Stream(context.Background(), "batch-only", question)
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, []string{"whole answer"}, drain(t, s))
	require.False(t, f.requests[0].Stream)
}

type emptyClient struct{ Client }

func (emptyClient) CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return openai.ChatCompletionResponse{}, nil
}

func TestCompleter_EmptyChoices(t *testing.T) {
	c := NewCompleter(emptyClient{}, nil)
	_, err := c.Complete(context.Background(), "m", question)
	require.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestSliceStream(t *testing.T) {
	s := SliceStream("a", "b")
	require.Equal(t, []string{"a", "b"}, drain(t, s))

	s = SliceStream("a")
	require.NoError(t, s.Close())
	_, err := s.Recv()
	require.ErrorIs(t, err, io.EOF)
}
