package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/comigor/groq-extension-go/internal/config"
)

type fakeSource struct {
	mu     sync.Mutex
	models []openai.Model
	err    error
	calls  atomic.Int32
}

func (f *fakeSource) ListModels(context.Context) (openai.ModelsList, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return openai.ModelsList{}, f.err
	}
	return openai.ModelsList{Models: append([]openai.Model(nil), f.models...)}, nil
}

func (f *fakeSource) set(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.models = nil
	for _, id := range ids {
		f.models = append(f.models, openai.Model{ID: id, OwnedBy: "Groq"})
	}
}

func TestCache_ListIsMemoized(t *testing.T) {
	src := &fakeSource{}
	src.set("llama-3.1-8b-instant", "gemma2-9b-it")
	c := NewCache(src, nil)

	first, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, "gemma2-9b-it", first[0].Name, "ordered by display name")

	src.set("something-else")
	second, err := c.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.EqualValues(t, 1, src.calls.Load())
}

func TestCache_ConcurrentColdLoadFetchesOnce(t *testing.T) {
	src := &fakeSource{}
	src.set("gemma2-9b-it")
	c := NewCache(src, nil)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.List(context.Background())
		}()
	}
	wg.Wait()

	models, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	require.LessOrEqual(t, src.calls.Load(), int32(20))
}

// ctxSource fails like an HTTP client would once its context is done.
type ctxSource struct{ fakeSource }

func (f *ctxSource) ListModels(ctx context.Context) (openai.ModelsList, error) {
	if err := ctx.Err(); err != nil {
		return openai.ModelsList{}, err
	}
	return f.fakeSource.ListModels(ctx)
}

func TestCache_SharedLoadIgnoresCallerCancellation(t *testing.T) {
	src := &ctxSource{}
	src.set("gemma2-9b-it")
	c := NewCache(src, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	models, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, models, 1)
}

func TestCache_GetReloadsOnMiss(t *testing.T) {
	src := &fakeSource{}
	src.set("gemma2-9b-it")
	c := NewCache(src, nil)

	_, err := c.List(context.Background())
	require.NoError(t, err)

	src.set("gemma2-9b-it", "qwen-qwq-32b")
	m, err := c.Get(context.Background(), "qwen-qwq-32b")
	require.NoError(t, err)
	require.Equal(t, "qwen-qwq-32b", m.Name)
	require.EqualValues(t, 2, src.calls.Load())
}

func TestCache_GetNotFound(t *testing.T) {
	src := &fakeSource{}
	src.set("gemma2-9b-it")
	c := NewCache(src, nil)

	_, err := c.Get(context.Background(), "gpt-9")
	require.ErrorIs(t, err, ErrModelNotFound)

	_, err = c.Schema(context.Background(), "gpt-9")
	require.ErrorIs(t, err, ErrModelNotFound)
}

func TestCache_UpstreamFailure(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	c := NewCache(src, nil)

	_, err := c.List(context.Background())
	require.ErrorContains(t, err, "connection refused")

	src.mu.Lock()
	src.err = nil
	src.mu.Unlock()
	src.set("gemma2-9b-it")

	models, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
}

func TestCache_OverlayAndSchema(t *testing.T) {
	overlay, err := OverlayFromConfig([]config.ModelConfig{{
		Name:           "gemma2-9b-it",
		DisplayName:    "Gemma 2 9B",
		Publisher:      "Google",
		License:        "gemma",
		InferenceTasks: []string{"chat-completion"},
		Summary:        "Small open model.",
		Schema: map[string]any{
			"parameters":   []any{map[string]any{"key": "temperature", "type": "number", "payloadPath": "temperature", "required": false}},
			"capabilities": map[string]any{"streaming": true},
		},
	}})
	require.NoError(t, err)

	src := &fakeSource{}
	src.set("gemma2-9b-it", "whisper-large-v3")
	c := NewCache(src, overlay)

	m, err := c.Get(context.Background(), "Gemma 2 9B")
	require.NoError(t, err)
	require.Equal(t, "gemma2-9b-it", m.Name)
	require.Equal(t, "Google", m.Publisher)
	require.Equal(t, "gemma", m.License)

	schema, err := c.Schema(context.Background(), "gemma2-9b-it")
	require.NoError(t, err)
	require.Len(t, schema.Parameters, 1)
	require.True(t, schema.Capabilities["streaming"])

	whisper, err := c.Get(context.Background(), "whisper-large-v3")
	require.NoError(t, err)
	require.True(t, whisper.Supports(TaskSpeechToText))
	require.False(t, whisper.Supports(TaskChatCompletion))

	schema, err = c.Schema(context.Background(), "whisper-large-v3")
	require.NoError(t, err)
	require.Equal(t, DefaultSchema(), schema)
}

func TestOverlayFromConfig_RequiresName(t *testing.T) {
	_, err := OverlayFromConfig([]config.ModelConfig{{DisplayName: "nameless"}})
	require.Error(t, err)
}
