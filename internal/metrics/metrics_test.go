package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestObserveDispatch(t *testing.T) {
	m := New()
	m.ObserveDispatch("listModels", http.StatusOK, 10*time.Millisecond)
	m.ObserveDispatch("listModels", http.StatusOK, 5*time.Millisecond)
	m.ObserveDispatch("", http.StatusUnauthorized, time.Millisecond)

	body := scrape(t, m)
	require.Contains(t, body, `groq_extension_dispatch_requests_total{status="200",tool="listModels"} 2`)
	require.Contains(t, body, `groq_extension_dispatch_requests_total{status="401",tool="none"} 1`)
	require.Contains(t, body, `groq_extension_dispatch_duration_seconds_count{tool="listModels"} 2`)
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveChunk()
	m.ObserveStream("done")

	body := scrape(t, m)
	require.Contains(t, body, "groq_extension_stream_chunks_total 1")
	require.Contains(t, body, `groq_extension_streams_total{state="done"} 1`)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveDispatch("x", 200, time.Second)
		m.ObserveChunk()
		m.ObserveStream("failed")
	})
}
