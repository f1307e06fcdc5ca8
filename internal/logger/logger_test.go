package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_FormatAndLevel(t *testing.T) {
	t.Cleanup(func() { SetLevel("info") })

	var buf bytes.Buffer
	l := New(&buf, "json")

	SetLevel("warn")
	l.Info("hidden")
	require.Zero(t, buf.Len())

	l.Warn("shown", "tool", "listModels")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "shown", rec["msg"])
	require.Equal(t, "listModels", rec["tool"])

	buf.Reset()
	New(&buf, "TEXT").Warn("plain")
	require.Contains(t, buf.String(), "msg=plain")
}

func TestSetLevel_UnknownFallsBackToInfo(t *testing.T) {
	t.Cleanup(func() { SetLevel("info") })

	var buf bytes.Buffer
	l := New(&buf, "json")
	SetLevel("loud")
	l.Debug("hidden")
	require.Zero(t, buf.Len())
	l.Info("shown")
	require.NotZero(t, buf.Len())
}
