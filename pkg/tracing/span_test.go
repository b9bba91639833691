package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChildSpansInheritTraceID(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "page", "run-1")
	_, fetch := StartChildSpan(ctx, "fetch_records")
	fetch.SetAttr("records", 3)
	fetch.End()
	root.End()

	assert.Equal(t, "run-1", fetch.TraceID)
	require.Len(t, root.Children, 1)
	assert.Same(t, fetch, root.Children[0])
	assert.Same(t, root, SpanFromContext(ctx))
}

func TestChildWithoutParent(t *testing.T) {
	ctx, s := StartChildSpan(context.Background(), "orphan")
	assert.Empty(t, s.TraceID)
	assert.Same(t, s, SpanFromContext(ctx))
	assert.Nil(t, SpanFromContext(context.Background()))
}

func TestLogWritesTree(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, root := StartSpan(context.Background(), "page", "run-1")
	_, child := StartChildSpan(ctx, "index_records")
	child.SetAttr("indexed", 10)
	child.End()
	root.End()
	root.Log(ctx, logger)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "index_records", second["span"])
	assert.Equal(t, float64(1), second["depth"])
	assert.Equal(t, float64(10), second["indexed"])
}
