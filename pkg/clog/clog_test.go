package clog

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextAttributes(t *testing.T) {
	ctx := ContextWithSlog(context.Background())
	AddAttribute(ctx, "task_id", "t1")
	AddAttributes(ctx, map[string]any{"run": map[string]any{"step": 1}})
	AddAttributes(ctx, map[string]any{"run": map[string]any{"id": "r1"}})

	assert.Equal(t, "t1", GetAttribute[string](ctx, "task_id"))
	assert.Equal(t, 0, GetAttribute[int](ctx, "task_id"))
	assert.Equal(t, map[string]any{"step": 1, "id": "r1"}, GetAttributes(ctx)["run"])

	err := errors.New("boom")
	AddError(ctx, err)
	assert.Equal(t, err, GetError(ctx))

	// no bag attached
	AddAttribute(context.Background(), "x", 1)
	assert.Nil(t, GetAttributes(context.Background()))
}

func TestTextHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewAttributesHandler(NewTextHandler(&buf, WithColor(false), WithLevel(slog.LevelDebug))))

	ctx := ContextWithSlog(context.Background())
	AddAttributes(ctx, map[string]any{"method": "POST", "procedure": "/api/tasks", "code": "not_found"})
	logger.WarnContext(ctx, "task not found", "task_id", "t9")

	out := buf.String()
	assert.Contains(t, out, "WARN POST /api/tasks \"[not_found] task not found\"\n")
	assert.Contains(t, out, "    task_id=t9\n")
}

func TestTextHandlerLevel(t *testing.T) {
	h := NewTextHandler(&bytes.Buffer{})
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
}

func TestSlogChiMiddleware(t *testing.T) {
	var seen map[string]any
	h := SlogChiMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetAttributes(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/skills", nil))
	require.NotNil(t, seen)
	assert.Equal(t, "/api/skills", seen["procedure"])
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestLevels(t *testing.T) {
	assert.Equal(t, LevelInfo, HTTPStatusToLevel(200))
	assert.Equal(t, LevelWarn, HTTPStatusToLevel(404))
	assert.Equal(t, LevelError, HTTPStatusToLevel(503))
	assert.Equal(t, LevelInfo, ConnectCodeToLevel(connect.CodeNotFound))
	assert.Equal(t, LevelError, ConnectCodeToLevel(connect.CodeInternal))
}
