package internal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ascentxr/opsdeck/internal/config"
	"github.com/ascentxr/opsdeck/pkg/cerr"
	"github.com/ascentxr/opsdeck/pkg/storage"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	app, err := NewApp(&config.Env{
		BaseEnv:      config.BaseEnv{APIKey: "secret", AllowedOrigins: []string{"*"}},
		SchedulerEnv: config.SchedulerEnv{PromoteCron: "5 0 * * *", TimeZone: "UTC", WorkerTimeout: time.Minute},
	}, st)
	require.NoError(t, err)
	return app.Server.Handler()
}

func TestAPIKey(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"health is open", "/health", nil, http.StatusOK},
		{"metrics are open", "/metrics", nil, http.StatusOK},
		{"missing key", "/api/tasks", nil, http.StatusUnauthorized},
		{"wrong key", "/api/tasks", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"header key", "/api/tasks", map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"bearer key", "/api/tasks", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"query key only for websocket", "/api/tasks?api_key=secret", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestUnknownRouteIsJSON(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/nothing-here", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body cerr.HTTPError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body.Code)
}
