package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ascentxr/opsdeck/internal/engine"
	"github.com/ascentxr/opsdeck/internal/lifecycle"
	"github.com/ascentxr/opsdeck/internal/task"
)

func TestTaskChanged(t *testing.T) {
	m := New()
	ms := int64(30_000)
	tokens := int64(1200)
	tk := &task.Task{ID: "t1", AgentID: "growth-agent", Status: lifecycle.TaskReview, ExecutionTimeMs: &ms, TokensUsed: &tokens}

	m.TaskChanged(context.Background(), lifecycle.TaskRunning, tk)
	m.TaskChanged(context.Background(), lifecycle.TaskReview, tk)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.taskTransitions.WithLabelValues("growth-agent", "review")))
	assert.Equal(t, 1200.0, testutil.ToFloat64(m.taskTokens.WithLabelValues("growth-agent")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.taskDuration))
}

func TestReportIngested(t *testing.T) {
	m := New()
	m.ReportIngested(lifecycle.TaskRunning, engine.OutcomeApplied)
	m.ReportIngested(lifecycle.TaskRunning, engine.OutcomeDuplicate)
	m.ReportIngested("", engine.OutcomeRejected)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.reportsIngested.WithLabelValues("running", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reportsIngested.WithLabelValues("unknown", "rejected")))
}

func TestHandlerServesGauges(t *testing.T) {
	m := New()
	m.GaugeFunc("push", "subscribers", "Connected task update subscribers.", func() int { return 3 })
	m.UpdateDropped()
	m.EntriesPromoted(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "opsdeck_push_subscribers 3")
	assert.Contains(t, body, "opsdeck_push_dropped_updates_total 1")
	assert.Contains(t, body, "opsdeck_calendar_promoted_entries_total 2")
}
