package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ascentxr/opsdeck/internal/lifecycle"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func queued() *Task {
	return &Task{ID: "t1", AgentID: "a1", Status: lifecycle.TaskQueued, Revision: 1, CreatedAt: t0}
}

func TestApplyReportLifecycle(t *testing.T) {
	tk := queued()

	require.NoError(t, tk.ApplyReport(Report{Status: lifecycle.TaskAssigned, ResultDelta: "ignored"}, t0))
	assert.Empty(t, tk.Result)
	assert.Nil(t, tk.StartedAt)

	require.NoError(t, tk.ApplyReport(Report{Status: lifecycle.TaskRunning, ResultDelta: "a"}, t0.Add(time.Second)))
	require.NoError(t, tk.ApplyReport(Report{Status: lifecycle.TaskStreaming, ResultDelta: "b"}, t0.Add(2*time.Second)))
	require.NoError(t, tk.ApplyReport(Report{Status: lifecycle.TaskStreaming, ResultDelta: "c"}, t0.Add(3*time.Second)))
	require.NoError(t, tk.ApplyReport(Report{Status: lifecycle.TaskReview, ResultDelta: "d"}, t0.Add(5*time.Second)))

	assert.Equal(t, lifecycle.TaskReview, tk.Status)
	assert.Equal(t, "abcd", tk.Result)
	require.NotNil(t, tk.StartedAt)
	assert.Equal(t, t0.Add(time.Second), *tk.StartedAt)
	require.NotNil(t, tk.ExecutionTimeMs)
	assert.Equal(t, int64(4000), *tk.ExecutionTimeMs)
	assert.Equal(t, int64(6), tk.Revision)

	// result is frozen in review
	require.NoError(t, tk.ApplyReport(Report{Status: lifecycle.TaskReview, ResultDelta: "late"}, t0.Add(6*time.Second)))
	assert.Equal(t, "abcd", tk.Result)
	assert.Equal(t, int64(6), tk.Revision)
}

func TestApplyReportRejectsBackwardsAndTerminal(t *testing.T) {
	tk := queued()
	require.NoError(t, tk.ApplyReport(Report{Status: lifecycle.TaskStreaming}, t0))

	err := tk.ApplyReport(Report{Status: lifecycle.TaskRunning}, t0)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	ms := int64(12)
	require.NoError(t, tk.ApplyReport(Report{Status: lifecycle.TaskFailed, Error: "engine crashed", ExecutionTimeMs: &ms}, t0))
	assert.Equal(t, "engine crashed", tk.Error)
	assert.Equal(t, int64(12), *tk.ExecutionTimeMs)

	for _, s := range lifecycle.TaskStatuses {
		err := tk.ApplyReport(Report{Status: s}, t0)
		assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition, s)
	}
}

func TestApplyReportUnknownStatus(t *testing.T) {
	err := queued().ApplyReport(Report{Status: "paused"}, t0)
	assert.ErrorIs(t, err, lifecycle.ErrUnmappedStatus)
}

func TestRedeliveredReportIsNoop(t *testing.T) {
	tk := queued()
	require.NoError(t, tk.ApplyReport(Report{Status: lifecycle.TaskRunning}, t0))
	rev := tk.Revision
	require.NoError(t, tk.ApplyReport(Report{Status: lifecycle.TaskRunning}, t0))
	assert.Equal(t, rev, tk.Revision)
}

func TestReview(t *testing.T) {
	tk := queued()
	err := tk.Review(lifecycle.ReviewApprove, "ops", "", t0)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	require.NoError(t, tk.ApplyReport(Report{Status: lifecycle.TaskRunning, ResultDelta: "draft"}, t0))
	require.NoError(t, tk.ApplyReport(Report{Status: lifecycle.TaskReview}, t0))
	require.NoError(t, tk.Review(lifecycle.ReviewReject, "ops", "tone is off", t0))

	assert.Equal(t, lifecycle.TaskRejected, tk.Status)
	assert.Equal(t, "draft", tk.Result)
	assert.Equal(t, "tone is off", tk.ReviewNotes)
	assert.Equal(t, "ops", tk.ReviewedBy)
	assert.True(t, tk.CanRetry())

	err = tk.Review(lifecycle.ReviewApprove, "ops", "", t0)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
}

func TestReviewLeavesResultFrozen(t *testing.T) {
	for _, action := range []lifecycle.ReviewAction{lifecycle.ReviewApprove, lifecycle.ReviewReject} {
		t.Run(string(action), func(t *testing.T) {
			tk := queued()
			require.NoError(t, tk.ApplyReport(Report{Status: lifecycle.TaskStreaming, ResultDelta: "draft"}, t0))
			require.NoError(t, tk.ApplyReport(Report{Status: lifecycle.TaskReview}, t0))
			require.NoError(t, tk.Review(action, "ops", "looks good", t0))
			assert.Equal(t, "draft", tk.Result)
			assert.Equal(t, "looks good", tk.ReviewNotes)
		})
	}
}

func TestClaim(t *testing.T) {
	tk := queued()
	require.NoError(t, tk.Claim("worker-1", t0))
	assert.Equal(t, lifecycle.TaskAssigned, tk.Status)
	assert.Equal(t, "worker-1", tk.ClaimedBy)
	assert.ErrorIs(t, tk.Claim("worker-2", t0), lifecycle.ErrInvalidTransition)
}
