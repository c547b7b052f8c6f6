package task

import (
	"time"

	"github.com/ascentxr/opsdeck/internal/lifecycle"
)

// Context keys linking a task back to the unit of work that dispatched it.
const (
	ContextCalendarEntryID = "calendar_entry_id"
	ContextPlanID          = "plan_id"
	ContextSkillID         = "skill_id"
	ContextPhase           = "phase"
	ContextWorkflowRunID   = "workflow_run_id"
	ContextStep            = "step"
)

type Task struct {
	ID              string               `json:"id" yaml:"id"`
	AgentID         string               `json:"agent_id" yaml:"agent_id"`
	Title           string               `json:"title" yaml:"title"`
	Prompt          string               `json:"prompt" yaml:"prompt"`
	BusinessArea    string               `json:"business_area,omitempty" yaml:"business_area,omitempty"`
	Context         map[string]string    `json:"context,omitempty" yaml:"context,omitempty"`
	Status          lifecycle.TaskStatus `json:"status" yaml:"status"`
	Result          string               `json:"result,omitempty" yaml:"result,omitempty"`
	Error           string               `json:"error,omitempty" yaml:"error,omitempty"`
	ExecutionTimeMs *int64               `json:"execution_time_ms,omitempty" yaml:"execution_time_ms,omitempty"`
	TokensUsed      *int64               `json:"tokens_used,omitempty" yaml:"tokens_used,omitempty"`
	ReviewedBy      string               `json:"reviewed_by,omitempty" yaml:"reviewed_by,omitempty"`
	ReviewNotes     string               `json:"review_notes,omitempty" yaml:"review_notes,omitempty"`
	RetryOf         string               `json:"retry_of,omitempty" yaml:"retry_of,omitempty"`
	ClaimedBy       string               `json:"claimed_by,omitempty" yaml:"claimed_by,omitempty"`
	Revision        int64                `json:"revision" yaml:"revision"`
	CreatedAt       time.Time            `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at" yaml:"updated_at"`
	StartedAt       *time.Time           `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt     *time.Time           `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	ReviewedAt      *time.Time           `json:"reviewed_at,omitempty" yaml:"reviewed_at,omitempty"`
}

// Report is one status report from the execution engine.
type Report struct {
	Status          lifecycle.TaskStatus `json:"status" validate:"required"`
	ResultDelta     string               `json:"result_delta,omitempty"`
	Error           string               `json:"error,omitempty"`
	ExecutionTimeMs *int64               `json:"execution_time_ms,omitempty" validate:"omitempty,min=0"`
	TokensUsed      *int64               `json:"tokens_used,omitempty" validate:"omitempty,min=0"`
}

func (t *Task) touch(now time.Time) {
	t.Revision++
	t.UpdatedAt = now
}

// Claim moves a queued task to assigned on behalf of worker. Only one worker
// can win the claim.
func (t *Task) Claim(worker string, now time.Time) error {
	if t.Status != lifecycle.TaskQueued {
		return lifecycle.NewInvalidTransition("task", t.ID, t.Status, "claim")
	}
	t.Status = lifecycle.TaskAssigned
	t.ClaimedBy = worker
	t.touch(now)
	return nil
}

// ApplyReport applies an engine report. Output is appended while the task
// is executing and once more on the report that ends execution; after that
// the result is frozen.
func (t *Task) ApplyReport(r Report, now time.Time) error {
	if !r.Status.Valid() {
		return &lifecycle.UnmappedStatusError{Table: "task status", Value: string(r.Status)}
	}
	if !lifecycle.CanEngineMove(t.Status, r.Status) {
		return lifecycle.NewInvalidTransition("task", t.ID, t.Status, "report "+string(r.Status))
	}
	prev := t.Status
	if prev == r.Status && (r.ResultDelta == "" || !r.Status.IsExecuting()) {
		// redelivered report; nothing changes and the revision stays put
		return nil
	}
	t.Status = r.Status

	finishing := prev != r.Status && (r.Status == lifecycle.TaskReview || r.Status == lifecycle.TaskFailed)
	if r.ResultDelta != "" && (r.Status.IsExecuting() || finishing) {
		t.Result += r.ResultDelta
	}
	if r.Status.IsExecuting() && t.StartedAt == nil {
		t.StartedAt = &now
	}
	if finishing {
		t.CompletedAt = &now
		t.ExecutionTimeMs = r.ExecutionTimeMs
		if t.ExecutionTimeMs == nil && t.StartedAt != nil {
			ms := now.Sub(*t.StartedAt).Milliseconds()
			t.ExecutionTimeMs = &ms
		}
		if r.TokensUsed != nil {
			t.TokensUsed = r.TokensUsed
		}
	}
	if r.Status == lifecycle.TaskFailed && r.Error != "" {
		t.Error = r.Error
	}
	t.touch(now)
	return nil
}

// CheckReview reports whether the task awaits an operator decision.
func (t *Task) CheckReview(action lifecycle.ReviewAction) error {
	if t.Status != lifecycle.TaskReview {
		return lifecycle.NewInvalidTransition("task", t.ID, t.Status, "review as "+string(action))
	}
	return nil
}

// Review resolves a task in review. The result is left as the engine
// delivered it; notes are kept apart in ReviewNotes.
func (t *Task) Review(action lifecycle.ReviewAction, reviewer, notes string, now time.Time) error {
	if err := t.CheckReview(action); err != nil {
		return err
	}
	t.Status = action.Outcome()
	t.ReviewedBy = reviewer
	t.ReviewNotes = notes
	t.ReviewedAt = &now
	t.touch(now)
	return nil
}

// CanRetry is true for tasks that ended without an accepted result.
func (t *Task) CanRetry() bool {
	return t.Status == lifecycle.TaskFailed || t.Status == lifecycle.TaskRejected
}
