package workflowrun

import (
	"time"

	"github.com/ascentxr/opsdeck/internal/lifecycle"
)

type Run struct {
	ID           string              `json:"id" yaml:"id"`
	WorkflowID   string              `json:"workflow_id" yaml:"workflow_id"`
	WorkflowName string              `json:"workflow_name" yaml:"workflow_name"`
	TotalSteps   int                 `json:"total_steps" yaml:"total_steps"`
	CurrentStep  int                 `json:"current_step" yaml:"current_step"`
	Status       lifecycle.RunStatus `json:"status" yaml:"status"`
	Steps        []Step              `json:"steps" yaml:"steps"`
	Context      map[string]string   `json:"context,omitempty" yaml:"context,omitempty"`
	CreatedBy    string              `json:"created_by,omitempty" yaml:"created_by,omitempty"`
	Revision     int64               `json:"revision" yaml:"revision"`
	CreatedAt    time.Time           `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at" yaml:"updated_at"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	CancelledAt  *time.Time          `json:"cancelled_at,omitempty" yaml:"cancelled_at,omitempty"`
}

type Step struct {
	Number     int                  `json:"number" yaml:"number"`
	Name       string               `json:"name" yaml:"name"`
	SkillID    string               `json:"skill_id" yaml:"skill_id"`
	AgentID    string               `json:"agent_id,omitempty" yaml:"agent_id,omitempty"`
	TaskID     string               `json:"task_id,omitempty" yaml:"task_id,omitempty"`
	TaskStatus lifecycle.TaskStatus `json:"task_status,omitempty" yaml:"task_status,omitempty"`
}

func (r *Run) touch(now time.Time) {
	r.Revision++
	r.UpdatedAt = now
}

func (r *Run) invalid(action string) error {
	return lifecycle.NewInvalidTransition("workflow run", r.ID, r.Status, action)
}

// Step returns step n (1-based), or nil when n is out of range.
func (r *Run) Step(n int) *Step {
	if n < 1 || n > len(r.Steps) {
		return nil
	}
	return &r.Steps[n-1]
}

// Command is an operator command on a run.
type Command string

const (
	CommandAdvance Command = "advance"
	CommandCancel  Command = "cancel"
	CommandPause   Command = "pause"
	CommandResume  Command = "resume"
)

// Check reports whether cmd is allowed in the run's current state without
// changing the run.
func (r *Run) Check(cmd Command) error {
	ok := false
	switch cmd {
	case CommandAdvance:
		ok = r.Status == lifecycle.RunRunning && r.CurrentStep >= 1 && r.CurrentStep <= r.TotalSteps
	case CommandCancel:
		ok = r.Status == lifecycle.RunRunning || r.Status == lifecycle.RunPaused
	case CommandPause:
		ok = r.Status == lifecycle.RunRunning
	case CommandResume:
		ok = r.Status == lifecycle.RunPaused
	}
	if !ok {
		return r.invalid(string(cmd))
	}
	return nil
}

// Advance moves the run one step forward. At the last step it completes the
// run and leaves CurrentStep where it is. next is the step that now needs a
// task, or 0 when the run completed.
func (r *Run) Advance(now time.Time) (next int, err error) {
	if err := r.Check(CommandAdvance); err != nil {
		return 0, err
	}
	if r.CurrentStep == r.TotalSteps {
		r.Status = lifecycle.RunCompleted
		r.CompletedAt = &now
		r.touch(now)
		return 0, nil
	}
	r.CurrentStep++
	r.touch(now)
	return r.CurrentStep, nil
}

// Cancel stops further advancement. Tasks already dispatched keep running.
func (r *Run) Cancel(now time.Time) error {
	if err := r.Check(CommandCancel); err != nil {
		return err
	}
	r.Status = lifecycle.RunCancelled
	r.CancelledAt = &now
	r.touch(now)
	return nil
}

func (r *Run) Pause(now time.Time) error {
	if err := r.Check(CommandPause); err != nil {
		return err
	}
	r.Status = lifecycle.RunPaused
	r.touch(now)
	return nil
}

func (r *Run) Resume(now time.Time) error {
	if err := r.Check(CommandResume); err != nil {
		return err
	}
	r.Status = lifecycle.RunRunning
	r.touch(now)
	return nil
}

// RecordTask stores the latest status of the task executing step n. Reports
// for a task that no longer owns the step are ignored.
func (r *Run) RecordTask(n int, taskID string, status lifecycle.TaskStatus, now time.Time) bool {
	st := r.Step(n)
	if st == nil || st.TaskID != taskID || st.TaskStatus == status {
		return false
	}
	st.TaskStatus = status
	r.touch(now)
	return true
}

// StepRenderState derives how step n is drawn in a progress indicator. It
// carries no transition authority.
func StepRenderState(r *Run, n int) lifecycle.StepState {
	switch {
	case n < r.CurrentStep:
		return lifecycle.StepCompleted
	case n == r.CurrentStep && r.Status == lifecycle.RunRunning:
		return lifecycle.StepCurrent
	default:
		return lifecycle.StepUpcoming
	}
}
