package skillcalendar

import (
	"slices"
	"time"
	"unicode/utf8"

	"github.com/ascentxr/opsdeck/internal/lifecycle"
)

// DateLayout is the layout of every calendar date on the wire and at rest.
const DateLayout = "2006-01-02"

const summaryLimit = 2000

type PlanStatus string

const (
	PlanDraft    PlanStatus = "draft"
	PlanActive   PlanStatus = "active"
	PlanArchived PlanStatus = "archived"
)

func (s PlanStatus) String() string { return string(s) }

func (s PlanStatus) Valid() bool {
	return slices.Contains([]PlanStatus{PlanDraft, PlanActive, PlanArchived}, s)
}

type Plan struct {
	ID           string     `json:"id" yaml:"id"`
	Name         string     `json:"name" yaml:"name"`
	Slug         string     `json:"slug" yaml:"slug"`
	Description  string     `json:"description,omitempty" yaml:"description,omitempty"`
	BusinessArea string     `json:"business_area" yaml:"business_area"`
	Status       PlanStatus `json:"status" yaml:"status"`
	StartDate    string     `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate      string     `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	CreatedBy    string     `json:"created_by,omitempty" yaml:"created_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" yaml:"updated_at"`
}

// SetStatus allows draft to active and either of them to archived.
func (p *Plan) SetStatus(to PlanStatus, now time.Time) error {
	if p.Status == to {
		return nil
	}
	if p.Status == PlanArchived || (p.Status == PlanActive && to == PlanDraft) {
		return lifecycle.NewInvalidTransition("plan", p.ID, p.Status, "set status "+string(to))
	}
	p.Status = to
	p.UpdatedAt = now
	return nil
}

type Entry struct {
	ID              string                `json:"id" yaml:"id"`
	PlanID          string                `json:"plan_id" yaml:"plan_id"`
	SkillID         string                `json:"skill_id,omitempty" yaml:"skill_id,omitempty"`
	TitleOverride   string                `json:"title_override,omitempty" yaml:"title_override,omitempty"`
	ScheduledDate   string                `json:"scheduled_date" yaml:"scheduled_date"`
	DayOrder        int                   `json:"day_order" yaml:"day_order"`
	Phase           string                `json:"phase,omitempty" yaml:"phase,omitempty"`
	Priority        int                   `json:"priority" yaml:"priority"`
	AssignedAgentID string                `json:"assigned_agent_id,omitempty" yaml:"assigned_agent_id,omitempty"`
	Notes           string                `json:"notes,omitempty" yaml:"notes,omitempty"`
	Status          lifecycle.EntryStatus `json:"status" yaml:"status"`
	TaskID          string                `json:"task_id,omitempty" yaml:"task_id,omitempty"`
	ResultSummary   string                `json:"result_summary,omitempty" yaml:"result_summary,omitempty"`
	Revision        int64                 `json:"revision" yaml:"revision"`
	CreatedAt       time.Time             `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at" yaml:"updated_at"`
	StartedAt       *time.Time            `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt     *time.Time            `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

func (e *Entry) touch(now time.Time) {
	e.Revision++
	e.UpdatedAt = now
}

func (e *Entry) invalid(action string) error {
	return lifecycle.NewInvalidTransition("calendar entry", e.ID, e.Status, action)
}

// CheckExecute rejects execution from any state other than pending,
// scheduled or failed.
func (e *Entry) CheckExecute() error {
	if !e.Status.CanExecute() {
		return e.invalid("execute")
	}
	return nil
}

// Started links the task that now executes the entry. A retry from failed
// clears the outcome of the previous attempt.
func (e *Entry) Started(taskID string, now time.Time) error {
	if err := e.CheckExecute(); err != nil {
		return err
	}
	e.Status = lifecycle.EntryRunning
	e.TaskID = taskID
	e.ResultSummary = ""
	e.CompletedAt = nil
	e.StartedAt = &now
	e.touch(now)
	return nil
}

func (e *Entry) Skip(now time.Time) error {
	if !e.Status.CanSkip() {
		return e.invalid("skip")
	}
	e.Status = lifecycle.EntrySkipped
	e.CompletedAt = &now
	e.touch(now)
	return nil
}

// Promote marks a pending entry due on or before today as scheduled.
func (e *Entry) Promote(today string, now time.Time) bool {
	if e.Status != lifecycle.EntryPending || e.ScheduledDate > today {
		return false
	}
	e.Status = lifecycle.EntryScheduled
	e.touch(now)
	return true
}

// TaskOutcome is what the entry needs to know about its task.
type TaskOutcome struct {
	TaskID  string
	RetryOf string
	Status  lifecycle.TaskStatus
	Result  string
	Error   string
}

// SyncTask folds the status of the entry's task into the entry. Terminal
// entries and tasks that do not own the entry are ignored, except a retry
// of the entry's failed task, which takes ownership.
func (e *Entry) SyncTask(o TaskOutcome, now time.Time) (bool, error) {
	if e.Status.IsTerminal() {
		return false, nil
	}
	if e.TaskID != o.TaskID {
		if o.RetryOf == "" || o.RetryOf != e.TaskID || e.Status != lifecycle.EntryFailed {
			return false, nil
		}
		e.TaskID = o.TaskID
		e.ResultSummary = ""
		e.CompletedAt = nil
	}
	to, err := lifecycle.EntryStatusForTask(o.Status)
	if err != nil {
		return false, err
	}
	if to == e.Status {
		return false, nil
	}
	e.Status = to
	switch to {
	case lifecycle.EntryRunning:
		if e.StartedAt == nil {
			e.StartedAt = &now
		}
	case lifecycle.EntryCompleted:
		e.ResultSummary = truncate(o.Result, summaryLimit)
		e.CompletedAt = &now
	case lifecycle.EntryFailed:
		e.ResultSummary = truncate(o.Error, summaryLimit)
		e.CompletedAt = &now
	}
	e.touch(now)
	return true, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
