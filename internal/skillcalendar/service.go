package skillcalendar

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ascentxr/opsdeck/internal/lifecycle"
	"github.com/ascentxr/opsdeck/internal/skill"
	"github.com/ascentxr/opsdeck/internal/task"
	"github.com/ascentxr/opsdeck/pkg/cerr"
	"github.com/ascentxr/opsdeck/pkg/clog"
)

const defaultPriority = 3

// TaskCreator is the part of the task service used to execute entries.
type TaskCreator interface {
	Create(ctx context.Context, in task.CreateInput) (*task.Task, error)
}

type Config struct {
	DefaultAgentID string
	CompanyContext string
	// Location decides what "today" is for upcoming entries and promotion.
	Location *time.Location
}

type PlanInput struct {
	Name         string     `json:"name" validate:"required,max=200"`
	Slug         string     `json:"slug" validate:"required,max=100"`
	Description  string     `json:"description,omitempty"`
	BusinessArea string     `json:"business_area" validate:"required"`
	Status       PlanStatus `json:"status,omitempty" validate:"omitempty,oneof=draft active archived"`
	StartDate    string     `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate      string     `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	CreatedBy    string     `json:"created_by,omitempty"`
}

type PlanUpdate struct {
	Name        *string     `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string     `json:"description,omitempty"`
	Status      *PlanStatus `json:"status,omitempty" validate:"omitempty,oneof=draft active archived"`
	StartDate   *string     `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate     *string     `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type EntryInput struct {
	PlanID          string `json:"plan_id" validate:"required"`
	SkillID         string `json:"skill_id,omitempty" validate:"required_without=TitleOverride"`
	TitleOverride   string `json:"title_override,omitempty" validate:"max=200"`
	ScheduledDate   string `json:"scheduled_date" validate:"required,datetime=2006-01-02"`
	DayOrder        int    `json:"day_order,omitempty" validate:"min=0"`
	Phase           string `json:"phase,omitempty"`
	Priority        int    `json:"priority,omitempty" validate:"omitempty,min=1,max=5"`
	AssignedAgentID string `json:"assigned_agent_id,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

type EntryUpdate struct {
	ScheduledDate   *string `json:"scheduled_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DayOrder        *int    `json:"day_order,omitempty" validate:"omitempty,min=0"`
	Phase           *string `json:"phase,omitempty"`
	Priority        *int    `json:"priority,omitempty" validate:"omitempty,min=1,max=5"`
	AssignedAgentID *string `json:"assigned_agent_id,omitempty"`
	Notes           *string `json:"notes,omitempty"`
	TitleOverride   *string `json:"title_override,omitempty" validate:"omitempty,max=200"`
}

type ExecuteResult struct {
	EntryID string                `json:"entry_id"`
	TaskID  string                `json:"task_id"`
	AgentID string                `json:"agent_id"`
	Status  lifecycle.EntryStatus `json:"status"`
}

// Service owns every plan and entry mutation.
type Service struct {
	mu      sync.Mutex
	plans   PlanRepository
	entries EntryRepository
	skills  skill.Repository
	tasks   TaskCreator
	cfg     Config
	now     func() time.Time
}

type ServiceOption func(*Service)

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(plans PlanRepository, entries EntryRepository, skills skill.Repository, tasks TaskCreator, cfg Config, opts ...ServiceOption) *Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	s := &Service{plans: plans, entries: entries, skills: skills, tasks: tasks, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) today() string {
	return s.now().In(s.cfg.Location).Format(DateLayout)
}

// Plans

func (s *Service) CreatePlan(ctx context.Context, in PlanInput) (*Plan, error) {
	if err := cerr.ValidateStruct(&in); err != nil {
		return nil, err
	}
	if in.Status == "" {
		in.Status = PlanDraft
	}
	now := s.now()
	p := &Plan{
		ID:           ulid.Make().String(),
		Name:         in.Name,
		Slug:         in.Slug,
		Description:  in.Description,
		BusinessArea: in.BusinessArea,
		Status:       in.Status,
		StartDate:    in.StartDate,
		EndDate:      in.EndDate,
		CreatedBy:    in.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.plans.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetPlan(ctx context.Context, id string) (*Plan, error) {
	return s.plans.Get(ctx, id)
}

func (s *Service) ListPlans(ctx context.Context, f PlanFilter) ([]*Plan, error) {
	return s.plans.List(ctx, f)
}

func (s *Service) UpdatePlan(ctx context.Context, id string, u PlanUpdate) (*Plan, error) {
	if err := cerr.ValidateStruct(&u); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.plans.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if u.Status != nil {
		if err := p.SetStatus(*u.Status, now); err != nil {
			return nil, lifecycle.APIError(err)
		}
	}
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.StartDate != nil {
		p.StartDate = *u.StartDate
	}
	if u.EndDate != nil {
		p.EndDate = *u.EndDate
	}
	p.UpdatedAt = now
	if err := s.plans.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ArchivePlan is the delete operation; entries are kept for history.
func (s *Service) ArchivePlan(ctx context.Context, id string) (*Plan, error) {
	st := PlanArchived
	return s.UpdatePlan(ctx, id, PlanUpdate{Status: &st})
}

// PlanStats recomputes the aggregates from the current entries of a plan.
func (s *Service) PlanStats(ctx context.Context, planID string) (PlanStats, error) {
	if _, err := s.plans.Get(ctx, planID); err != nil {
		return PlanStats{}, err
	}
	entries, err := s.entries.List(ctx, EntryFilter{PlanID: planID})
	if err != nil {
		return PlanStats{}, err
	}
	return ComputePlanStats(entries), nil
}

// Entries

func (s *Service) ListEntries(ctx context.Context, f EntryFilter) ([]*Entry, error) {
	entries, err := s.entries.List(ctx, f)
	if err != nil {
		return nil, err
	}
	SortEntries(entries)
	return entries, nil
}

func (s *Service) GetEntry(ctx context.Context, id string) (*Entry, error) {
	return s.entries.Get(ctx, id)
}

// Upcoming lists actionable entries of active plans due within the next
// days days, today included.
func (s *Service) Upcoming(ctx context.Context, days int) ([]*Entry, error) {
	if days < 0 {
		return nil, cerr.NewError(cerr.InvalidArgument, "days must not be negative", nil)
	}
	now := s.now().In(s.cfg.Location)
	entries, err := s.entries.List(ctx, EntryFilter{
		Statuses:  []lifecycle.EntryStatus{lifecycle.EntryPending, lifecycle.EntryScheduled},
		StartDate: now.Format(DateLayout),
		EndDate:   now.AddDate(0, 0, days).Format(DateLayout),
	})
	if err != nil {
		return nil, err
	}
	active := map[string]bool{}
	plans, err := s.plans.List(ctx, PlanFilter{Status: PlanActive})
	if err != nil {
		return nil, err
	}
	for _, p := range plans {
		active[p.ID] = true
	}
	out := entries[:0]
	for _, e := range entries {
		if active[e.PlanID] {
			out = append(out, e)
		}
	}
	SortEntries(out)
	return out, nil
}

func (s *Service) CreateEntry(ctx context.Context, in EntryInput) (*Entry, error) {
	out, err := s.BulkCreateEntries(ctx, []EntryInput{in})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// BulkCreateEntries validates every input before storing any of them.
// Entries are stored in input order, which is their insertion order.
func (s *Service) BulkCreateEntries(ctx context.Context, ins []EntryInput) ([]*Entry, error) {
	if len(ins) == 0 {
		return nil, cerr.NewError(cerr.InvalidArgument, "no entries given", nil)
	}
	plans := map[string]bool{}
	for i := range ins {
		if err := cerr.ValidateStruct(&ins[i]); err != nil {
			return nil, err
		}
		if plans[ins[i].PlanID] {
			continue
		}
		if _, err := s.plans.Get(ctx, ins[i].PlanID); err != nil {
			return nil, err
		}
		plans[ins[i].PlanID] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	out := make([]*Entry, 0, len(ins))
	for _, in := range ins {
		e := &Entry{
			ID:              ulid.Make().String(),
			PlanID:          in.PlanID,
			SkillID:         in.SkillID,
			TitleOverride:   in.TitleOverride,
			ScheduledDate:   in.ScheduledDate,
			DayOrder:        in.DayOrder,
			Phase:           in.Phase,
			Priority:        in.Priority,
			AssignedAgentID: in.AssignedAgentID,
			Notes:           in.Notes,
			Status:          lifecycle.EntryPending,
			Revision:        1,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if e.Priority == 0 {
			e.Priority = defaultPriority
		}
		if err := s.entries.Create(ctx, e); err != nil {
			return out, err
		}
		out = append(out, e)
	}
	return out, nil
}

// UpdateEntry reschedules or re-annotates an entry that is not executing
// and not finished.
func (s *Service) UpdateEntry(ctx context.Context, id string, u EntryUpdate) (*Entry, error) {
	if err := cerr.ValidateStruct(&u); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entries.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status == lifecycle.EntryRunning || e.Status.IsTerminal() {
		return nil, lifecycle.APIError(e.invalid("update"))
	}
	if u.ScheduledDate != nil {
		e.ScheduledDate = *u.ScheduledDate
	}
	if u.DayOrder != nil {
		e.DayOrder = *u.DayOrder
	}
	if u.Phase != nil {
		e.Phase = *u.Phase
	}
	if u.Priority != nil {
		e.Priority = *u.Priority
	}
	if u.AssignedAgentID != nil {
		e.AssignedAgentID = *u.AssignedAgentID
	}
	if u.Notes != nil {
		e.Notes = *u.Notes
	}
	if u.TitleOverride != nil {
		e.TitleOverride = *u.TitleOverride
	}
	e.touch(s.now())
	if err := s.entries.Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) DeleteEntry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entries.Get(ctx, id)
	if err != nil {
		return err
	}
	if e.Status == lifecycle.EntryRunning {
		return lifecycle.APIError(e.invalid("delete"))
	}
	return s.entries.Delete(ctx, id)
}

// Execute dispatches a task for the entry and marks it running. It is also
// the retry path for a failed entry. The entry is stored only after the task
// exists, so a failed dispatch leaves it untouched.
func (s *Service) Execute(ctx context.Context, id string) (*ExecuteResult, error) {
	clog.AddAttribute(ctx, "calendar_entry_id", id)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.entries.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.CheckExecute(); err != nil {
		return nil, lifecycle.APIError(err)
	}
	plan, err := s.plans.Get(ctx, e.PlanID)
	if err != nil {
		return nil, err
	}
	if plan.Status == PlanArchived {
		return nil, cerr.NewError(cerr.FailedPrecondition, "plan is archived", nil)
	}

	in, err := s.taskInput(ctx, e, plan)
	if err != nil {
		return nil, err
	}
	t, err := s.tasks.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	retry := e.Status == lifecycle.EntryFailed
	if err := e.Started(t.ID, s.now()); err != nil {
		return nil, lifecycle.APIError(err)
	}
	if err := s.entries.Update(ctx, e); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "calendar entry executing", "task_id", t.ID, "agent_id", t.AgentID, "retry", retry)
	return &ExecuteResult{EntryID: e.ID, TaskID: t.ID, AgentID: t.AgentID, Status: e.Status}, nil
}

func (s *Service) taskInput(ctx context.Context, e *Entry, plan *Plan) (task.CreateInput, error) {
	in := task.CreateInput{
		AgentID:      e.AssignedAgentID,
		BusinessArea: plan.BusinessArea,
		Context: map[string]string{
			task.ContextCalendarEntryID: e.ID,
			task.ContextPlanID:          e.PlanID,
		},
	}
	if e.Phase != "" {
		in.Context[task.ContextPhase] = e.Phase
	}

	title := e.TitleOverride
	if e.SkillID == "" {
		in.Prompt = strings.TrimSpace(e.TitleOverride + "\n\n" + e.Notes)
	} else {
		sk, err := s.skills.Get(ctx, e.SkillID)
		if err != nil {
			return in, err
		}
		in.Context[task.ContextSkillID] = sk.ID
		in.Prompt = sk.BuildPrompt(skill.PromptInput{CompanyContext: s.cfg.CompanyContext, AdditionalInstructions: e.Notes})
		if sk.BusinessArea != "" {
			in.BusinessArea = sk.BusinessArea
		}
		if in.AgentID == "" {
			in.AgentID = sk.DefaultAgent()
		}
		if title == "" {
			title = sk.Name
		}
	}
	if in.AgentID == "" {
		in.AgentID = s.cfg.DefaultAgentID
	}
	in.Title = "[Plan] " + title
	return in, nil
}

func (s *Service) Skip(ctx context.Context, id string) (*Entry, error) {
	clog.AddAttribute(ctx, "calendar_entry_id", id)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entries.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.Skip(s.now()); err != nil {
		return nil, lifecycle.APIError(err)
	}
	if err := s.entries.Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// PromoteDue marks pending entries due today or earlier as scheduled.
func (s *Service) PromoteDue(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	today := s.today()
	entries, err := s.entries.List(ctx, EntryFilter{Statuses: []lifecycle.EntryStatus{lifecycle.EntryPending}, EndDate: today})
	if err != nil {
		return 0, err
	}
	now := s.now()
	n := 0
	for _, e := range entries {
		if !e.Promote(today, now) {
			continue
		}
		if err := s.entries.Update(ctx, e); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// TaskChanged mirrors the status of an entry's task onto the entry.
func (s *Service) TaskChanged(ctx context.Context, _ lifecycle.TaskStatus, t *task.Task) {
	entryID := t.Context[task.ContextCalendarEntryID]
	if entryID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entries.Get(ctx, entryID)
	if err != nil {
		slog.WarnContext(ctx, "entry for task not found", "task_id", t.ID, "calendar_entry_id", entryID, "error", err)
		return
	}
	changed, err := e.SyncTask(TaskOutcome{TaskID: t.ID, RetryOf: t.RetryOf, Status: t.Status, Result: t.Result, Error: t.Error}, s.now())
	if err != nil {
		slog.ErrorContext(ctx, "cannot map task status onto entry", "task_id", t.ID, "error", err)
		return
	}
	if !changed {
		return
	}
	if err := s.entries.Update(ctx, e); err != nil {
		slog.ErrorContext(ctx, "failed to sync entry with task", "calendar_entry_id", entryID, "error", err)
	}
}
