package workflowrun

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ascentxr/opsdeck/internal/lifecycle"
	"github.com/ascentxr/opsdeck/internal/skill"
	"github.com/ascentxr/opsdeck/internal/task"
	"github.com/ascentxr/opsdeck/internal/workflow"
	"github.com/ascentxr/opsdeck/pkg/cerr"
	"github.com/ascentxr/opsdeck/pkg/clog"
)

// Tasks is the part of the task service the stepper dispatches through.
type Tasks interface {
	Create(ctx context.Context, in task.CreateInput) (*task.Task, error)
	Get(ctx context.Context, id string) (*task.Task, error)
	Report(ctx context.Context, id string, r task.Report) (*task.Task, error)
}

type StartInput struct {
	Context   map[string]string `json:"context,omitempty"`
	CreatedBy string            `json:"created_by,omitempty"`
}

type Config struct {
	// DefaultAgentID runs steps whose definition and skill name no agent.
	DefaultAgentID string
	CompanyContext string
}

type Service struct {
	mu        sync.Mutex
	repo      Repository
	workflows workflow.Repository
	skills    skill.Repository
	tasks     Tasks
	cfg       Config
	now       func() time.Time
}

func NewService(repo Repository, workflows workflow.Repository, skills skill.Repository, tasks Tasks, cfg Config) *Service {
	return &Service{
		repo:      repo,
		workflows: workflows,
		skills:    skills,
		tasks:     tasks,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *Service) Get(ctx context.Context, id string) (*Run, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Run, error) {
	return s.repo.List(ctx, f)
}

// Start creates a run at step 1 and dispatches its task. Nothing is stored
// when the dispatch fails, and a task whose run cannot be stored is failed.
func (s *Service) Start(ctx context.Context, workflowID string, in StartInput) (*Run, error) {
	wf, err := s.workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if err := wf.Normalize(); err != nil {
		return nil, cerr.NewError(cerr.FailedPrecondition, err.Error(), err)
	}
	now := s.now()
	run := &Run{
		ID:           ulid.Make().String(),
		WorkflowID:   wf.ID,
		WorkflowName: wf.Name,
		TotalSteps:   len(wf.Steps),
		CurrentStep:  1,
		Status:       lifecycle.RunRunning,
		Context:      maps.Clone(in.Context),
		CreatedBy:    in.CreatedBy,
		Revision:     1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, st := range wf.Steps {
		run.Steps = append(run.Steps, Step{Number: st.Order, Name: st.Name, SkillID: st.SkillID, AgentID: st.AgentID})
	}
	clog.AddAttribute(ctx, "workflow_run_id", run.ID)

	s.mu.Lock()
	if err := s.dispatch(ctx, run, 1); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	err = s.repo.Create(ctx, run)
	s.mu.Unlock()
	if err != nil {
		s.abandon(ctx, run.Steps[0].TaskID)
		return nil, err
	}
	slog.InfoContext(ctx, "workflow run started", "workflow_id", wf.ID, "total_steps", run.TotalSteps)
	return run, nil
}

// Advance completes the current step. On the last step the run completes;
// otherwise the next step's task is dispatched before the run is stored, so
// a failed dispatch leaves the stored run untouched. If the run cannot be
// stored after a dispatch, the dispatched task is failed.
func (s *Service) Advance(ctx context.Context, id string) (*Run, error) {
	var dispatched string
	run, err := s.mutate(ctx, id, func(run *Run, now time.Time) error {
		next, err := run.Advance(now)
		if err != nil || next == 0 {
			return err
		}
		if err := s.dispatch(ctx, run, next); err != nil {
			return err
		}
		dispatched = run.Step(next).TaskID
		return nil
	})
	if err != nil && dispatched != "" {
		s.abandon(ctx, dispatched)
	}
	return run, err
}

func (s *Service) Cancel(ctx context.Context, id string) (*Run, error) {
	return s.mutate(ctx, id, func(run *Run, now time.Time) error { return run.Cancel(now) })
}

func (s *Service) Pause(ctx context.Context, id string) (*Run, error) {
	return s.mutate(ctx, id, func(run *Run, now time.Time) error { return run.Pause(now) })
}

func (s *Service) Resume(ctx context.Context, id string) (*Run, error) {
	return s.mutate(ctx, id, func(run *Run, now time.Time) error { return run.Resume(now) })
}

func (s *Service) mutate(ctx context.Context, id string, fn func(*Run, time.Time) error) (*Run, error) {
	clog.AddAttribute(ctx, "workflow_run_id", id)
	s.mu.Lock()
	defer s.mu.Unlock()
	run, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := run.Status
	if err := fn(run, s.now()); err != nil {
		return nil, lifecycle.APIError(err)
	}
	if err := s.repo.Update(ctx, run); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "workflow run updated", "from", from, "to", run.Status, "current_step", run.CurrentStep)
	return run, nil
}

func (s *Service) dispatch(ctx context.Context, run *Run, n int) error {
	st := run.Step(n)
	if st == nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("run %s has no step %d", run.ID, n))
	}
	sk, err := s.skills.Get(ctx, st.SkillID)
	if err != nil {
		return err
	}
	agentID := st.AgentID
	if agentID == "" {
		agentID = sk.DefaultAgent()
	}
	if agentID == "" {
		agentID = s.cfg.DefaultAgentID
	}

	taskCtx := maps.Clone(run.Context)
	if taskCtx == nil {
		taskCtx = map[string]string{}
	}
	taskCtx[task.ContextWorkflowRunID] = run.ID
	taskCtx[task.ContextStep] = strconv.Itoa(n)
	taskCtx[task.ContextSkillID] = sk.ID

	t, err := s.tasks.Create(ctx, task.CreateInput{
		AgentID:      agentID,
		Title:        "[Workflow] " + st.Name,
		Prompt:       sk.BuildPrompt(skill.PromptInput{CompanyContext: s.cfg.CompanyContext, PriorResults: s.priorResults(ctx, run, n)}),
		BusinessArea: sk.BusinessArea,
		Context:      taskCtx,
	})
	if err != nil {
		return err
	}
	st.AgentID = agentID
	st.TaskID = t.ID
	st.TaskStatus = t.Status
	return nil
}

// abandon fails a task that no stored run points at, so no engine works on
// it. Called without s.mu held: the report comes back through TaskChanged.
func (s *Service) abandon(ctx context.Context, taskID string) {
	_, err := s.tasks.Report(ctx, taskID, task.Report{Status: lifecycle.TaskFailed, Error: "workflow run could not be saved"})
	if err != nil {
		slog.ErrorContext(ctx, "failed to fail orphaned step task", "task_id", taskID, "error", err)
		return
	}
	slog.WarnContext(ctx, "failed orphaned step task", "task_id", taskID)
}

func (s *Service) priorResults(ctx context.Context, run *Run, n int) []skill.PriorResult {
	var out []skill.PriorResult
	for i := 1; i < n; i++ {
		st := run.Step(i)
		p := skill.PriorResult{Step: st.Number, Skill: st.Name}
		if st.TaskID != "" {
			if t, err := s.tasks.Get(ctx, st.TaskID); err == nil {
				p.Result = t.Result
			} else {
				slog.WarnContext(ctx, "prior step task unavailable", "task_id", st.TaskID, "error", err)
			}
		}
		out = append(out, p)
	}
	return out
}

// TaskChanged records step task progress on the owning run.
func (s *Service) TaskChanged(ctx context.Context, _ lifecycle.TaskStatus, t *task.Task) {
	runID := t.Context[task.ContextWorkflowRunID]
	if runID == "" {
		return
	}
	n, err := strconv.Atoi(t.Context[task.ContextStep])
	if err != nil {
		slog.WarnContext(ctx, "task has malformed step reference", "task_id", t.ID, "step", t.Context[task.ContextStep])
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	run, err := s.repo.Get(ctx, runID)
	if err != nil {
		slog.WarnContext(ctx, "run for task not found", "task_id", t.ID, "workflow_run_id", runID, "error", err)
		return
	}
	adopted := false
	if st := run.Step(n); st != nil && t.RetryOf != "" && st.TaskID == t.RetryOf {
		st.TaskID = t.ID
		adopted = true
	}
	if !run.RecordTask(n, t.ID, t.Status, s.now()) && !adopted {
		return
	}
	if err := s.repo.Update(ctx, run); err != nil {
		slog.ErrorContext(ctx, "failed to record step task status", "workflow_run_id", runID, "error", err)
	}
}
