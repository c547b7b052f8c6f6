package engine

import (
	"context"
	"log/slog"
	"slices"

	"github.com/ascentxr/opsdeck/internal/lifecycle"
	"github.com/ascentxr/opsdeck/internal/task"
	"github.com/ascentxr/opsdeck/pkg/cerr"
	"github.com/ascentxr/opsdeck/pkg/clog"
)

// Tasks is the part of the task service the engine drives.
type Tasks interface {
	Get(ctx context.Context, id string) (*task.Task, error)
	List(ctx context.Context, f task.Filter) ([]*task.Task, int, error)
	Claim(ctx context.Context, id, worker string) (*task.Task, error)
	Report(ctx context.Context, id string, r task.Report) (*task.Task, error)
}

// Observer is told the outcome of every report the engine sends.
type Observer interface {
	ReportIngested(status lifecycle.TaskStatus, outcome string)
}

// Report outcomes passed to Observer.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
)

// Ingestor is the only way engine-driven task transitions reach the store.
// Entry and run-step propagation happens in the task service listeners that
// every applied report triggers.
type Ingestor struct {
	tasks    Tasks
	registry *Registry
	observer Observer
}

type IngestorOption func(*Ingestor)

func WithObserver(o Observer) IngestorOption {
	return func(i *Ingestor) { i.observer = o }
}

func NewIngestor(tasks Tasks, registry *Registry, opts ...IngestorOption) *Ingestor {
	i := &Ingestor{tasks: tasks, registry: registry}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ReportRequest is the wire form of an engine report. Status is parsed
// separately so that an unknown value is reported as unmapped.
type ReportRequest struct {
	Status          string `json:"status" validate:"required"`
	ResultDelta     string `json:"result_delta,omitempty"`
	Error           string `json:"error,omitempty"`
	ExecutionTimeMs *int64 `json:"execution_time_ms,omitempty" validate:"omitempty,min=0"`
	TokensUsed      *int64 `json:"tokens_used,omitempty" validate:"omitempty,min=0"`
}

func (i *Ingestor) Report(ctx context.Context, taskID string, req ReportRequest) (*task.Task, error) {
	clog.AddAttribute(ctx, "task_id", taskID)
	if err := cerr.ValidateStruct(&req); err != nil {
		return nil, err
	}
	status, err := lifecycle.ParseTaskStatus(req.Status)
	if err != nil {
		i.observe(lifecycle.TaskStatus(""), OutcomeRejected)
		return nil, lifecycle.APIError(err)
	}
	before, err := i.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	t, err := i.tasks.Report(ctx, taskID, task.Report{
		Status:          status,
		ResultDelta:     req.ResultDelta,
		Error:           req.Error,
		ExecutionTimeMs: req.ExecutionTimeMs,
		TokensUsed:      req.TokensUsed,
	})
	if err != nil {
		i.observe(status, OutcomeRejected)
		slog.WarnContext(ctx, "engine report rejected", "status", status, "current", before.Status, "error", err)
		return nil, err
	}
	if t.Revision == before.Revision {
		i.observe(status, OutcomeDuplicate)
		slog.DebugContext(ctx, "duplicate engine report ignored", "status", status)
		return t, nil
	}
	i.observe(status, OutcomeApplied)
	return t, nil
}

type ClaimResult struct {
	Claimed bool       `json:"claimed"`
	Task    *task.Task `json:"task,omitempty"`
}

// Claim moves a queued task to assigned for worker. Losing the race is not an
// error: the result reports Claimed false.
func (i *Ingestor) Claim(ctx context.Context, taskID, worker string) (*ClaimResult, error) {
	clog.AddAttribute(ctx, "task_id", taskID)
	if worker == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "worker_id is required", nil)
	}
	t, err := i.tasks.Claim(ctx, taskID, worker)
	if err != nil {
		if cerr.IsCode(err, cerr.FailedPrecondition) {
			return &ClaimResult{Claimed: false}, nil
		}
		return nil, err
	}
	slog.InfoContext(ctx, "worker claimed task", "worker_id", worker, "agent_id", t.AgentID)
	return &ClaimResult{Claimed: true, Task: t}, nil
}

// ClaimNext claims the oldest queued task for one of agentIDs, or for any
// agent when agentIDs is empty. It returns Claimed false when nothing is
// waiting.
func (i *Ingestor) ClaimNext(ctx context.Context, worker string, agentIDs []string) (*ClaimResult, error) {
	queued, _, err := i.tasks.List(ctx, task.Filter{Status: lifecycle.TaskQueued})
	if err != nil {
		return nil, err
	}
	for _, t := range queued {
		if len(agentIDs) > 0 && !slices.Contains(agentIDs, t.AgentID) {
			continue
		}
		res, err := i.Claim(ctx, t.ID, worker)
		if err != nil {
			return nil, err
		}
		if res.Claimed {
			return res, nil
		}
	}
	return &ClaimResult{Claimed: false}, nil
}

func (i *Ingestor) Heartbeat(w Worker) {
	if i.registry != nil {
		i.registry.Heartbeat(w)
	}
}

func (i *Ingestor) Workers() []Worker {
	if i.registry == nil {
		return []Worker{}
	}
	return i.registry.Live()
}

func (i *Ingestor) observe(status lifecycle.TaskStatus, outcome string) {
	if i.observer != nil {
		i.observer.ReportIngested(status, outcome)
	}
}
