// Package agentworker is the execution side of the engine: it claims queued
// tasks, runs them and reports progress back.
package agentworker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/ascentxr/opsdeck/internal/engine"
	"github.com/ascentxr/opsdeck/internal/lifecycle"
	"github.com/ascentxr/opsdeck/internal/task"
)

type Config struct {
	WorkerID           string
	AgentIDs           []string
	MaxConcurrentTasks int
	PollInterval       time.Duration
	HeartbeatInterval  time.Duration
}

type Worker struct {
	cfg      Config
	client   *EngineClient
	executor Executor
	active   atomic.Int32
}

func New(cfg Config, client *EngineClient, executor Executor) *Worker {
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	return &Worker{cfg: cfg, client: client, executor: executor}
}

// Run claims and executes tasks until ctx is done, then waits for the tasks
// in flight. Tasks are cancelled with ctx and reported as failed.
func (w *Worker) Run(ctx context.Context) error {
	p := pool.New().WithContext(ctx).WithMaxGoroutines(w.cfg.MaxConcurrentTasks + 1)
	p.Go(w.heartbeatLoop)

	poll := time.NewTicker(w.cfg.PollInterval)
	defer poll.Stop()
	for {
		for int(w.active.Load()) < w.cfg.MaxConcurrentTasks {
			t, err := w.claim(ctx)
			if err != nil || t == nil {
				break
			}
			w.active.Add(1)
			p.Go(func(ctx context.Context) error {
				defer w.active.Add(-1)
				w.execute(ctx, t)
				return nil
			})
		}
		select {
		case <-ctx.Done():
			_ = p.Wait()
			return nil
		case <-poll.C:
		}
	}
}

func (w *Worker) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		w.heartbeat(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Worker) heartbeat(ctx context.Context) {
	err := w.client.Heartbeat(ctx, w.cfg.WorkerID, engine.HeartbeatRequest{
		AgentIDs:           w.cfg.AgentIDs,
		MaxConcurrentTasks: w.cfg.MaxConcurrentTasks,
		ActiveTasks:        int(w.active.Load()),
	})
	if err != nil && ctx.Err() == nil {
		slog.WarnContext(ctx, "heartbeat failed", "error", err)
	}
}

func (w *Worker) claim(ctx context.Context) (*task.Task, error) {
	res, err := w.client.ClaimNext(ctx, engine.ClaimNextRequest{WorkerID: w.cfg.WorkerID, AgentIDs: w.cfg.AgentIDs})
	if err != nil {
		if ctx.Err() == nil {
			slog.WarnContext(ctx, "claim failed", "error", err)
		}
		return nil, err
	}
	if !res.Claimed {
		return nil, nil
	}
	slog.InfoContext(ctx, "claimed task", "task_id", res.Task.ID, "agent_id", res.Task.AgentID)
	return res.Task, nil
}

func (w *Worker) execute(ctx context.Context, t *task.Task) {
	start := time.Now()
	if err := w.report(ctx, t.ID, engine.ReportRequest{Status: string(lifecycle.TaskRunning)}); err != nil {
		return
	}
	emit := func(delta string) error {
		return w.report(ctx, t.ID, engine.ReportRequest{Status: string(lifecycle.TaskStreaming), ResultDelta: delta})
	}
	out, err := w.executor.Execute(ctx, t, emit)
	elapsed := time.Since(start).Milliseconds()

	// the final report must go out even when shutdown cancelled the task
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err != nil {
		slog.WarnContext(ctx, "task failed", "task_id", t.ID, "error", err)
		_ = w.report(reportCtx, t.ID, engine.ReportRequest{Status: string(lifecycle.TaskFailed), Error: err.Error(), ExecutionTimeMs: &elapsed})
		return
	}
	_ = w.report(reportCtx, t.ID, engine.ReportRequest{
		Status:          string(lifecycle.TaskReview),
		ResultDelta:     out.Result,
		ExecutionTimeMs: &elapsed,
		TokensUsed:      out.TokensUsed,
	})
	slog.InfoContext(ctx, "task ready for review", "task_id", t.ID, "duration_ms", elapsed)
}

func (w *Worker) report(ctx context.Context, taskID string, req engine.ReportRequest) error {
	if err := w.client.Report(ctx, taskID, req); err != nil {
		slog.ErrorContext(ctx, "report failed", "task_id", taskID, "status", req.Status, "error", err)
		return err
	}
	return nil
}
