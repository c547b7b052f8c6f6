package task

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ascentxr/opsdeck/internal/eventbus"
	"github.com/ascentxr/opsdeck/internal/lifecycle"
	"github.com/ascentxr/opsdeck/pkg/cerr"
	"github.com/ascentxr/opsdeck/pkg/clog"
)

// Listener observes persisted status changes. prev is empty for a task
// created by Retry. Listeners run after the store write, outside any lock.
type Listener interface {
	TaskChanged(ctx context.Context, prev lifecycle.TaskStatus, t *Task)
}

type ListenerFunc func(ctx context.Context, prev lifecycle.TaskStatus, t *Task)

func (f ListenerFunc) TaskChanged(ctx context.Context, prev lifecycle.TaskStatus, t *Task) {
	f(ctx, prev, t)
}

type CreateInput struct {
	AgentID      string            `json:"agent_id" validate:"required"`
	Title        string            `json:"title" validate:"required,max=200"`
	Prompt       string            `json:"prompt" validate:"required"`
	BusinessArea string            `json:"business_area,omitempty"`
	Context      map[string]string `json:"context,omitempty"`
}

// Service owns every task mutation. Writes are serialized so that the
// revision of a task grows by exactly one per persisted change.
type Service struct {
	mu        sync.Mutex
	repo      Repository
	bus       *eventbus.Bus
	listeners []Listener
	now       func() time.Time
}

type ServiceOption func(*Service)

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, bus *eventbus.Bus, opts ...ServiceOption) *Service {
	s := &Service{repo: repo, bus: bus, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddListener must be called before the service starts serving requests.
func (s *Service) AddListener(l Listener) {
	s.listeners = append(s.listeners, l)
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Task, error) {
	if err := cerr.ValidateStruct(&in); err != nil {
		return nil, err
	}
	s.mu.Lock()
	now := s.now()
	t := &Task{
		ID:           ulid.Make().String(),
		AgentID:      in.AgentID,
		Title:        in.Title,
		Prompt:       in.Prompt,
		BusinessArea: in.BusinessArea,
		Context:      maps.Clone(in.Context),
		Status:       lifecycle.TaskQueued,
		Revision:     1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := s.repo.Create(ctx, t)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	clog.AddAttribute(ctx, "task_id", t.ID)
	s.publish(t)
	return t, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Task, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Task, int, error) {
	return s.repo.List(ctx, f)
}

func (s *Service) Claim(ctx context.Context, id, worker string) (*Task, error) {
	return s.mutate(ctx, id, func(t *Task, now time.Time) error {
		return t.Claim(worker, now)
	})
}

func (s *Service) Report(ctx context.Context, id string, r Report) (*Task, error) {
	return s.mutate(ctx, id, func(t *Task, now time.Time) error {
		return t.ApplyReport(r, now)
	})
}

func (s *Service) Review(ctx context.Context, id string, action lifecycle.ReviewAction, reviewer, notes string) (*Task, error) {
	return s.mutate(ctx, id, func(t *Task, now time.Time) error {
		return t.Review(action, reviewer, notes, now)
	})
}

// Retry queues a fresh task with the same input as a failed or rejected one.
// The original keeps its terminal status.
func (s *Service) Retry(ctx context.Context, id string) (*Task, error) {
	orig, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !orig.CanRetry() {
		return nil, lifecycle.APIError(lifecycle.NewInvalidTransition("task", orig.ID, orig.Status, "retry"))
	}
	s.mu.Lock()
	now := s.now()
	t := &Task{
		ID:           ulid.Make().String(),
		AgentID:      orig.AgentID,
		Title:        orig.Title,
		Prompt:       orig.Prompt,
		BusinessArea: orig.BusinessArea,
		Context:      maps.Clone(orig.Context),
		Status:       lifecycle.TaskQueued,
		RetryOf:      orig.ID,
		Revision:     1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.repo.Create(ctx, t)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.notify(ctx, "", t)
	return t, nil
}

func (s *Service) mutate(ctx context.Context, id string, fn func(*Task, time.Time) error) (*Task, error) {
	clog.AddAttribute(ctx, "task_id", id)
	s.mu.Lock()
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	prev, rev := t.Status, t.Revision
	if err := fn(t, s.now()); err != nil {
		s.mu.Unlock()
		return nil, lifecycle.APIError(err)
	}
	if t.Revision == rev {
		s.mu.Unlock()
		return t, nil
	}
	err = s.repo.Update(ctx, t)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.notify(ctx, prev, t)
	return t, nil
}

func (s *Service) notify(ctx context.Context, prev lifecycle.TaskStatus, t *Task) {
	s.publish(t)
	for _, l := range s.listeners {
		l.TaskChanged(ctx, prev, t)
	}
	if prev != t.Status {
		slog.InfoContext(ctx, "task status changed", "task_id", t.ID, "from", prev, "to", t.Status, "revision", t.Revision)
	}
}

func (s *Service) publish(t *Task) {
	if s.bus == nil {
		return
	}
	u := &eventbus.TaskUpdate{
		AgentID:         t.AgentID,
		TaskID:          t.ID,
		Status:          t.Status,
		ExecutionTimeMs: t.ExecutionTimeMs,
		Seq:             t.Revision,
	}
	if t.Result != "" {
		r := t.Result
		u.Result = &r
	}
	if t.Error != "" {
		e := t.Error
		u.Error = &e
	}
	s.bus.Publish(u)
}
