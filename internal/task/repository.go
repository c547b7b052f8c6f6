package task

import (
	"context"

	"github.com/ascentxr/opsdeck/internal/lifecycle"
)

type Filter struct {
	Status       lifecycle.TaskStatus
	AgentID      string
	BusinessArea string
	Limit        int
	Offset       int
}

type Repository interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	// List returns matching tasks in creation order and the total match count.
	List(ctx context.Context, f Filter) ([]*Task, int, error)
	Update(ctx context.Context, t *Task) error
}
