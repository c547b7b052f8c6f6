package workflowrun

import (
	"context"

	"github.com/ascentxr/opsdeck/internal/lifecycle"
)

type Filter struct {
	WorkflowID string
	Status     lifecycle.RunStatus
}

type Repository interface {
	Create(ctx context.Context, r *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	List(ctx context.Context, f Filter) ([]*Run, error)
	Update(ctx context.Context, r *Run) error
}
