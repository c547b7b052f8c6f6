package workflow

import "context"

type Repository interface {
	Get(ctx context.Context, id string) (*Workflow, error)
	List(ctx context.Context) ([]*Workflow, error)
	Upsert(ctx context.Context, w *Workflow) error
	Delete(ctx context.Context, id string) error
}
