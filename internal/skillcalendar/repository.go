package skillcalendar

import (
	"context"

	"github.com/ascentxr/opsdeck/internal/lifecycle"
)

type PlanFilter struct {
	BusinessArea string
	Status       PlanStatus
}

type PlanRepository interface {
	Create(ctx context.Context, p *Plan) error
	Get(ctx context.Context, id string) (*Plan, error)
	List(ctx context.Context, f PlanFilter) ([]*Plan, error)
	Update(ctx context.Context, p *Plan) error
}

type EntryFilter struct {
	PlanID    string
	Statuses  []lifecycle.EntryStatus
	Phase     string
	StartDate string
	EndDate   string
}

type EntryRepository interface {
	Create(ctx context.Context, e *Entry) error
	Get(ctx context.Context, id string) (*Entry, error)
	// List returns matching entries in insertion order.
	List(ctx context.Context, f EntryFilter) ([]*Entry, error)
	Update(ctx context.Context, e *Entry) error
	Delete(ctx context.Context, id string) error
}
