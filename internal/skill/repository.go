package skill

import "context"

type Repository interface {
	Get(ctx context.Context, id string) (*Skill, error)
	List(ctx context.Context, businessArea string) ([]*Skill, error)
	// Upsert creates or replaces a skill; the catalog loader is its only caller.
	Upsert(ctx context.Context, s *Skill) error
	Delete(ctx context.Context, id string) error
}
