package pushsubscription

import "context"

type Repository interface {
	// Register stores s, replacing the keys of an existing subscription with
	// the same endpoint. The stored subscription is returned.
	Register(ctx context.Context, s *Subscription) (*Subscription, error)
	List(ctx context.Context) ([]*Subscription, error)
	Delete(ctx context.Context, id string) error
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}
