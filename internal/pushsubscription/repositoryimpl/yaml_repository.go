package repositoryimpl

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/ascentxr/opsdeck/internal/pushsubscription"
	"github.com/ascentxr/opsdeck/pkg/cerr"
	"github.com/ascentxr/opsdeck/pkg/storage"
)

const subscriptionsPrefix = "push_subscriptions"

type YAMLRepository struct {
	mu      sync.Mutex
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", subscriptionsPrefix, id)
}

func (r *YAMLRepository) Register(ctx context.Context, s *pushsubscription.Subscription) (*pushsubscription.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := *s
	for _, existing := range all {
		if existing.Endpoint == s.Endpoint {
			out.ID = existing.ID
			out.CreatedAt = existing.CreatedAt
			break
		}
	}
	if out.ID == "" {
		out.ID = ulid.Make().String()
	}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return nil, cerr.WrapMarshalError("push subscription", err)
	}
	if err := r.storage.Write(ctx, path(out.ID), data); err != nil {
		return nil, cerr.WrapStorageWriteError("push subscription", err)
	}
	return &out, nil
}

func (r *YAMLRepository) List(ctx context.Context) ([]*pushsubscription.Subscription, error) {
	paths, err := r.storage.List(ctx, subscriptionsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("push subscriptions", err)
	}
	sort.Strings(paths)
	var all []*pushsubscription.Subscription
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var s pushsubscription.Subscription
		if err := yaml.Unmarshal(data, &s); err != nil {
			continue
		}
		all = append(all, &s)
	}
	return all, nil
}

func (r *YAMLRepository) Delete(ctx context.Context, id string) error {
	if err := r.storage.Delete(ctx, path(id)); err != nil {
		return cerr.WrapStorageDeleteError("push subscription", err)
	}
	return nil
}

func (r *YAMLRepository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	all, err := r.List(ctx)
	if err != nil {
		return err
	}
	for _, s := range all {
		if s.Endpoint == endpoint {
			return r.Delete(ctx, s.ID)
		}
	}
	return cerr.NewError(cerr.NotFound, "push subscription not found", nil)
}
