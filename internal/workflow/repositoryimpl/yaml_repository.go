package repositoryimpl

import (
	"context"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ascentxr/opsdeck/internal/workflow"
	"github.com/ascentxr/opsdeck/pkg/cerr"
	"github.com/ascentxr/opsdeck/pkg/storage"
)

const workflowsPrefix = "workflows"

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", workflowsPrefix, id)
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*workflow.Workflow, error) {
	data, err := r.storage.Read(ctx, path(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("workflow", err)
	}
	var w workflow.Workflow
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, cerr.WrapUnmarshalError("workflow", err)
	}
	return &w, nil
}

func (r *YAMLRepository) List(ctx context.Context) ([]*workflow.Workflow, error) {
	paths, err := r.storage.List(ctx, workflowsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("workflows", err)
	}
	var out []*workflow.Workflow
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var w workflow.Workflow
		if err := yaml.Unmarshal(data, &w); err != nil {
			continue
		}
		out = append(out, &w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *YAMLRepository) Upsert(ctx context.Context, w *workflow.Workflow) error {
	if err := w.Normalize(); err != nil {
		return cerr.NewError(cerr.InvalidArgument, err.Error(), err)
	}
	data, err := yaml.Marshal(w)
	if err != nil {
		return cerr.WrapMarshalError("workflow", err)
	}
	if err := r.storage.Write(ctx, path(w.ID), data); err != nil {
		return cerr.WrapStorageWriteError("workflow", err)
	}
	return nil
}

func (r *YAMLRepository) Delete(ctx context.Context, id string) error {
	if err := r.storage.Delete(ctx, path(id)); err != nil {
		return cerr.WrapStorageDeleteError("workflow", err)
	}
	return nil
}
