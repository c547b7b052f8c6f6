package repositoryimpl

import (
	"context"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ascentxr/opsdeck/internal/workflowrun"
	"github.com/ascentxr/opsdeck/pkg/cerr"
	"github.com/ascentxr/opsdeck/pkg/storage"
)

const runsPrefix = "workflow_runs"

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", runsPrefix, id)
}

func (r *YAMLRepository) Create(ctx context.Context, run *workflowrun.Run) error {
	exists, err := r.storage.Exists(ctx, path(run.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("workflow run", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "workflow run already exists", nil)
	}
	return r.write(ctx, run)
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*workflowrun.Run, error) {
	data, err := r.storage.Read(ctx, path(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("workflow run", err)
	}
	var run workflowrun.Run
	if err := yaml.Unmarshal(data, &run); err != nil {
		return nil, cerr.WrapUnmarshalError("workflow run", err)
	}
	return &run, nil
}

// List returns runs newest first.
func (r *YAMLRepository) List(ctx context.Context, f workflowrun.Filter) ([]*workflowrun.Run, error) {
	paths, err := r.storage.List(ctx, runsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("workflow runs", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))

	var out []*workflowrun.Run
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var run workflowrun.Run
		if err := yaml.Unmarshal(data, &run); err != nil {
			continue
		}
		if f.WorkflowID != "" && run.WorkflowID != f.WorkflowID {
			continue
		}
		if f.Status != "" && run.Status != f.Status {
			continue
		}
		out = append(out, &run)
	}
	return out, nil
}

func (r *YAMLRepository) Update(ctx context.Context, run *workflowrun.Run) error {
	exists, err := r.storage.Exists(ctx, path(run.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("workflow run", err)
	}
	if !exists {
		return cerr.NewError(cerr.NotFound, "workflow run not found", nil)
	}
	return r.write(ctx, run)
}

func (r *YAMLRepository) write(ctx context.Context, run *workflowrun.Run) error {
	data, err := yaml.Marshal(run)
	if err != nil {
		return cerr.WrapMarshalError("workflow run", err)
	}
	if err := r.storage.Write(ctx, path(run.ID), data); err != nil {
		return cerr.WrapStorageWriteError("workflow run", err)
	}
	return nil
}
