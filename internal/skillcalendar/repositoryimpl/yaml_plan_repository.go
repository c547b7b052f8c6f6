package repositoryimpl

import (
	"context"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ascentxr/opsdeck/internal/skillcalendar"
	"github.com/ascentxr/opsdeck/pkg/cerr"
	"github.com/ascentxr/opsdeck/pkg/storage"
)

const plansPrefix = "skill_calendar/plans"

type YAMLPlanRepository struct {
	storage storage.Storage
}

func NewYAMLPlanRepository(s storage.Storage) *YAMLPlanRepository {
	return &YAMLPlanRepository{storage: s}
}

func planPath(id string) string {
	return fmt.Sprintf("%s/%s.yaml", plansPrefix, id)
}

func (r *YAMLPlanRepository) Create(ctx context.Context, p *skillcalendar.Plan) error {
	exists, err := r.storage.Exists(ctx, planPath(p.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("plan", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "plan already exists", nil)
	}
	return r.write(ctx, p)
}

func (r *YAMLPlanRepository) Get(ctx context.Context, id string) (*skillcalendar.Plan, error) {
	data, err := r.storage.Read(ctx, planPath(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("plan", err)
	}
	var p skillcalendar.Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, cerr.WrapUnmarshalError("plan", err)
	}
	return &p, nil
}

func (r *YAMLPlanRepository) List(ctx context.Context, f skillcalendar.PlanFilter) ([]*skillcalendar.Plan, error) {
	paths, err := r.storage.List(ctx, plansPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("plans", err)
	}
	sort.Strings(paths)
	var out []*skillcalendar.Plan
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var plan skillcalendar.Plan
		if err := yaml.Unmarshal(data, &plan); err != nil {
			continue
		}
		if f.BusinessArea != "" && plan.BusinessArea != f.BusinessArea {
			continue
		}
		if f.Status != "" && plan.Status != f.Status {
			continue
		}
		out = append(out, &plan)
	}
	return out, nil
}

func (r *YAMLPlanRepository) Update(ctx context.Context, p *skillcalendar.Plan) error {
	exists, err := r.storage.Exists(ctx, planPath(p.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("plan", err)
	}
	if !exists {
		return cerr.NewError(cerr.NotFound, "plan not found", nil)
	}
	return r.write(ctx, p)
}

func (r *YAMLPlanRepository) write(ctx context.Context, p *skillcalendar.Plan) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return cerr.WrapMarshalError("plan", err)
	}
	if err := r.storage.Write(ctx, planPath(p.ID), data); err != nil {
		return cerr.WrapStorageWriteError("plan", err)
	}
	return nil
}
