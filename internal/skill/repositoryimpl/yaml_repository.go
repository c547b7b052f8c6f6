package repositoryimpl

import (
	"context"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ascentxr/opsdeck/internal/skill"
	"github.com/ascentxr/opsdeck/pkg/cerr"
	"github.com/ascentxr/opsdeck/pkg/storage"
)

const skillsPrefix = "skills"

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", skillsPrefix, id)
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*skill.Skill, error) {
	data, err := r.storage.Read(ctx, path(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("skill", err)
	}
	var s skill.Skill
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, cerr.WrapUnmarshalError("skill", err)
	}
	return &s, nil
}

func (r *YAMLRepository) List(ctx context.Context, businessArea string) ([]*skill.Skill, error) {
	paths, err := r.storage.List(ctx, skillsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("skills", err)
	}
	var out []*skill.Skill
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var s skill.Skill
		if err := yaml.Unmarshal(data, &s); err != nil {
			continue
		}
		if businessArea != "" && s.BusinessArea != businessArea {
			continue
		}
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *YAMLRepository) Upsert(ctx context.Context, s *skill.Skill) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return cerr.WrapMarshalError("skill", err)
	}
	if err := r.storage.Write(ctx, path(s.ID), data); err != nil {
		return cerr.WrapStorageWriteError("skill", err)
	}
	return nil
}

func (r *YAMLRepository) Delete(ctx context.Context, id string) error {
	if err := r.storage.Delete(ctx, path(id)); err != nil {
		return cerr.WrapStorageDeleteError("skill", err)
	}
	return nil
}
