package repositoryimpl

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ascentxr/opsdeck/internal/skillcalendar"
	"github.com/ascentxr/opsdeck/pkg/cerr"
	"github.com/ascentxr/opsdeck/pkg/storage"
)

const entriesPrefix = "skill_calendar/entries"

type YAMLEntryRepository struct {
	storage storage.Storage
}

func NewYAMLEntryRepository(s storage.Storage) *YAMLEntryRepository {
	return &YAMLEntryRepository{storage: s}
}

func entryPath(id string) string {
	return fmt.Sprintf("%s/%s.yaml", entriesPrefix, id)
}

func (r *YAMLEntryRepository) Create(ctx context.Context, e *skillcalendar.Entry) error {
	exists, err := r.storage.Exists(ctx, entryPath(e.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("calendar entry", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "calendar entry already exists", nil)
	}
	return r.write(ctx, e)
}

func (r *YAMLEntryRepository) Get(ctx context.Context, id string) (*skillcalendar.Entry, error) {
	data, err := r.storage.Read(ctx, entryPath(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("calendar entry", err)
	}
	var e skillcalendar.Entry
	if err := yaml.Unmarshal(data, &e); err != nil {
		return nil, cerr.WrapUnmarshalError("calendar entry", err)
	}
	return &e, nil
}

// List depends on ULID ids: sorted paths are in insertion order.
func (r *YAMLEntryRepository) List(ctx context.Context, f skillcalendar.EntryFilter) ([]*skillcalendar.Entry, error) {
	paths, err := r.storage.List(ctx, entriesPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("calendar entries", err)
	}
	sort.Strings(paths)
	var out []*skillcalendar.Entry
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var e skillcalendar.Entry
		if err := yaml.Unmarshal(data, &e); err != nil {
			continue
		}
		if !matches(&e, f) {
			continue
		}
		out = append(out, &e)
	}
	return out, nil
}

func matches(e *skillcalendar.Entry, f skillcalendar.EntryFilter) bool {
	switch {
	case f.PlanID != "" && e.PlanID != f.PlanID:
		return false
	case len(f.Statuses) > 0 && !slices.Contains(f.Statuses, e.Status):
		return false
	case f.Phase != "" && e.Phase != f.Phase:
		return false
	case f.StartDate != "" && e.ScheduledDate < f.StartDate:
		return false
	case f.EndDate != "" && e.ScheduledDate > f.EndDate:
		return false
	}
	return true
}

func (r *YAMLEntryRepository) Update(ctx context.Context, e *skillcalendar.Entry) error {
	exists, err := r.storage.Exists(ctx, entryPath(e.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("calendar entry", err)
	}
	if !exists {
		return cerr.NewError(cerr.NotFound, "calendar entry not found", nil)
	}
	return r.write(ctx, e)
}

func (r *YAMLEntryRepository) Delete(ctx context.Context, id string) error {
	if err := r.storage.Delete(ctx, entryPath(id)); err != nil {
		return cerr.WrapStorageDeleteError("calendar entry", err)
	}
	return nil
}

func (r *YAMLEntryRepository) write(ctx context.Context, e *skillcalendar.Entry) error {
	data, err := yaml.Marshal(e)
	if err != nil {
		return cerr.WrapMarshalError("calendar entry", err)
	}
	if err := r.storage.Write(ctx, entryPath(e.ID), data); err != nil {
		return cerr.WrapStorageWriteError("calendar entry", err)
	}
	return nil
}
