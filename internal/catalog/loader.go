package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/ascentxr/opsdeck/internal/skill"
	"github.com/ascentxr/opsdeck/internal/workflow"
)

const (
	skillsDir    = "skills"
	workflowsDir = "workflows"

	debounceInterval = 250 * time.Millisecond
)

// Loader syncs skill and workflow definitions from YAML files on disk into
// their repositories. Definitions removed from disk are kept in the store
// because calendar entries and runs may still reference them.
type Loader struct {
	dir       string
	skills    skill.Repository
	workflows workflow.Repository
	now       func() time.Time
}

func NewLoader(dir string, skills skill.Repository, workflows workflow.Repository) *Loader {
	return &Loader{dir: dir, skills: skills, workflows: workflows, now: time.Now}
}

type Result struct {
	Skills    int
	Workflows int
	Errors    []error
}

func (r *Result) Err() error {
	return errors.Join(r.Errors...)
}

// Load reads every definition once. Skills are stored before workflows so a
// workflow can reference a skill defined in the same pass. A broken file is
// reported and skipped without aborting the rest.
func (l *Loader) Load(ctx context.Context) (*Result, error) {
	res := &Result{}
	skillFiles, err := yamlFiles(filepath.Join(l.dir, skillsDir))
	if err != nil {
		return nil, err
	}
	for _, f := range skillFiles {
		if err := l.loadSkill(ctx, f); err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}
		res.Skills++
	}
	workflowFiles, err := yamlFiles(filepath.Join(l.dir, workflowsDir))
	if err != nil {
		return nil, err
	}
	for _, f := range workflowFiles {
		if err := l.loadWorkflow(ctx, f); err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}
		res.Workflows++
	}
	return res, nil
}

func yamlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog dir %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func isYAML(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (l *Loader) loadSkill(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read skill %s: %w", path, err)
	}
	var s skill.Skill
	if err := yaml.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("parse skill %s: %w", path, err)
	}
	if s.Slug == "" {
		s.Slug = stem(path)
	}
	if s.ID == "" {
		s.ID = s.Slug
	}
	if s.Name == "" || strings.TrimSpace(s.Content) == "" {
		return fmt.Errorf("skill %s: name and content are required", path)
	}
	s.UpdatedAt = l.now()
	return l.skills.Upsert(ctx, &s)
}

func (l *Loader) loadWorkflow(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read workflow %s: %w", path, err)
	}
	var w workflow.Workflow
	if err := yaml.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("parse workflow %s: %w", path, err)
	}
	if w.Slug == "" {
		w.Slug = stem(path)
	}
	if w.ID == "" {
		w.ID = w.Slug
	}
	if err := w.Normalize(); err != nil {
		return err
	}
	for _, st := range w.Steps {
		if _, err := l.skills.Get(ctx, st.SkillID); err != nil {
			return fmt.Errorf("workflow %s step %d: skill %s: %w", w.ID, st.Order, st.SkillID, err)
		}
	}
	w.UpdatedAt = l.now()
	return l.workflows.Upsert(ctx, &w)
}

// Watch reloads the catalog whenever a definition file changes, until ctx
// is done. Bursts of events are coalesced.
func (l *Loader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create catalog watcher: %w", err)
	}
	defer watcher.Close()

	for _, sub := range []string{skillsDir, workflowsDir} {
		dir := filepath.Join(l.dir, sub)
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	var (
		timer  *time.Timer
		reload <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isYAML(ev.Name) || ev.Op == fsnotify.Chmod {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounceInterval)
			reload = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "catalog watcher error", "error", err)
		case <-reload:
			reload = nil
			res, err := l.Load(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "failed to reload catalog", "error", err)
				continue
			}
			if err := res.Err(); err != nil {
				slog.WarnContext(ctx, "catalog reloaded with errors", "skills", res.Skills, "workflows", res.Workflows, "error", err)
				continue
			}
			slog.InfoContext(ctx, "catalog reloaded", "skills", res.Skills, "workflows", res.Workflows)
		}
	}
}
