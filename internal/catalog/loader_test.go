package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	skillrepo "github.com/ascentxr/opsdeck/internal/skill/repositoryimpl"
	workflowrepo "github.com/ascentxr/opsdeck/internal/workflow/repositoryimpl"
	"github.com/ascentxr/opsdeck/pkg/storage"
)

const seoAudit = `name: SEO Audit
business_area: marketing
applicable_agents: [growth-agent]
content: |
  Crawl the site and list the top issues.
`

const launchWorkflow = `name: Course launch
steps:
  - order: 2
    skill_id: seo-audit
    name: Audit landing page
  - order: 1
    skill_id: market-research
    name: Research
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newLoader(t *testing.T) (*Loader, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewLoader(dir, skillrepo.NewYAMLRepository(st), workflowrepo.NewYAMLRepository(st)), dir
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	l, dir := newLoader(t)
	writeFile(t, filepath.Join(dir, "skills", "seo-audit.yaml"), seoAudit)
	writeFile(t, filepath.Join(dir, "skills", "market-research.yml"), "name: Market research\ncontent: Size the market.\n")
	writeFile(t, filepath.Join(dir, "skills", "broken.yaml"), "name: [")
	writeFile(t, filepath.Join(dir, "skills", "README.md"), "ignored")
	writeFile(t, filepath.Join(dir, "workflows", "course-launch.yaml"), launchWorkflow)
	writeFile(t, filepath.Join(dir, "workflows", "dangling.yaml"), "name: D\nsteps:\n  - order: 1\n    skill_id: nope\n")

	res, err := l.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skills)
	assert.Equal(t, 1, res.Workflows)
	assert.Len(t, res.Errors, 2)

	s, err := l.skills.Get(ctx, "seo-audit")
	require.NoError(t, err)
	assert.Equal(t, "growth-agent", s.DefaultAgent())

	w, err := l.workflows.Get(ctx, "course-launch")
	require.NoError(t, err)
	require.Len(t, w.Steps, 2)
	assert.Equal(t, "market-research", w.Steps[0].SkillID)
}

func TestLoadMissingDirs(t *testing.T) {
	l, _ := newLoader(t)
	res, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Skills)
	assert.NoError(t, res.Err())
}

func TestWatchReloadsOnChange(t *testing.T) {
	l, dir := newLoader(t)
	writeFile(t, filepath.Join(dir, "skills", "seo-audit.yaml"), seoAudit)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "workflows"), 0o755))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.Watch(ctx) }()

	// give the watcher time to register before writing
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "skills", "market-research.yaml"), "name: Market research\ncontent: Size the market.\n")

	assert.Eventually(t, func() bool {
		_, err := l.skills.Get(context.Background(), "market-research")
		return err == nil
	}, 3*time.Second, 50*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
