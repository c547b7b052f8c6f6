package skillcalendar_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ascentxr/opsdeck/internal/eventbus"
	"github.com/ascentxr/opsdeck/internal/lifecycle"
	"github.com/ascentxr/opsdeck/internal/skill"
	skillrepo "github.com/ascentxr/opsdeck/internal/skill/repositoryimpl"
	"github.com/ascentxr/opsdeck/internal/skillcalendar"
	calendarrepo "github.com/ascentxr/opsdeck/internal/skillcalendar/repositoryimpl"
	"github.com/ascentxr/opsdeck/internal/task"
	taskrepo "github.com/ascentxr/opsdeck/internal/task/repositoryimpl"
	"github.com/ascentxr/opsdeck/pkg/cerr"
	"github.com/ascentxr/opsdeck/pkg/storage"
)

type fixture struct {
	calendar *skillcalendar.Service
	tasks    *task.Service
	plan     *skillcalendar.Plan
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	skills := skillrepo.NewYAMLRepository(st)
	require.NoError(t, skills.Upsert(ctx, &skill.Skill{
		ID: "seo-audit", Name: "SEO audit", BusinessArea: "marketing",
		Content: "Audit the site.", ApplicableAgents: []string{"growth-agent"},
	}))

	tasks := task.NewService(taskrepo.NewYAMLRepository(st), eventbus.New())
	clock := func() time.Time { return now }
	cal := skillcalendar.NewService(
		calendarrepo.NewYAMLPlanRepository(st),
		calendarrepo.NewYAMLEntryRepository(st),
		skills, tasks,
		skillcalendar.Config{DefaultAgentID: "ops-agent", CompanyContext: "We teach coding.", Location: time.UTC},
		skillcalendar.WithClock(clock),
	)
	tasks.AddListener(cal)

	plan, err := cal.CreatePlan(ctx, skillcalendar.PlanInput{Name: "Q2 growth", Slug: "q2-growth", BusinessArea: "marketing", Status: skillcalendar.PlanActive})
	require.NoError(t, err)
	return &fixture{calendar: cal, tasks: tasks, plan: plan}
}

func TestExecuteDispatchesTask(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	e, err := f.calendar.CreateEntry(ctx, skillcalendar.EntryInput{
		PlanID: f.plan.ID, SkillID: "seo-audit", ScheduledDate: "2026-03-10", Phase: "research", Notes: "Focus on the pricing page.",
	})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.EntryPending, e.Status)
	assert.Equal(t, 3, e.Priority)

	res, err := f.calendar.Execute(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "growth-agent", res.AgentID)
	assert.Equal(t, lifecycle.EntryRunning, res.Status)

	tk, err := f.tasks.Get(ctx, res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "[Plan] SEO audit", tk.Title)
	assert.Equal(t, e.ID, tk.Context[task.ContextCalendarEntryID])
	assert.Equal(t, f.plan.ID, tk.Context[task.ContextPlanID])
	assert.Equal(t, "seo-audit", tk.Context[task.ContextSkillID])
	assert.Equal(t, "research", tk.Context[task.ContextPhase])
	assert.Contains(t, tk.Prompt, "Audit the site.")
	assert.Contains(t, tk.Prompt, "Focus on the pricing page.")
	assert.Contains(t, tk.Prompt, "We teach coding.")

	_, err = f.calendar.Execute(ctx, e.ID)
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))

	_, err = f.tasks.Report(ctx, tk.ID, task.Report{Status: lifecycle.TaskStreaming, ResultDelta: "Found 4 issues."})
	require.NoError(t, err)
	_, err = f.tasks.Report(ctx, tk.ID, task.Report{Status: lifecycle.TaskReview})
	require.NoError(t, err)

	e, err = f.calendar.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.EntryCompleted, e.Status)
	assert.Equal(t, "Found 4 issues.", e.ResultSummary)

	// a later rejection does not reopen the entry
	_, err = f.tasks.Review(ctx, tk.ID, lifecycle.ReviewReject, "lead", "")
	require.NoError(t, err)
	e, err = f.calendar.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.EntryCompleted, e.Status)
}

func TestFailedEntryRetry(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	e, err := f.calendar.CreateEntry(ctx, skillcalendar.EntryInput{PlanID: f.plan.ID, TitleOverride: "Write newsletter", ScheduledDate: "2026-03-10"})
	require.NoError(t, err)
	res, err := f.calendar.Execute(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "ops-agent", res.AgentID)

	_, err = f.tasks.Report(ctx, res.TaskID, task.Report{Status: lifecycle.TaskFailed, Error: "timeout"})
	require.NoError(t, err)
	e, err = f.calendar.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.EntryFailed, e.Status)
	assert.Equal(t, "timeout", e.ResultSummary)

	// retrying the task moves ownership to the new task
	retried, err := f.tasks.Retry(ctx, res.TaskID)
	require.NoError(t, err)
	e, err = f.calendar.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.EntryRunning, e.Status)
	assert.Equal(t, retried.ID, e.TaskID)

	_, err = f.tasks.Report(ctx, retried.ID, task.Report{Status: lifecycle.TaskFailed, Error: "again"})
	require.NoError(t, err)

	// executing a failed entry dispatches a fresh task
	res2, err := f.calendar.Execute(ctx, e.ID)
	require.NoError(t, err)
	assert.NotEqual(t, retried.ID, res2.TaskID)
	e, err = f.calendar.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.EntryRunning, e.Status)
	assert.Empty(t, e.ResultSummary)
}

func TestExecuteArchivedPlan(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	e, err := f.calendar.CreateEntry(ctx, skillcalendar.EntryInput{PlanID: f.plan.ID, SkillID: "seo-audit", ScheduledDate: "2026-03-10"})
	require.NoError(t, err)
	_, err = f.calendar.ArchivePlan(ctx, f.plan.ID)
	require.NoError(t, err)

	_, err = f.calendar.Execute(ctx, e.ID)
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))
	_, total, err := f.tasks.List(ctx, task.Filter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestListEntriesOrder(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	ins := []skillcalendar.EntryInput{
		{PlanID: f.plan.ID, TitleOverride: "late", ScheduledDate: "2026-03-12"},
		{PlanID: f.plan.ID, TitleOverride: "second", ScheduledDate: "2026-03-11", DayOrder: 1, Priority: 5},
		{PlanID: f.plan.ID, TitleOverride: "first", ScheduledDate: "2026-03-11", DayOrder: 0, Priority: 1},
		{PlanID: f.plan.ID, TitleOverride: "third", ScheduledDate: "2026-03-11", DayOrder: 1, Priority: 1},
	}
	_, err := f.calendar.BulkCreateEntries(ctx, ins)
	require.NoError(t, err)

	entries, err := f.calendar.ListEntries(ctx, skillcalendar.EntryFilter{PlanID: f.plan.ID})
	require.NoError(t, err)
	var titles []string
	for _, e := range entries {
		titles = append(titles, e.TitleOverride)
	}
	assert.Equal(t, []string{"first", "second", "third", "late"}, titles)
}

func TestBulkCreateRejectsWholeBatch(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	_, err := f.calendar.BulkCreateEntries(ctx, []skillcalendar.EntryInput{
		{PlanID: f.plan.ID, TitleOverride: "ok", ScheduledDate: "2026-03-11"},
		{PlanID: f.plan.ID, TitleOverride: "bad date", ScheduledDate: "11/03/2026"},
	})
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))

	entries, err := f.calendar.ListEntries(ctx, skillcalendar.EntryFilter{PlanID: f.plan.ID})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPromoteAndUpcoming(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	draft, err := f.calendar.CreatePlan(ctx, skillcalendar.PlanInput{Name: "Someday", Slug: "someday", BusinessArea: "ops"})
	require.NoError(t, err)

	entries, err := f.calendar.BulkCreateEntries(ctx, []skillcalendar.EntryInput{
		{PlanID: f.plan.ID, TitleOverride: "overdue", ScheduledDate: "2026-03-09"},
		{PlanID: f.plan.ID, TitleOverride: "today", ScheduledDate: "2026-03-10"},
		{PlanID: f.plan.ID, TitleOverride: "next week", ScheduledDate: "2026-03-16"},
		{PlanID: f.plan.ID, TitleOverride: "next month", ScheduledDate: "2026-04-10"},
		{PlanID: draft.ID, TitleOverride: "draft plan", ScheduledDate: "2026-03-11"},
	})
	require.NoError(t, err)

	n, err := f.calendar.PromoteDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := f.calendar.GetEntry(ctx, entries[1].ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.EntryScheduled, got.Status)
	got, err = f.calendar.GetEntry(ctx, entries[2].ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.EntryPending, got.Status)

	n, err = f.calendar.PromoteDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	upcoming, err := f.calendar.Upcoming(ctx, 7)
	require.NoError(t, err)
	var titles []string
	for _, e := range upcoming {
		titles = append(titles, e.TitleOverride)
	}
	assert.Equal(t, []string{"today", "next week"}, titles)
}

func TestPlanStatsService(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	entries, err := f.calendar.BulkCreateEntries(ctx, []skillcalendar.EntryInput{
		{PlanID: f.plan.ID, TitleOverride: "a", ScheduledDate: "2026-03-10"},
		{PlanID: f.plan.ID, TitleOverride: "b", ScheduledDate: "2026-03-11"},
	})
	require.NoError(t, err)
	_, err = f.calendar.Skip(ctx, entries[0].ID)
	require.NoError(t, err)

	st, err := f.calendar.PlanStats(ctx, f.plan.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.Skipped)
	assert.Equal(t, 0, st.Progress)

	_, err = f.calendar.PlanStats(ctx, "missing")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestDeleteAndUpdateGuards(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	e, err := f.calendar.CreateEntry(ctx, skillcalendar.EntryInput{PlanID: f.plan.ID, SkillID: "seo-audit", ScheduledDate: "2026-03-10"})
	require.NoError(t, err)

	date := "2026-03-20"
	e, err = f.calendar.UpdateEntry(ctx, e.ID, skillcalendar.EntryUpdate{ScheduledDate: &date})
	require.NoError(t, err)
	assert.Equal(t, date, e.ScheduledDate)

	_, err = f.calendar.Execute(ctx, e.ID)
	require.NoError(t, err)
	err = f.calendar.DeleteEntry(ctx, e.ID)
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))
	_, err = f.calendar.UpdateEntry(ctx, e.ID, skillcalendar.EntryUpdate{ScheduledDate: &date})
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))
}
