package console_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ascentxr/opsdeck/internal"
	"github.com/ascentxr/opsdeck/internal/config"
	"github.com/ascentxr/opsdeck/internal/console"
	"github.com/ascentxr/opsdeck/internal/engine"
	"github.com/ascentxr/opsdeck/internal/eventbus"
	"github.com/ascentxr/opsdeck/internal/lifecycle"
	"github.com/ascentxr/opsdeck/internal/liveupdate"
	"github.com/ascentxr/opsdeck/internal/projector"
	"github.com/ascentxr/opsdeck/internal/skill"
	"github.com/ascentxr/opsdeck/internal/skillcalendar"
	"github.com/ascentxr/opsdeck/internal/task"
	"github.com/ascentxr/opsdeck/internal/taskupdate"
	"github.com/ascentxr/opsdeck/internal/workflow"
	"github.com/ascentxr/opsdeck/internal/workflowrun"
	"github.com/ascentxr/opsdeck/pkg/cerr"
	"github.com/ascentxr/opsdeck/pkg/storage"
)

const apiKey = "test-key"

var today = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type stack struct {
	app        *internal.App
	srv        *httptest.Server
	hits       atomic.Int32
	client     *console.Client
	controller *console.Controller
	plan       *skillcalendar.Plan
}

func newStack(t *testing.T) *stack {
	t.Helper()
	ctx := context.Background()
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	env := &config.Env{
		BaseEnv: config.BaseEnv{APIKey: apiKey, AllowedOrigins: []string{"*"}},
		SchedulerEnv: config.SchedulerEnv{
			PromoteCron:    "5 0 * * *",
			TimeZone:       "UTC",
			DefaultAgentID: "ops-agent",
			WorkerTimeout:  time.Minute,
		},
	}
	app, err := internal.NewApp(env, st, internal.WithAppClock(func() time.Time { return today }))
	require.NoError(t, err)

	s := &stack{app: app}
	handler := app.Server.Handler()
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(s.srv.Close)

	s.client, err = console.NewClient(s.srv.URL, apiKey, console.WithCommandTimeout(5*time.Second))
	require.NoError(t, err)
	s.controller = console.NewController(s.client, liveupdate.NewTracker())

	require.NoError(t, app.Skills.Upsert(ctx, &skill.Skill{
		ID: "seo-audit", Name: "SEO audit", BusinessArea: "marketing",
		Content: "Audit the site.", ApplicableAgents: []string{"growth-agent"},
	}))
	s.plan, err = app.Calendar.CreatePlan(ctx, skillcalendar.PlanInput{
		Name: "Q2 growth", Slug: "q2-growth", BusinessArea: "marketing", Status: skillcalendar.PlanActive,
	})
	require.NoError(t, err)
	return s
}

func (s *stack) entry(t *testing.T) *skillcalendar.Entry {
	t.Helper()
	e, err := s.app.Calendar.CreateEntry(context.Background(), skillcalendar.EntryInput{
		PlanID: s.plan.ID, SkillID: "seo-audit", ScheduledDate: "2026-03-10",
	})
	require.NoError(t, err)
	return e
}

func (s *stack) report(t *testing.T, taskID string, status lifecycle.TaskStatus, delta string) {
	t.Helper()
	_, err := s.app.Ingestor.Report(context.Background(), taskID, engine.ReportRequest{Status: string(status), ResultDelta: delta})
	require.NoError(t, err)
}

func TestExecuteTracksAndReconciles(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	e := s.entry(t)

	res, err := s.controller.ExecuteEntry(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.EntryPending, e.Status, "caller's record is left untouched")

	o, ok := s.controller.Tracker().Get(e.ID)
	require.True(t, ok)
	assert.Equal(t, res.TaskID, o.ExecutionID)
	assert.Equal(t, lifecycle.TaskQueued, o.Status)

	cells, err := s.controller.Calendar([]*skillcalendar.Entry{e})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.EntryRunning, cells[0].Display)
	assert.True(t, cells[0].Live)

	// engine finishes while the console is not subscribed
	s.report(t, res.TaskID, lifecycle.TaskRunning, "")
	s.report(t, res.TaskID, lifecycle.TaskReview, "Found 4 issues.")

	cells, err = s.controller.RefreshEntries(ctx, skillcalendar.EntryFilter{PlanID: s.plan.ID})
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, lifecycle.EntryCompleted, cells[0].Display)
	assert.False(t, cells[0].Live)
	_, ok = s.controller.Tracker().Get(e.ID)
	assert.False(t, ok)
}

func TestFeedAppliesPushedUpdates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newStack(t)
	e := s.entry(t)

	var applied atomic.Int32
	feed := console.NewFeed(
		taskupdate.NewClient(s.srv.Client(), s.srv.URL, apiKey),
		s.controller.Tracker(),
		func(*eventbus.TaskUpdate) { applied.Add(1) },
	)
	go feed.Run(ctx, taskupdate.SubscribeRequest{})
	select {
	case <-feed.Subscribed():
	case <-time.After(2 * time.Second):
		t.Fatal("feed never subscribed")
	}
	assert.Equal(t, 1, s.app.Bus.SubscriberCount())

	res, err := s.controller.ExecuteEntry(ctx, e)
	require.NoError(t, err)

	s.report(t, res.TaskID, lifecycle.TaskRunning, "")
	s.report(t, res.TaskID, lifecycle.TaskStreaming, "Crawled 120 pages. ")
	require.Eventually(t, func() bool {
		o, _ := s.controller.Tracker().Get(e.ID)
		return o.Status == lifecycle.TaskStreaming
	}, 2*time.Second, 10*time.Millisecond)

	s.report(t, res.TaskID, lifecycle.TaskReview, "Found 4 issues.")
	require.Eventually(t, func() bool {
		o, _ := s.controller.Tracker().Get(e.ID)
		return o.Terminal()
	}, 2*time.Second, 10*time.Millisecond)

	o, _ := s.controller.Tracker().Get(e.ID)
	assert.Equal(t, "Crawled 120 pages. Found 4 issues.", o.Result)
	assert.Positive(t, applied.Load())

	// the board shows the task waiting for review; approving it by drag
	board, err := s.controller.Board(ctx, task.Filter{})
	require.NoError(t, err)
	require.Len(t, board[projector.ColumnReview], 1)
	approved, err := s.controller.MoveCard(ctx, board[projector.ColumnReview][0], projector.ColumnDone, "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.TaskApproved, approved.Status)
}

func TestLocalGuardsSkipTheNetwork(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	e := s.entry(t)
	_, err := s.controller.SkipEntry(ctx, e)
	require.NoError(t, err)
	skipped, err := s.client.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	require.Equal(t, lifecycle.EntrySkipped, skipped.Status)

	before := s.hits.Load()
	var invalid *lifecycle.InvalidTransitionError

	_, err = s.controller.ExecuteEntry(ctx, skipped)
	assert.ErrorAs(t, err, &invalid)
	_, err = s.controller.SkipEntry(ctx, skipped)
	assert.ErrorAs(t, err, &invalid)

	cancelled := &workflowrun.Run{ID: "r1", Status: lifecycle.RunCancelled}
	_, err = s.controller.AdvanceRun(ctx, cancelled)
	assert.ErrorAs(t, err, &invalid)
	_, err = s.controller.ResumeRun(ctx, cancelled)
	assert.ErrorAs(t, err, &invalid)

	assert.Equal(t, before, s.hits.Load())
}

func TestRunCommands(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	require.NoError(t, s.app.Workflows.Upsert(ctx, &workflow.Workflow{
		ID: "launch", Slug: "launch", Name: "Launch",
		Steps: []workflow.Step{{Order: 1, SkillID: "seo-audit", Name: "Audit"}, {Order: 2, SkillID: "seo-audit", Name: "Re-audit"}},
	}))

	run, err := s.client.StartRun(ctx, "launch", workflowrun.StartInput{CreatedBy: "ops"})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.RunRunning, run.Status)

	paused, err := s.controller.PauseRun(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.RunPaused, paused.Status)

	// a stale copy still believes the run is running; the server refuses
	_, err = s.controller.PauseRun(ctx, run)
	var failure *console.CommandFailureError
	require.ErrorAs(t, err, &failure)
	assert.False(t, failure.Timeout)
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))

	cancelled, err := s.controller.CancelRun(ctx, paused)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.RunCancelled, cancelled.Status)
}

func TestServerErrorsBecomeCommandFailures(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	e := s.entry(t)
	_, err := s.app.Calendar.ArchivePlan(ctx, s.plan.ID)
	require.NoError(t, err)

	_, err = s.controller.ExecuteEntry(ctx, e)
	var failure *console.CommandFailureError
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "execute entry", failure.Op)
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))
	_, tracked := s.controller.Tracker().Get(e.ID)
	assert.False(t, tracked)

	_, err = s.client.GetEntry(ctx, "missing")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	bad, err := console.NewClient(s.srv.URL, "wrong-key")
	require.NoError(t, err)
	_, err = bad.ListPlans(ctx, "")
	assert.True(t, cerr.IsCode(err, cerr.Unauthenticated))
}

func TestCommandTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c, err := console.NewClient(srv.URL, apiKey, console.WithCommandTimeout(50*time.Millisecond))
	require.NoError(t, err)
	_, err = c.GetTask(context.Background(), "t1")

	var failure *console.CommandFailureError
	require.ErrorAs(t, err, &failure)
	assert.True(t, failure.Timeout)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
