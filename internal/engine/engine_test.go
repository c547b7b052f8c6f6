package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ascentxr/opsdeck/internal/engine"
	"github.com/ascentxr/opsdeck/internal/eventbus"
	"github.com/ascentxr/opsdeck/internal/lifecycle"
	"github.com/ascentxr/opsdeck/internal/task"
	taskrepo "github.com/ascentxr/opsdeck/internal/task/repositoryimpl"
	"github.com/ascentxr/opsdeck/pkg/cerr"
	"github.com/ascentxr/opsdeck/pkg/storage"
)

type countingObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (o *countingObserver) ReportIngested(_ lifecycle.TaskStatus, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes[outcome]++
}

func setup(t *testing.T) (*engine.Ingestor, *task.Service, *countingObserver, *eventbus.Bus) {
	t.Helper()
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	bus := eventbus.New()
	tasks := task.NewService(taskrepo.NewYAMLRepository(st), bus)
	obs := &countingObserver{outcomes: map[string]int{}}
	ing := engine.NewIngestor(tasks, engine.NewRegistry(time.Minute, nil), engine.WithObserver(obs))
	return ing, tasks, obs, bus
}

func newTask(t *testing.T, tasks *task.Service, agent string) *task.Task {
	t.Helper()
	tk, err := tasks.Create(context.Background(), task.CreateInput{AgentID: agent, Title: "t", Prompt: "p"})
	require.NoError(t, err)
	return tk
}

func TestReportSequence(t *testing.T) {
	ctx := context.Background()
	ing, tasks, obs, bus := setup(t)
	tk := newTask(t, tasks, "writer")
	_, updates := bus.Subscribe(16)

	for _, r := range []engine.ReportRequest{
		{Status: "running"},
		{Status: "streaming", ResultDelta: "Hello "},
		{Status: "streaming", ResultDelta: "world"},
		{Status: "review"},
	} {
		_, err := ing.Report(ctx, tk.ID, r)
		require.NoError(t, err)
	}
	got, err := tasks.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.TaskReview, got.Status)
	assert.Equal(t, "Hello world", got.Result)
	require.NotNil(t, got.ExecutionTimeMs)

	var last int64
	for range 4 {
		u := <-updates
		assert.Greater(t, u.Seq, last)
		last = u.Seq
	}

	// redelivery of the last report changes nothing
	again, err := ing.Report(ctx, tk.ID, engine.ReportRequest{Status: "review"})
	require.NoError(t, err)
	assert.Equal(t, got.Revision, again.Revision)
	assert.Equal(t, 4, obs.outcomes[engine.OutcomeApplied])
	assert.Equal(t, 1, obs.outcomes[engine.OutcomeDuplicate])
}

func TestReportRejections(t *testing.T) {
	ctx := context.Background()
	ing, tasks, obs, _ := setup(t)
	tk := newTask(t, tasks, "writer")

	_, err := ing.Report(ctx, tk.ID, engine.ReportRequest{Status: "paused"})
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))

	_, err = ing.Report(ctx, tk.ID, engine.ReportRequest{Status: "failed", Error: "crashed"})
	require.NoError(t, err)
	_, err = ing.Report(ctx, tk.ID, engine.ReportRequest{Status: "running"})
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))

	_, err = ing.Report(ctx, "missing", engine.ReportRequest{Status: "running"})
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	_, err = ing.Report(ctx, tk.ID, engine.ReportRequest{})
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))
	assert.Equal(t, 2, obs.outcomes[engine.OutcomeRejected])
}

func TestClaim(t *testing.T) {
	ctx := context.Background()
	ing, tasks, _, _ := setup(t)
	tk := newTask(t, tasks, "writer")

	res, err := ing.Claim(ctx, tk.ID, "w1")
	require.NoError(t, err)
	assert.True(t, res.Claimed)
	assert.Equal(t, lifecycle.TaskAssigned, res.Task.Status)
	assert.Equal(t, "w1", res.Task.ClaimedBy)

	res, err = ing.Claim(ctx, tk.ID, "w2")
	require.NoError(t, err)
	assert.False(t, res.Claimed)
}

func TestClaimNextFiltersByAgent(t *testing.T) {
	ctx := context.Background()
	ing, tasks, _, _ := setup(t)
	newTask(t, tasks, "writer")
	seo := newTask(t, tasks, "seo")

	res, err := ing.ClaimNext(ctx, "w1", []string{"seo"})
	require.NoError(t, err)
	require.True(t, res.Claimed)
	assert.Equal(t, seo.ID, res.Task.ID)

	res, err = ing.ClaimNext(ctx, "w1", []string{"seo"})
	require.NoError(t, err)
	assert.False(t, res.Claimed)
}

func TestRegistryDropsStaleWorkers(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	r := engine.NewRegistry(time.Minute, func() time.Time { return now })
	r.Heartbeat(engine.Worker{ID: "b", MaxConcurrentTasks: 2})
	r.Heartbeat(engine.Worker{ID: "a", AgentIDs: []string{"writer"}})
	live := r.Live()
	require.Len(t, live, 2)
	assert.Equal(t, "a", live[0].ID)

	now = now.Add(2 * time.Minute)
	r.Heartbeat(engine.Worker{ID: "a"})
	live = r.Live()
	require.Len(t, live, 1)
	assert.Equal(t, "a", live[0].ID)
}
