package agentworker_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ascentxr/opsdeck/internal"
	"github.com/ascentxr/opsdeck/internal/agentworker"
	"github.com/ascentxr/opsdeck/internal/config"
	"github.com/ascentxr/opsdeck/internal/console"
	"github.com/ascentxr/opsdeck/internal/lifecycle"
	"github.com/ascentxr/opsdeck/internal/task"
	"github.com/ascentxr/opsdeck/pkg/storage"
)

func startWorker(t *testing.T, executor agentworker.Executor, agentIDs ...string) (*internal.App, context.CancelFunc, <-chan error) {
	t.Helper()
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	app, err := internal.NewApp(&config.Env{
		BaseEnv:      config.BaseEnv{APIKey: "k", AllowedOrigins: []string{"*"}},
		SchedulerEnv: config.SchedulerEnv{PromoteCron: "5 0 * * *", TimeZone: "UTC", WorkerTimeout: time.Minute},
	}, st)
	require.NoError(t, err)
	srv := httptest.NewServer(app.Server.Handler())
	t.Cleanup(srv.Close)

	api, err := console.NewClient(srv.URL, "k")
	require.NoError(t, err)
	w := agentworker.New(agentworker.Config{
		WorkerID:           "worker-1",
		AgentIDs:           agentIDs,
		MaxConcurrentTasks: 2,
		PollInterval:       20 * time.Millisecond,
		HeartbeatInterval:  time.Second,
	}, agentworker.NewEngineClient(api), executor)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(cancel)
	return app, cancel, done
}

func createTask(t *testing.T, app *internal.App, agentID string) *task.Task {
	t.Helper()
	tk, err := app.Tasks.Create(context.Background(), task.CreateInput{AgentID: agentID, Title: "Audit onboarding emails", Prompt: "Audit the onboarding email sequence."})
	require.NoError(t, err)
	return tk
}

func waitForStatus(t *testing.T, app *internal.App, id string, want lifecycle.TaskStatus) *task.Task {
	t.Helper()
	var got *task.Task
	require.Eventually(t, func() bool {
		tk, err := app.Tasks.Get(context.Background(), id)
		if err != nil {
			return false
		}
		got = tk
		return tk.Status == want
	}, 3*time.Second, 20*time.Millisecond)
	return got
}

func TestWorkerRunsTaskToReview(t *testing.T) {
	app, cancel, done := startWorker(t, &agentworker.SimulatedExecutor{Step: time.Millisecond})
	tk := createTask(t, app, "growth-agent")

	got := waitForStatus(t, app, tk.ID, lifecycle.TaskReview)
	assert.Equal(t, "worker-1", got.ClaimedBy)
	assert.Contains(t, got.Result, "# Audit onboarding emails")
	assert.Contains(t, got.Result, "## Next steps")
	require.NotNil(t, got.TokensUsed)
	require.NotNil(t, got.ExecutionTimeMs)

	workers := app.Ingestor.Workers()
	require.Len(t, workers, 1)
	assert.Equal(t, "worker-1", workers[0].ID)

	cancel()
	assert.NoError(t, <-done)
}

func TestWorkerReportsFailure(t *testing.T) {
	app, _, _ := startWorker(t, &agentworker.SimulatedExecutor{Step: time.Millisecond, Fail: true})
	tk := createTask(t, app, "growth-agent")

	got := waitForStatus(t, app, tk.ID, lifecycle.TaskFailed)
	assert.Contains(t, got.Error, "simulated failure")
}

func TestWorkerOnlyClaimsItsAgents(t *testing.T) {
	app, _, _ := startWorker(t, &agentworker.SimulatedExecutor{Step: time.Millisecond}, "content-agent")
	other := createTask(t, app, "growth-agent")
	mine := createTask(t, app, "content-agent")

	waitForStatus(t, app, mine.ID, lifecycle.TaskReview)
	got, err := app.Tasks.Get(context.Background(), other.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.TaskQueued, got.Status)
}
