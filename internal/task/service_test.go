package task_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ascentxr/opsdeck/internal/eventbus"
	"github.com/ascentxr/opsdeck/internal/lifecycle"
	"github.com/ascentxr/opsdeck/internal/task"
	"github.com/ascentxr/opsdeck/internal/task/repositoryimpl"
	"github.com/ascentxr/opsdeck/pkg/cerr"
	"github.com/ascentxr/opsdeck/pkg/storage"
)

type recorded struct {
	prev   lifecycle.TaskStatus
	status lifecycle.TaskStatus
	id     string
}

func newService(t *testing.T) (*task.Service, *eventbus.Bus, *[]recorded) {
	t.Helper()
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	bus := eventbus.New()
	svc := task.NewService(repositoryimpl.NewYAMLRepository(st), bus,
		task.WithClock(func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }))
	var seen []recorded
	svc.AddListener(task.ListenerFunc(func(_ context.Context, prev lifecycle.TaskStatus, tk *task.Task) {
		seen = append(seen, recorded{prev: prev, status: tk.Status, id: tk.ID})
	}))
	return svc, bus, &seen
}

func TestServiceLifecyclePublishesSeq(t *testing.T) {
	ctx := context.Background()
	svc, bus, seen := newService(t)
	_, ch := bus.Subscribe(16)

	tk, err := svc.Create(ctx, task.CreateInput{AgentID: "a1", Title: "Draft newsletter", Prompt: "write it"})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.TaskQueued, tk.Status)

	_, err = svc.Claim(ctx, tk.ID, "w1")
	require.NoError(t, err)
	_, err = svc.Report(ctx, tk.ID, task.Report{Status: lifecycle.TaskRunning, ResultDelta: "hello"})
	require.NoError(t, err)
	// redelivery does not publish
	_, err = svc.Report(ctx, tk.ID, task.Report{Status: lifecycle.TaskRunning})
	require.NoError(t, err)
	got, err := svc.Report(ctx, tk.ID, task.Report{Status: lifecycle.TaskReview})
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Result)

	var seqs []int64
	var statuses []lifecycle.TaskStatus
	for len(ch) > 0 {
		u := <-ch
		seqs = append(seqs, u.Seq)
		statuses = append(statuses, u.Status)
	}
	assert.Equal(t, []int64{1, 2, 3, 4}, seqs)
	assert.Equal(t, []lifecycle.TaskStatus{lifecycle.TaskQueued, lifecycle.TaskAssigned, lifecycle.TaskRunning, lifecycle.TaskReview}, statuses)
	assert.Len(t, *seen, 3)

	approved, err := svc.Review(ctx, tk.ID, lifecycle.ReviewApprove, "ops", "")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.TaskApproved, approved.Status)

	_, err = svc.Report(ctx, tk.ID, task.Report{Status: lifecycle.TaskFailed})
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))
}

func TestServiceCreateValidates(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Create(context.Background(), task.CreateInput{AgentID: "a1"})
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))
}

func TestServiceRetry(t *testing.T) {
	ctx := context.Background()
	svc, _, seen := newService(t)

	tk, err := svc.Create(ctx, task.CreateInput{
		AgentID: "a1", Title: "t", Prompt: "p",
		Context: map[string]string{task.ContextCalendarEntryID: "e1"},
	})
	require.NoError(t, err)

	_, err = svc.Retry(ctx, tk.ID)
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))

	_, err = svc.Report(ctx, tk.ID, task.Report{Status: lifecycle.TaskFailed, Error: "boom"})
	require.NoError(t, err)

	retried, err := svc.Retry(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, tk.ID, retried.RetryOf)
	assert.Equal(t, lifecycle.TaskQueued, retried.Status)
	assert.Equal(t, "e1", retried.Context[task.ContextCalendarEntryID])

	orig, err := svc.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.TaskFailed, orig.Status)

	last := (*seen)[len(*seen)-1]
	assert.Equal(t, lifecycle.TaskStatus(""), last.prev)
	assert.Equal(t, retried.ID, last.id)
}

func TestServiceListFilters(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)
	for _, agent := range []string{"a1", "a2", "a1"} {
		_, err := svc.Create(ctx, task.CreateInput{AgentID: agent, Title: "t", Prompt: "p"})
		require.NoError(t, err)
	}
	tasks, total, err := svc.List(ctx, task.Filter{AgentID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, tasks, 2)
	assert.Less(t, tasks[0].ID, tasks[1].ID)

	tasks, total, err = svc.List(ctx, task.Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, tasks, 1)
}
