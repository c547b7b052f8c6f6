package console

import (
	"context"
	"log/slog"

	"github.com/ascentxr/opsdeck/internal/eventbus"
	"github.com/ascentxr/opsdeck/internal/lifecycle"
	"github.com/ascentxr/opsdeck/internal/liveupdate"
	"github.com/ascentxr/opsdeck/internal/projector"
	"github.com/ascentxr/opsdeck/internal/skillcalendar"
	"github.com/ascentxr/opsdeck/internal/task"
	"github.com/ascentxr/opsdeck/internal/workflowrun"
)

// Controller issues operator commands. A command forbidden by the record's
// last known state fails locally with an InvalidTransitionError and never
// reaches the server. Records passed in are never modified: the refetched
// record and the tracker overlay are the only sources of new state.
type Controller struct {
	client  *Client
	tracker *liveupdate.Tracker
}

func NewController(client *Client, tracker *liveupdate.Tracker) *Controller {
	return &Controller{client: client, tracker: tracker}
}

func (c *Controller) Tracker() *liveupdate.Tracker { return c.tracker }

// ExecuteEntry runs an entry and starts tracking its task under the entry id.
func (c *Controller) ExecuteEntry(ctx context.Context, e *skillcalendar.Entry) (*skillcalendar.ExecuteResult, error) {
	if err := e.CheckExecute(); err != nil {
		return nil, err
	}
	res, err := c.client.ExecuteEntry(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	c.tracker.Track(e.ID, res.TaskID)
	c.prime(ctx, res.TaskID)
	return res, nil
}

// prime folds the task's current state into a fresh overlay, covering
// updates pushed before tracking began. Seq ordering keeps it from
// overwriting anything newer.
func (c *Controller) prime(ctx context.Context, taskID string) {
	t, err := c.client.GetTask(ctx, taskID)
	if err != nil {
		slog.DebugContext(ctx, "could not prime overlay", "task_id", taskID, "error", err)
		return
	}
	u := &eventbus.TaskUpdate{AgentID: t.AgentID, TaskID: t.ID, Status: t.Status, ExecutionTimeMs: t.ExecutionTimeMs, Seq: t.Revision}
	if t.Result != "" {
		u.Result = &t.Result
	}
	if t.Error != "" {
		u.Error = &t.Error
	}
	c.tracker.Apply(u)
}

func (c *Controller) SkipEntry(ctx context.Context, e *skillcalendar.Entry) (*skillcalendar.Entry, error) {
	if !e.Status.CanSkip() {
		return nil, lifecycle.NewInvalidTransition("calendar entry", e.ID, e.Status, "skip")
	}
	return c.client.SkipEntry(ctx, e.ID)
}

func (c *Controller) AdvanceRun(ctx context.Context, r *workflowrun.Run) (*workflowrun.Run, error) {
	return c.runCommand(ctx, r, workflowrun.CommandAdvance)
}

func (c *Controller) CancelRun(ctx context.Context, r *workflowrun.Run) (*workflowrun.Run, error) {
	return c.runCommand(ctx, r, workflowrun.CommandCancel)
}

func (c *Controller) PauseRun(ctx context.Context, r *workflowrun.Run) (*workflowrun.Run, error) {
	return c.runCommand(ctx, r, workflowrun.CommandPause)
}

func (c *Controller) ResumeRun(ctx context.Context, r *workflowrun.Run) (*workflowrun.Run, error) {
	return c.runCommand(ctx, r, workflowrun.CommandResume)
}

func (c *Controller) runCommand(ctx context.Context, r *workflowrun.Run, cmd workflowrun.Command) (*workflowrun.Run, error) {
	if err := r.Check(cmd); err != nil {
		return nil, err
	}
	return c.client.RunCommand(ctx, r.ID, string(cmd))
}

func (c *Controller) ReviewTask(ctx context.Context, t *task.Task, action lifecycle.ReviewAction, reviewer, notes string) (*task.Task, error) {
	if err := t.CheckReview(action); err != nil {
		return nil, err
	}
	return c.client.ReviewTask(ctx, t.ID, action, reviewer, notes)
}

// MoveCard applies a drag of a kanban card onto column to.
func (c *Controller) MoveCard(ctx context.Context, t *task.Task, to projector.Column, reviewer string) (*task.Task, error) {
	action, err := projector.MoveCommand(t.Status, to)
	if err != nil {
		return nil, err
	}
	return c.ReviewTask(ctx, t, action, reviewer, "")
}

// Board fetches tasks and lays them out by column.
func (c *Controller) Board(ctx context.Context, f task.Filter) (projector.Board, error) {
	resp, err := c.client.ListTasks(ctx, f)
	if err != nil {
		return nil, err
	}
	return projector.BuildBoard(resp.Tasks)
}

// Cell is one calendar entry as the operator sees it.
type Cell struct {
	Entry   *skillcalendar.Entry  `json:"entry"`
	Display lifecycle.EntryStatus `json:"display"`
	Live    bool                  `json:"live"`
}

// RefreshEntries refetches entries and settles every overlay against them:
// overlays that disagree with the stored status are cleared.
func (c *Controller) RefreshEntries(ctx context.Context, f skillcalendar.EntryFilter) ([]Cell, error) {
	entries, err := c.client.ListEntries(ctx, f)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		stale, err := c.tracker.Reconcile(e.ID, e.Status)
		if err != nil {
			return nil, err
		}
		if stale {
			slog.DebugContext(ctx, "cleared stale overlay", "calendar_entry_id", e.ID, "status", e.Status)
		}
	}
	return c.Calendar(entries)
}

// Calendar projects entries with their overlays, keeping the given order.
func (c *Controller) Calendar(entries []*skillcalendar.Entry) ([]Cell, error) {
	out := make([]Cell, 0, len(entries))
	for _, e := range entries {
		overlay := c.tracker.Status(e.ID)
		shown, err := projector.DisplayStatus(e.Status, overlay)
		if err != nil {
			return nil, err
		}
		out = append(out, Cell{Entry: e, Display: shown, Live: overlay != nil})
	}
	return out, nil
}

// Dismiss removes the overlay of a record once the operator has seen it.
func (c *Controller) Dismiss(id string) {
	c.tracker.Clear(id)
}
