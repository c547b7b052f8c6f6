package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/alecthomas/kingpin/v2"

	"github.com/ascentxr/opsdeck/internal/console"
	"github.com/ascentxr/opsdeck/internal/eventbus"
	"github.com/ascentxr/opsdeck/internal/lifecycle"
	"github.com/ascentxr/opsdeck/internal/liveupdate"
	"github.com/ascentxr/opsdeck/internal/skillcalendar"
	"github.com/ascentxr/opsdeck/internal/task"
	"github.com/ascentxr/opsdeck/internal/taskupdate"
	"github.com/ascentxr/opsdeck/pkg/clog"
)

var (
	app = kingpin.New("opsdeck", "Operator console for agent tasks, workflow runs and the skill calendar.")

	serverURL = app.Flag("server", "Server base URL.").Envar("OPSDECK_SERVER_URL").Default("http://localhost:3200").String()
	apiKey    = app.Flag("api-key", "API key.").Envar("OPSDECK_API_KEY").Required().String()
	timeout   = app.Flag("timeout", "Per-command timeout.").Default("15s").Duration()
	operator  = app.Flag("operator", "Name recorded on reviews.").Envar("OPSDECK_OPERATOR").Default(os.Getenv("USER")).String()

	boardCmd   = app.Command("board", "Show tasks as a kanban board.")
	boardAgent = boardCmd.Flag("agent", "Only tasks of this agent.").String()
	boardArea  = boardCmd.Flag("area", "Only tasks of this business area.").String()

	plansCmd = app.Command("plans", "List skill calendar plans with progress.")

	calendarCmd  = app.Command("calendar", "Show calendar entries.")
	calendarPlan = calendarCmd.Flag("plan", "Plan id.").String()
	calendarDays = calendarCmd.Flag("days", "Show entries due within this many days instead.").Int()

	executeCmd    = app.Command("execute", "Execute a calendar entry now.")
	executeID     = executeCmd.Arg("entry", "Entry id.").Required().String()
	executeFollow = executeCmd.Flag("follow", "Follow the task until it finishes.").Bool()

	skipCmd = app.Command("skip", "Skip a calendar entry.")
	skipID  = skipCmd.Arg("entry", "Entry id.").Required().String()

	runCmd    = app.Command("run", "Control a workflow run.")
	runAction = runCmd.Arg("action", "advance, cancel, pause or resume.").Required().Enum("advance", "cancel", "pause", "resume")
	runID     = runCmd.Arg("run", "Run id.").Required().String()

	reviewCmd    = app.Command("review", "Approve or reject a task in review.")
	reviewID     = reviewCmd.Arg("task", "Task id.").Required().String()
	reviewAction = reviewCmd.Arg("action", "approve or reject.").Required().Enum("approve", "reject")
	reviewNotes  = reviewCmd.Flag("notes", "Review notes appended to the result.").String()

	watchCmd   = app.Command("watch", "Stream task updates.")
	watchAgent = watchCmd.Flag("agent", "Only updates of this agent.").String()
	watchTasks = watchCmd.Flag("task", "Only updates of this task; repeatable.").Strings()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))
	slog.SetDefault(slog.New(clog.NewTextHandler(os.Stderr, clog.WithLevel(slog.LevelWarn))))

	client, err := console.NewClient(*serverURL, *apiKey, console.WithCommandTimeout(*timeout))
	app.FatalIfError(err, "")
	ctl := console.NewController(client, liveupdate.NewTracker())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	switch command {
	case boardCmd.FullCommand():
		err = board(ctx, ctl)
	case plansCmd.FullCommand():
		err = plans(ctx, client)
	case calendarCmd.FullCommand():
		err = calendar(ctx, client, ctl)
	case executeCmd.FullCommand():
		err = execute(ctx, client, ctl)
	case skipCmd.FullCommand():
		err = skip(ctx, client, ctl)
	case runCmd.FullCommand():
		err = runCommand(ctx, client, ctl)
	case reviewCmd.FullCommand():
		err = review(ctx, client, ctl)
	case watchCmd.FullCommand():
		err = watch(ctx)
	}
	app.FatalIfError(err, "%s", command)
}

func board(ctx context.Context, ctl *console.Controller) error {
	b, err := ctl.Board(ctx, task.Filter{AgentID: *boardAgent, BusinessArea: *boardArea})
	if err != nil {
		return err
	}
	printBoard(os.Stdout, b)
	return nil
}

func plans(ctx context.Context, client *console.Client) error {
	ps, err := client.ListPlans(ctx, "")
	if err != nil {
		return err
	}
	for _, p := range ps {
		stats, err := client.PlanStats(ctx, p.ID)
		if err != nil {
			return err
		}
		printPlan(os.Stdout, p, stats)
	}
	return nil
}

func calendar(ctx context.Context, client *console.Client, ctl *console.Controller) error {
	var (
		cells []console.Cell
		err   error
	)
	if *calendarDays > 0 {
		var entries []*skillcalendar.Entry
		entries, err = client.UpcomingEntries(ctx, *calendarDays)
		if err != nil {
			return err
		}
		cells, err = ctl.Calendar(entries)
	} else {
		cells, err = ctl.RefreshEntries(ctx, skillcalendar.EntryFilter{PlanID: *calendarPlan})
	}
	if err != nil {
		return err
	}
	printCells(os.Stdout, cells)
	return nil
}

func execute(ctx context.Context, client *console.Client, ctl *console.Controller) error {
	e, err := client.GetEntry(ctx, *executeID)
	if err != nil {
		return err
	}
	if !*executeFollow {
		res, err := ctl.ExecuteEntry(ctx, e)
		if err != nil {
			return err
		}
		fmt.Printf("entry %s is %s as task %s on %s\n", res.EntryID, res.Status, res.TaskID, res.AgentID)
		return nil
	}

	// subscribe before executing so no update of the new task is missed
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	var once sync.Once
	feed := console.NewFeed(updateClient(), ctl.Tracker(), func(u *eventbus.TaskUpdate) {
		printUpdate(os.Stdout, u)
		if o, ok := ctl.Tracker().Get(e.ID); ok && o.Terminal() {
			once.Do(func() { close(done) })
		}
	})
	go feed.Run(ctx, taskupdate.SubscribeRequest{})
	select {
	case <-feed.Subscribed():
	case <-ctx.Done():
		return ctx.Err()
	}

	res, err := ctl.ExecuteEntry(ctx, e)
	if err != nil {
		return err
	}
	fmt.Printf("entry %s is %s as task %s on %s\n", res.EntryID, res.Status, res.TaskID, res.AgentID)
	if o, ok := ctl.Tracker().Get(e.ID); ok && o.Terminal() {
		return nil
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
	return nil
}

func skip(ctx context.Context, client *console.Client, ctl *console.Controller) error {
	e, err := client.GetEntry(ctx, *skipID)
	if err != nil {
		return err
	}
	e, err = ctl.SkipEntry(ctx, e)
	if err != nil {
		return err
	}
	fmt.Printf("entry %s is %s\n", e.ID, e.Status)
	return nil
}

func runCommand(ctx context.Context, client *console.Client, ctl *console.Controller) error {
	r, err := client.GetRun(ctx, *runID)
	if err != nil {
		return err
	}
	switch *runAction {
	case "advance":
		r, err = ctl.AdvanceRun(ctx, r)
	case "cancel":
		r, err = ctl.CancelRun(ctx, r)
	case "pause":
		r, err = ctl.PauseRun(ctx, r)
	case "resume":
		r, err = ctl.ResumeRun(ctx, r)
	}
	if err != nil {
		return err
	}
	fmt.Printf("run %s is %s at step %d/%d\n", r.ID, r.Status, r.CurrentStep, r.TotalSteps)
	return nil
}

func review(ctx context.Context, client *console.Client, ctl *console.Controller) error {
	t, err := client.GetTask(ctx, *reviewID)
	if err != nil {
		return err
	}
	action := lifecycle.ReviewApprove
	if *reviewAction == "reject" {
		action = lifecycle.ReviewReject
	}
	t, err = ctl.ReviewTask(ctx, t, action, *operator, *reviewNotes)
	if err != nil {
		return err
	}
	fmt.Printf("task %s is %s\n", t.ID, t.Status)
	return nil
}

func watch(ctx context.Context) error {
	stream, err := updateClient().Subscribe(ctx, taskupdate.SubscribeRequest{AgentID: *watchAgent, TaskIDs: *watchTasks})
	if err != nil {
		return err
	}
	defer stream.Close()
	for {
		u, ok := stream.Next()
		if !ok {
			if ctx.Err() != nil {
				return nil
			}
			return stream.Err()
		}
		printUpdate(os.Stdout, u)
	}
}

func updateClient() *taskupdate.Client {
	return taskupdate.NewClient(newStreamingHTTPClient(), *serverURL, *apiKey)
}
