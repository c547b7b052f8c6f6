package internal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ascentxr/opsdeck/internal/catalog"
	"github.com/ascentxr/opsdeck/internal/config"
	"github.com/ascentxr/opsdeck/internal/engine"
	"github.com/ascentxr/opsdeck/internal/eventbus"
	"github.com/ascentxr/opsdeck/internal/metrics"
	"github.com/ascentxr/opsdeck/internal/pushnotification"
	pushrepo "github.com/ascentxr/opsdeck/internal/pushsubscription/repositoryimpl"
	"github.com/ascentxr/opsdeck/internal/skill"
	skillrepo "github.com/ascentxr/opsdeck/internal/skill/repositoryimpl"
	"github.com/ascentxr/opsdeck/internal/skillcalendar"
	calendarrepo "github.com/ascentxr/opsdeck/internal/skillcalendar/repositoryimpl"
	"github.com/ascentxr/opsdeck/internal/task"
	taskrepo "github.com/ascentxr/opsdeck/internal/task/repositoryimpl"
	"github.com/ascentxr/opsdeck/internal/taskupdate"
	"github.com/ascentxr/opsdeck/internal/workflow"
	workflowrepo "github.com/ascentxr/opsdeck/internal/workflow/repositoryimpl"
	"github.com/ascentxr/opsdeck/internal/workflowrun"
	runrepo "github.com/ascentxr/opsdeck/internal/workflowrun/repositoryimpl"
	"github.com/ascentxr/opsdeck/pkg/panicerr"
	"github.com/ascentxr/opsdeck/pkg/storage"
)

// App is the fully wired server side: services sharing one store and one
// event bus, plus the background jobs that keep it current.
type App struct {
	Server    *Server
	Bus       *eventbus.Bus
	Tasks     *task.Service
	Runs      *workflowrun.Service
	Calendar  *skillcalendar.Service
	Ingestor  *engine.Ingestor
	Metrics   *metrics.Metrics
	Skills    skill.Repository
	Workflows workflow.Repository

	notifier *pushnotification.Notifier
	promoter *skillcalendar.Promoter
	catalog  *catalog.Loader
	env      *config.Env
}

type AppOption func(*appOptions)

type appOptions struct {
	now func() time.Time
}

// WithAppClock replaces the wall clock of every time-dependent service.
func WithAppClock(now func() time.Time) AppOption {
	return func(o *appOptions) { o.now = now }
}

func NewApp(env *config.Env, st storage.Storage, opts ...AppOption) (*App, error) {
	o := appOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	loc, err := env.Location()
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	bus := eventbus.New(eventbus.WithDropHook(m.UpdateDropped))

	skills := skillrepo.NewYAMLRepository(st)
	workflows := workflowrepo.NewYAMLRepository(st)
	pushSubs := pushrepo.NewYAMLRepository(st)

	tasks := task.NewService(taskrepo.NewYAMLRepository(st), bus, task.WithClock(o.now))
	runs := workflowrun.NewService(runrepo.NewYAMLRepository(st), workflows, skills, tasks, workflowrun.Config{
		DefaultAgentID: env.DefaultAgentID,
		CompanyContext: env.CompanyContext,
	})
	calendar := skillcalendar.NewService(
		calendarrepo.NewYAMLPlanRepository(st),
		calendarrepo.NewYAMLEntryRepository(st),
		skills, tasks,
		skillcalendar.Config{DefaultAgentID: env.DefaultAgentID, CompanyContext: env.CompanyContext, Location: loc},
		skillcalendar.WithClock(o.now),
	)
	promoter, err := skillcalendar.NewPromoter(calendar, env.PromoteCron, skillcalendar.WithPromotedHook(m.EntriesPromoted))
	if err != nil {
		return nil, err
	}

	registry := engine.NewRegistry(env.WorkerTimeout, o.now)
	ingestor := engine.NewIngestor(tasks, registry, engine.WithObserver(m))

	sender := pushnotification.NewSender(env.VAPIDEnv, pushSubs)
	notifier := pushnotification.NewNotifier(sender)

	tasks.AddListener(runs)
	tasks.AddListener(calendar)
	tasks.AddListener(m)
	tasks.AddListener(notifier)

	m.GaugeFunc("push", "subscribers", "Open task update subscriptions.", bus.SubscriberCount)
	m.GaugeFunc("engine", "live_workers", "Workers with a recent heartbeat.", func() int { return len(registry.Live()) })

	app := &App{
		Bus:       bus,
		Tasks:     tasks,
		Runs:      runs,
		Calendar:  calendar,
		Ingestor:  ingestor,
		Metrics:   m,
		Skills:    skills,
		Workflows: workflows,
		notifier:  notifier,
		promoter:  promoter,
		env:       env,
	}
	if env.CatalogEnv.Dir != "" {
		app.catalog = catalog.NewLoader(env.CatalogEnv.Dir, skills, workflows)
	}
	app.Server = NewServer(
		env,
		task.NewServer(tasks),
		skill.NewServer(skills),
		workflow.NewServer(workflows),
		workflowrun.NewServer(runs),
		skillcalendar.NewServer(calendar),
		engine.NewServer(ingestor),
		pushnotification.NewServer(env.VAPIDEnv, pushSubs, sender),
		taskupdate.NewServer(bus),
		m.Handler(),
	)
	return app, nil
}

// LoadCatalog syncs skill and workflow definitions once. It is a no-op
// without a catalog directory.
func (a *App) LoadCatalog(ctx context.Context) error {
	if a.catalog == nil {
		return nil
	}
	res, err := a.catalog.Load(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	if err := res.Err(); err != nil {
		slog.WarnContext(ctx, "some catalog definitions were skipped", "error", err)
	}
	slog.InfoContext(ctx, "catalog loaded", "skills", res.Skills, "workflows", res.Workflows)
	return nil
}

// StartBackground launches the promoter, push delivery and the catalog
// watcher. All stop when ctx is done.
func (a *App) StartBackground(ctx context.Context) {
	a.promoter.Start(ctx)
	panicerr.Go(ctx, "push-notifier", a.notifier.Start)
	if a.catalog != nil && a.env.CatalogEnv.Watch {
		panicerr.Go(ctx, "catalog-watcher", a.catalog.Watch)
	}
}
