package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/ulid/v2"

	"github.com/ascentxr/opsdeck/internal/agentworker"
	"github.com/ascentxr/opsdeck/internal/console"
	"github.com/ascentxr/opsdeck/pkg/clog"
)

var (
	app = kingpin.New("opsdeck-agent", "Claims queued ops tasks and runs them with an AI agent.")

	serverURL   = app.Flag("server", "Server base URL.").Envar("OPSDECK_SERVER_URL").Default("http://localhost:3200").String()
	apiKey      = app.Flag("api-key", "API key.").Envar("OPSDECK_API_KEY").Required().String()
	workerID    = app.Flag("worker-id", "Worker id; random when empty.").Envar("OPSDECK_WORKER_ID").String()
	agentIDs    = app.Flag("agent", "Agent id this worker serves; repeatable. Empty serves every agent.").Envar("OPSDECK_AGENT_IDS").Strings()
	maxTasks    = app.Flag("max-tasks", "Tasks executed at once.").Envar("OPSDECK_MAX_CONCURRENT_TASKS").Default("4").Int()
	poll        = app.Flag("poll", "Interval between claim attempts.").Default("2s").Duration()
	heartbeat   = app.Flag("heartbeat", "Interval between heartbeats.").Default("30s").Duration()
	workDir     = app.Flag("work-dir", "Working directory of the agent.").Envar("OPSDECK_WORK_DIR").Default(".").String()
	maxTurns    = app.Flag("max-turns", "Agent turns per task.").Default("5").Int()
	taskTimeout = app.Flag("task-timeout", "Upper bound on a single task.").Default("20m").Duration()
	simulate    = app.Flag("simulate", "Stream canned output instead of calling the agent.").Envar("OPSDECK_SIMULATE").Bool()
	logLevel    = app.Flag("log-level", "debug, info, warn or error.").Envar("OPSDECK_LOG_LEVEL").Default("info").String()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(clog.NewTextHandler(os.Stderr, clog.WithLevel(level)))))

	id := *workerID
	if id == "" {
		id = ulid.Make().String()
	}

	api, err := console.NewClient(*serverURL, *apiKey)
	if err != nil {
		app.Fatalf("%v", err)
	}

	var executor agentworker.Executor = &agentworker.ClaudeExecutor{WorkDir: *workDir, MaxTurns: *maxTurns, Timeout: *taskTimeout}
	if *simulate {
		executor = &agentworker.SimulatedExecutor{Step: 500 * time.Millisecond}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	slog.Info("agent worker starting", "worker_id", id, "server", *serverURL, "agents", *agentIDs, "max_tasks", *maxTasks, "simulate", *simulate)
	w := agentworker.New(agentworker.Config{
		WorkerID:           id,
		AgentIDs:           *agentIDs,
		MaxConcurrentTasks: *maxTasks,
		PollInterval:       *poll,
		HeartbeatInterval:  *heartbeat,
	}, agentworker.NewEngineClient(api), executor)
	if err := w.Run(ctx); err != nil {
		slog.Error("worker stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("agent worker stopped")
}
