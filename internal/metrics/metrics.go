package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ascentxr/opsdeck/internal/engine"
	"github.com/ascentxr/opsdeck/internal/lifecycle"
	"github.com/ascentxr/opsdeck/internal/task"
)

const namespace = "opsdeck"

type Metrics struct {
	registry *prometheus.Registry

	taskTransitions  *prometheus.CounterVec
	taskDuration     *prometheus.HistogramVec
	taskTokens       *prometheus.CounterVec
	reportsIngested  *prometheus.CounterVec
	busDropped       prometheus.Counter
	calendarPromoted prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		taskTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "task",
			Name:      "transitions_total",
			Help:      "Persisted task status changes, labelled by target status.",
		}, []string{"agent_id", "status"}),
		taskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "task",
			Name:      "execution_seconds",
			Help:      "Execution time of tasks that finished running.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"agent_id", "status"}),
		taskTokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "task",
			Name:      "tokens_used_total",
			Help:      "Tokens consumed by finished tasks.",
		}, []string{"agent_id"}),
		reportsIngested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "reports_total",
			Help:      "Engine status reports, labelled by reported status and outcome.",
		}, []string{"status", "outcome"}),
		busDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "dropped_updates_total",
			Help:      "Task updates dropped on a full subscriber buffer.",
		}),
		calendarPromoted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calendar",
			Name:      "promoted_entries_total",
			Help:      "Calendar entries promoted from pending to scheduled.",
		}),
	}
}

// GaugeFunc exposes a value sampled at scrape time, such as the number of
// push subscribers or live workers.
func (m *Metrics) GaugeFunc(subsystem, name, help string, fn func() int) {
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(fn()) })
}

var (
	_ task.Listener   = (*Metrics)(nil)
	_ engine.Observer = (*Metrics)(nil)
)

func (m *Metrics) TaskChanged(_ context.Context, prev lifecycle.TaskStatus, t *task.Task) {
	if prev == t.Status {
		return
	}
	m.taskTransitions.WithLabelValues(t.AgentID, string(t.Status)).Inc()
	if t.Status != lifecycle.TaskReview && t.Status != lifecycle.TaskFailed {
		return
	}
	if t.ExecutionTimeMs != nil {
		m.taskDuration.WithLabelValues(t.AgentID, string(t.Status)).Observe(float64(*t.ExecutionTimeMs) / 1000)
	}
	if t.TokensUsed != nil {
		m.taskTokens.WithLabelValues(t.AgentID).Add(float64(*t.TokensUsed))
	}
}

func (m *Metrics) ReportIngested(status lifecycle.TaskStatus, outcome string) {
	if status == "" {
		status = "unknown"
	}
	m.reportsIngested.WithLabelValues(string(status), outcome).Inc()
}

func (m *Metrics) UpdateDropped() {
	m.busDropped.Inc()
}

func (m *Metrics) EntriesPromoted(n int) {
	m.calendarPromoted.Add(float64(n))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
