package engine

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// Worker is the last known state of an execution engine worker.
type Worker struct {
	ID                 string    `json:"id"`
	AgentIDs           []string  `json:"agent_ids,omitempty"`
	MaxConcurrentTasks int       `json:"max_concurrent_tasks"`
	ActiveTasks        int       `json:"active_tasks"`
	LastHeartbeat      time.Time `json:"last_heartbeat"`
}

// Registry tracks workers by heartbeat. A worker that stops sending
// heartbeats for longer than the registry's timeout is forgotten.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]*Worker
	timeout time.Duration
	now     func() time.Time
}

func NewRegistry(timeout time.Duration, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{workers: make(map[string]*Worker), timeout: timeout, now: now}
}

// Heartbeat registers or refreshes a worker.
func (r *Registry) Heartbeat(w Worker) {
	w.LastHeartbeat = r.now()
	w.AgentIDs = slices.Clone(w.AgentIDs)
	r.mu.Lock()
	r.workers[w.ID] = &w
	r.mu.Unlock()
}

func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	delete(r.workers, id)
	r.mu.Unlock()
}

// Live returns the workers seen within the timeout, ordered by id. Stale
// workers are dropped as a side effect.
func (r *Registry) Live() []Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-r.timeout)
	out := make([]Worker, 0, len(r.workers))
	for id, w := range r.workers {
		if w.LastHeartbeat.Before(cutoff) {
			delete(r.workers, id)
			continue
		}
		out = append(out, *w)
	}
	slices.SortFunc(out, func(a, b Worker) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
