// Package liveupdate keeps the provisional execution status of records that
// an operator just started, fed by the task update push channel.
package liveupdate

import (
	"maps"
	"sync"
	"time"

	"github.com/ascentxr/opsdeck/internal/eventbus"
	"github.com/ascentxr/opsdeck/internal/lifecycle"
	"github.com/ascentxr/opsdeck/internal/projector"
)

// Overlay is the latest pushed state of one tracked execution.
type Overlay struct {
	ID              string
	ExecutionID     string
	Status          lifecycle.TaskStatus
	Result          string
	Error           string
	ExecutionTimeMs *int64
	Seq             int64
	TrackedAt       time.Time
	UpdatedAt       time.Time
}

// Received reports whether any update has reached the overlay yet.
func (o Overlay) Received() bool { return o.Status != "" }

// Terminal overlays stay until cleared.
func (o Overlay) Terminal() bool {
	return o.Status.IsTerminal() || o.Status == lifecycle.TaskReview
}

// Tracker maps record ids to overlays. Apply and Clear are the only
// mutators; Track only registers interest.
type Tracker struct {
	mu     sync.RWMutex
	byID   map[string]*Overlay
	byExec map[string]string
	now    func() time.Time
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		byID:   make(map[string]*Overlay),
		byExec: make(map[string]string),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track starts tracking id under executionID. Tracking an id again replaces
// the previous execution and its overlay.
func (t *Tracker) Track(id, executionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.byID[id]; ok {
		delete(t.byExec, old.ExecutionID)
	}
	if prevID, ok := t.byExec[executionID]; ok && prevID != id {
		delete(t.byID, prevID)
	}
	now := t.now()
	t.byID[id] = &Overlay{ID: id, ExecutionID: executionID, TrackedAt: now, UpdatedAt: now}
	t.byExec[executionID] = id
}

// Apply merges a pushed update into the overlay tracking its task. Updates
// for untracked executions and updates not newer than the last applied seq
// are dropped. It reports whether the overlay changed.
func (t *Tracker) Apply(u *eventbus.TaskUpdate) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.byExec[u.TaskID]
	if !ok {
		return false
	}
	o := t.byID[id]
	if u.Seq > 0 && u.Seq <= o.Seq {
		return false
	}
	o.Status = u.Status
	if u.Result != nil {
		o.Result = *u.Result
	}
	if u.Error != nil {
		o.Error = *u.Error
	}
	if u.ExecutionTimeMs != nil {
		v := *u.ExecutionTimeMs
		o.ExecutionTimeMs = &v
	}
	if u.Seq > 0 {
		o.Seq = u.Seq
	}
	o.UpdatedAt = t.now()
	return true
}

// Clear drops the overlay of id. Clearing an untracked id does nothing.
func (t *Tracker) Clear(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clear(id)
}

func (t *Tracker) clear(id string) {
	if o, ok := t.byID[id]; ok {
		delete(t.byExec, o.ExecutionID)
		delete(t.byID, id)
	}
}

// Get returns a copy of the overlay of id.
func (t *Tracker) Get(id string) (Overlay, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	o, ok := t.byID[id]
	if !ok {
		return Overlay{}, false
	}
	return *o, true
}

// Status returns the overlay status of id, or nil when none has arrived.
func (t *Tracker) Status(id string) *lifecycle.TaskStatus {
	o, ok := t.Get(id)
	if !ok || !o.Received() {
		return nil
	}
	return &o.Status
}

func (t *Tracker) Snapshot() map[string]Overlay {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]Overlay, len(t.byID))
	for id, o := range t.byID {
		out[id] = *o
	}
	return out
}

// Tracked lists the execution ids currently tracked.
func (t *Tracker) Tracked() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.byExec))
	for exec := range maps.Keys(t.byExec) {
		out = append(out, exec)
	}
	return out
}

// Reconcile compares the overlay of an entry with the freshly fetched entry
// status. A disagreeing overlay is stale and is cleared; the stored status
// always wins. It reports whether an overlay was cleared.
func (t *Tracker) Reconcile(id string, authoritative lifecycle.EntryStatus) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.byID[id]
	if !ok || !o.Received() {
		return false, nil
	}
	shown, err := projector.DisplayStatus(authoritative, &o.Status)
	if err != nil {
		return false, err
	}
	if shown == authoritative {
		return false, nil
	}
	t.clear(id)
	return true, nil
}
