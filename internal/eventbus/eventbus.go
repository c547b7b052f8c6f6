package eventbus

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ascentxr/opsdeck/internal/lifecycle"
)

// TaskUpdateEvent is the push channel event name for task progress.
const TaskUpdateEvent = "agent:task:update"

// TaskUpdate is one progress event of a task. Seq is the task's store
// revision, so it grows strictly with every persisted change of that task.
type TaskUpdate struct {
	ID              string               `json:"id"`
	Event           string               `json:"event"`
	AgentID         string               `json:"agent_id"`
	TaskID          string               `json:"task_id"`
	Status          lifecycle.TaskStatus `json:"status"`
	Result          *string              `json:"result,omitempty"`
	Error           *string              `json:"error,omitempty"`
	ExecutionTimeMs *int64               `json:"execution_time_ms,omitempty"`
	Seq             int64                `json:"seq"`
	At              time.Time            `json:"at"`
}

// Bus fans task updates out to in-process subscribers. Publish never blocks:
// a subscriber whose buffer is full misses the event and is expected to
// refetch the authoritative record.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan *TaskUpdate
	onDrop      func()
}

type Option func(*Bus)

// WithDropHook registers fn to be called for every event dropped on a full
// subscriber buffer.
func WithDropHook(fn func()) Option {
	return func(b *Bus) { b.onDrop = fn }
}

func New(opts ...Option) *Bus {
	b := &Bus{subscribers: make(map[string]chan *TaskUpdate)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) Subscribe(bufSize int) (string, <-chan *TaskUpdate) {
	id := ulid.Make().String()
	ch := make(chan *TaskUpdate, bufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(u *TaskUpdate) {
	if u.ID == "" {
		u.ID = ulid.Make().String()
	}
	if u.Event == "" {
		u.Event = TaskUpdateEvent
	}
	if u.At.IsZero() {
		u.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- u:
		default:
			if b.onDrop != nil {
				b.onDrop()
			}
		}
	}
}

// SubscriberCount is exposed for the metrics gauge.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
