package pushnotification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ascentxr/opsdeck/internal/lifecycle"
	"github.com/ascentxr/opsdeck/internal/task"
)

const queueSize = 64

// Notifier turns task transitions that need an operator into push
// notifications. Delivery happens on the Start goroutine so the task write
// path never waits on a push service.
type Notifier struct {
	sender *Sender
	queue  chan Payload
}

func NewNotifier(sender *Sender) *Notifier {
	return &Notifier{sender: sender, queue: make(chan Payload, queueSize)}
}

var _ task.Listener = (*Notifier)(nil)

func (n *Notifier) TaskChanged(ctx context.Context, prev lifecycle.TaskStatus, t *task.Task) {
	if prev == t.Status {
		return
	}
	p, ok := payloadFor(t)
	if !ok {
		return
	}
	select {
	case n.queue <- p:
	default:
		slog.WarnContext(ctx, "push notification: queue full, dropping", "task_id", t.ID)
	}
}

func payloadFor(t *task.Task) (Payload, bool) {
	p := Payload{URL: "/tasks/" + t.ID, Tag: "task-" + t.ID}
	switch t.Status {
	case lifecycle.TaskReview:
		p.Title = "Ready for review"
		p.Body = fmt.Sprintf("%s (%s)", t.Title, t.AgentID)
	case lifecycle.TaskFailed:
		p.Title = "Task failed"
		p.Body = t.Title
		if t.Error != "" {
			p.Body += ": " + t.Error
		}
	default:
		return Payload{}, false
	}
	return p, true
}

// Start delivers queued notifications until ctx is done.
func (n *Notifier) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p := <-n.queue:
			n.sender.SendToAll(ctx, p)
		}
	}
}
