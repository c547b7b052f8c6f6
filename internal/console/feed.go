package console

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ascentxr/opsdeck/internal/eventbus"
	"github.com/ascentxr/opsdeck/internal/liveupdate"
	"github.com/ascentxr/opsdeck/internal/taskupdate"
)

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// Feed applies pushed task updates to a tracker.
type Feed struct {
	client  *taskupdate.Client
	tracker *liveupdate.Tracker
	onApply func(*eventbus.TaskUpdate)

	subscribed     chan struct{}
	subscribedOnce sync.Once
}

func NewFeed(client *taskupdate.Client, tracker *liveupdate.Tracker, onApply func(*eventbus.TaskUpdate)) *Feed {
	return &Feed{client: client, tracker: tracker, onApply: onApply, subscribed: make(chan struct{})}
}

// Subscribed is closed once the first subscription is registered on the
// server. Commands whose updates must not be missed wait for it.
func (f *Feed) Subscribed() <-chan struct{} {
	return f.subscribed
}

// Run keeps a subscription open until ctx is done, reconnecting with
// backoff. Updates missed while disconnected are recovered by the next
// refetch, not replayed.
func (f *Feed) Run(ctx context.Context, req taskupdate.SubscribeRequest) error {
	backoff := minBackoff
	for {
		err := f.consume(ctx, req)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = minBackoff
		}
		slog.WarnContext(ctx, "task update stream ended, reconnecting", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (f *Feed) consume(ctx context.Context, req taskupdate.SubscribeRequest) error {
	stream, err := f.client.Subscribe(ctx, req)
	if err != nil {
		return err
	}
	defer stream.Close()
	f.subscribedOnce.Do(func() { close(f.subscribed) })
	for {
		u, ok := stream.Next()
		if !ok {
			if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		}
		if f.tracker.Apply(u) && f.onApply != nil {
			f.onApply(u)
		}
	}
}
