package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ascentxr/opsdeck/internal/lifecycle"
)

func TestPublishFansOut(t *testing.T) {
	b := New()
	id1, ch1 := b.Subscribe(4)
	_, ch2 := b.Subscribe(4)
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(&TaskUpdate{TaskID: "t1", Status: lifecycle.TaskRunning, Seq: 2})

	for _, ch := range []<-chan *TaskUpdate{ch1, ch2} {
		u := <-ch
		assert.Equal(t, "t1", u.TaskID)
		assert.Equal(t, TaskUpdateEvent, u.Event)
		assert.NotEmpty(t, u.ID)
		assert.False(t, u.At.IsZero())
	}

	b.Unsubscribe(id1)
	_, open := <-ch1
	assert.False(t, open)
	b.Unsubscribe(id1)
	assert.Equal(t, 1, b.SubscriberCount())
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	dropped := 0
	b := New(WithDropHook(func() { dropped++ }))
	_, ch := b.Subscribe(1)

	b.Publish(&TaskUpdate{TaskID: "t1", Seq: 1})
	b.Publish(&TaskUpdate{TaskID: "t1", Seq: 2})

	require.Len(t, ch, 1)
	assert.Equal(t, int64(1), (<-ch).Seq)
	assert.Equal(t, 1, dropped)
}
