package pushnotification

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ascentxr/opsdeck/internal/config"
	"github.com/ascentxr/opsdeck/internal/lifecycle"
	"github.com/ascentxr/opsdeck/internal/pushsubscription"
	"github.com/ascentxr/opsdeck/internal/pushsubscription/repositoryimpl"
	"github.com/ascentxr/opsdeck/internal/task"
	"github.com/ascentxr/opsdeck/pkg/storage"
)

type pushFixture struct {
	repo     *repositoryimpl.YAMLRepository
	sender   *Sender
	received atomic.Int32
	status   atomic.Int32
}

func newPushFixture(t *testing.T) *pushFixture {
	t.Helper()
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	f := &pushFixture{repo: repositoryimpl.NewYAMLRepository(st)}
	f.status.Store(http.StatusCreated)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.received.Add(1)
		w.WriteHeader(int(f.status.Load()))
	}))
	t.Cleanup(srv.Close)

	priv, pub, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	_, clientPub, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)

	_, err = f.repo.Register(context.Background(), &pushsubscription.Subscription{
		Endpoint:  srv.URL + "/push/1",
		P256dhKey: clientPub,
		AuthKey:   base64.RawURLEncoding.EncodeToString(auth),
	})
	require.NoError(t, err)

	f.sender = NewSender(config.VAPIDEnv{
		VAPIDPublicKey:  pub,
		VAPIDPrivateKey: priv,
		VAPIDContact:    "mailto:ops@example.com",
	}, f.repo, WithHTTPClient(srv.Client()))
	return f
}

func TestSendToAll(t *testing.T) {
	f := newPushFixture(t)
	n := f.sender.SendToAll(context.Background(), Payload{Title: "hello"})
	assert.Equal(t, 1, n)
	assert.EqualValues(t, 1, f.received.Load())
}

func TestSendToAllRemovesGoneSubscription(t *testing.T) {
	f := newPushFixture(t)
	f.status.Store(http.StatusGone)

	n := f.sender.SendToAll(context.Background(), Payload{Title: "hello"})
	assert.Zero(t, n)
	subs, err := f.repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestSendToAllWithoutKeys(t *testing.T) {
	f := newPushFixture(t)
	s := NewSender(config.VAPIDEnv{}, f.repo)
	assert.False(t, s.Enabled())
	assert.Zero(t, s.SendToAll(context.Background(), Payload{Title: "x"}))
	assert.Zero(t, f.received.Load())
}

func TestPayloadFor(t *testing.T) {
	tk := &task.Task{ID: "t1", Title: "Audit", AgentID: "growth-agent", Error: "timeout"}

	tk.Status = lifecycle.TaskReview
	p, ok := payloadFor(tk)
	require.True(t, ok)
	assert.Equal(t, "Ready for review", p.Title)
	assert.Equal(t, "Audit (growth-agent)", p.Body)
	assert.Equal(t, "/tasks/t1", p.URL)

	tk.Status = lifecycle.TaskFailed
	p, ok = payloadFor(tk)
	require.True(t, ok)
	assert.Equal(t, "Audit: timeout", p.Body)

	tk.Status = lifecycle.TaskRunning
	_, ok = payloadFor(tk)
	assert.False(t, ok)
}

func TestNotifierDeliversOnReview(t *testing.T) {
	f := newPushFixture(t)
	n := NewNotifier(f.sender)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Start(ctx)

	tk := &task.Task{ID: "t1", Title: "Audit", Status: lifecycle.TaskRunning}
	n.TaskChanged(ctx, lifecycle.TaskAssigned, tk)
	tk.Status = lifecycle.TaskReview
	n.TaskChanged(ctx, lifecycle.TaskRunning, tk)
	n.TaskChanged(ctx, lifecycle.TaskReview, tk)

	assert.Eventually(t, func() bool { return f.received.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return f.received.Load() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
}
