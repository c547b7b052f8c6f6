package pushnotification

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/ascentxr/opsdeck/internal/config"
	"github.com/ascentxr/opsdeck/internal/pushsubscription"
)

const notificationTTL = 86400

type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

type Sender struct {
	vapid      config.VAPIDEnv
	repo       pushsubscription.Repository
	httpClient webpush.HTTPClient
}

type SenderOption func(*Sender)

func WithHTTPClient(c webpush.HTTPClient) SenderOption {
	return func(s *Sender) { s.httpClient = c }
}

func NewSender(vapid config.VAPIDEnv, repo pushsubscription.Repository, opts ...SenderOption) *Sender {
	s := &Sender{vapid: vapid, repo: repo}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sender) Enabled() bool {
	return s.vapid.VAPIDPublicKey != "" && s.vapid.VAPIDPrivateKey != ""
}

// SendToAll delivers payload to every registered subscription and returns
// how many accepted it. Subscriptions the push service reports as gone are
// removed.
func (s *Sender) SendToAll(ctx context.Context, payload Payload) int {
	if !s.Enabled() {
		slog.WarnContext(ctx, "push notification: VAPID keys not configured, skipping")
		return 0
	}
	subs, err := s.repo.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "push notification: failed to list subscriptions", "error", err)
		return 0
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "push notification: failed to marshal payload", "error", err)
		return 0
	}
	delivered := 0
	for _, sub := range subs {
		if s.send(ctx, sub, data) {
			delivered++
		}
	}
	return delivered
}

func (s *Sender) send(ctx context.Context, sub *pushsubscription.Subscription, data []byte) bool {
	resp, err := webpush.SendNotificationWithContext(ctx, data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		HTTPClient:      s.httpClient,
		VAPIDPublicKey:  s.vapid.VAPIDPublicKey,
		VAPIDPrivateKey: s.vapid.VAPIDPrivateKey,
		Subscriber:      s.vapid.VAPIDContact,
		TTL:             notificationTTL,
	})
	if err != nil {
		slog.ErrorContext(ctx, "push notification: failed to send", "endpoint", sub.Endpoint, "error", err)
		return false
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		slog.InfoContext(ctx, "push notification: subscription expired, removing", "endpoint", sub.Endpoint)
		if err := s.repo.Delete(ctx, sub.ID); err != nil {
			slog.ErrorContext(ctx, "push notification: failed to delete expired subscription", "id", sub.ID, "error", err)
		}
		return false
	case resp.StatusCode >= 400:
		slog.WarnContext(ctx, "push notification: unexpected status", "endpoint", sub.Endpoint, "status", resp.StatusCode)
		return false
	}
	return true
}
