package taskupdate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"connectrpc.com/connect"

	"github.com/ascentxr/opsdeck/internal/eventbus"
)

// Client opens update streams against a server.
type Client struct {
	client *connect.Client[SubscribeRequest, eventbus.TaskUpdate]
	apiKey string
}

func NewClient(httpClient connect.HTTPClient, baseURL, apiKey string, opts ...connect.ClientOption) *Client {
	opts = append(opts, connect.WithCodec(jsonCodec{}))
	return &Client{
		client: connect.NewClient[SubscribeRequest, eventbus.TaskUpdate](httpClient, strings.TrimRight(baseURL, "/")+SubscribeProcedure, opts...),
		apiKey: apiKey,
	}
}

// Stream is an open subscription.
type Stream struct {
	stream *connect.ServerStreamForClient[eventbus.TaskUpdate]
}

// Subscribe returns once the server has registered the subscription, so
// every update published after it returns is delivered.
func (c *Client) Subscribe(ctx context.Context, req SubscribeRequest) (*Stream, error) {
	r := connect.NewRequest(&req)
	if c.apiKey != "" {
		r.Header().Set("X-API-Key", c.apiKey)
	}
	s, err := c.client.CallServerStream(ctx, r)
	if err != nil {
		return nil, err
	}
	if !s.Receive() {
		err := s.Err()
		_ = s.Close()
		if err == nil {
			err = errors.New("update stream closed before subscribing")
		}
		return nil, err
	}
	if ev := s.Msg().Event; ev != SubscribedEvent {
		_ = s.Close()
		return nil, fmt.Errorf("update stream opened with %q instead of %q", ev, SubscribedEvent)
	}
	return &Stream{stream: s}, nil
}

// Next blocks for the next update. It returns false when the stream ends;
// Err then tells why.
func (s *Stream) Next() (*eventbus.TaskUpdate, bool) {
	if !s.stream.Receive() {
		return nil, false
	}
	return s.stream.Msg(), true
}

func (s *Stream) Err() error { return s.stream.Err() }

func (s *Stream) Close() error { return s.stream.Close() }
