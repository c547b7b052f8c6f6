package taskupdate

import (
	"context"
	"net/http"
	"time"

	"connectrpc.com/connect"

	"github.com/ascentxr/opsdeck/internal/eventbus"
)

// SubscribedEvent is the first message of every stream. It is sent once the
// subscription is registered on the bus.
const SubscribedEvent = "subscribed"

const (
	ServiceName        = "opsdeck.v1.TaskUpdateService"
	SubscribeProcedure = "/" + ServiceName + "/Subscribe"
	subscriberBuffer   = 64
)

type Server struct {
	bus *eventbus.Bus
}

func NewServer(bus *eventbus.Bus) *Server {
	return &Server{bus: bus}
}

// Handler returns the connect handler for the update stream.
func (s *Server) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append(opts, connect.WithCodec(jsonCodec{}))
	return SubscribeProcedure, connect.NewServerStreamHandler(SubscribeProcedure, s.Subscribe, opts...)
}

func (s *Server) Subscribe(ctx context.Context, req *connect.Request[SubscribeRequest], stream *connect.ServerStream[eventbus.TaskUpdate]) error {
	subID, ch := s.bus.Subscribe(subscriberBuffer)
	defer s.bus.Unsubscribe(subID)

	if err := stream.Send(&eventbus.TaskUpdate{ID: subID, Event: SubscribedEvent, At: time.Now()}); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-ch:
			if !ok {
				return nil
			}
			if !req.Msg.Match(u) {
				continue
			}
			if err := stream.Send(u); err != nil {
				return err
			}
		}
	}
}
