package taskupdate

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket streams task updates as JSON text frames. The agent_id and
// task_ids query parameters narrow the stream like SubscribeRequest does.
func (s *Server) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	filter := SubscribeRequest{AgentID: r.URL.Query().Get("agent_id")}
	if v := r.URL.Query().Get("task_ids"); v != "" {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				filter.TaskIDs = append(filter.TaskIDs, id)
			}
		}
	}

	subID, ch := s.bus.Subscribe(subscriberBuffer)
	defer s.bus.Unsubscribe(subID)

	// the read loop only notices the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case u, ok := <-ch:
			if !ok {
				return
			}
			if !filter.Match(u) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(u); err != nil {
				slog.DebugContext(ctx, "websocket client gone", "error", err)
				return
			}
		}
	}
}
