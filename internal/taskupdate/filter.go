package taskupdate

import (
	"slices"

	"github.com/ascentxr/opsdeck/internal/eventbus"
)

// SubscribeRequest narrows the stream. Empty fields match everything.
type SubscribeRequest struct {
	AgentID string   `json:"agent_id,omitempty"`
	TaskIDs []string `json:"task_ids,omitempty"`
}

func (r *SubscribeRequest) Match(u *eventbus.TaskUpdate) bool {
	if r.AgentID != "" && u.AgentID != r.AgentID {
		return false
	}
	if len(r.TaskIDs) > 0 && !slices.Contains(r.TaskIDs, u.TaskID) {
		return false
	}
	return true
}
