package agentworker

import (
	"context"
	"net/http"
	"net/url"

	"github.com/ascentxr/opsdeck/internal/console"
	"github.com/ascentxr/opsdeck/internal/engine"
)

// EngineClient is the worker's view of the /engine surface.
type EngineClient struct {
	api *console.Client
}

func NewEngineClient(api *console.Client) *EngineClient {
	return &EngineClient{api: api}
}

func (c *EngineClient) Heartbeat(ctx context.Context, workerID string, req engine.HeartbeatRequest) error {
	return c.api.Do(ctx, "heartbeat", http.MethodPost, "engine/workers/"+url.PathEscape(workerID)+"/heartbeat", nil, req, nil)
}

func (c *EngineClient) ClaimNext(ctx context.Context, req engine.ClaimNextRequest) (*engine.ClaimResult, error) {
	var out engine.ClaimResult
	if err := c.api.Do(ctx, "claim next", http.MethodPost, "engine/claim-next", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *EngineClient) Report(ctx context.Context, taskID string, req engine.ReportRequest) error {
	return c.api.Do(ctx, "report", http.MethodPost, "engine/tasks/"+url.PathEscape(taskID)+"/report", nil, req, nil)
}
