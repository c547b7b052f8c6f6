package engine

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ascentxr/opsdeck/pkg/cerr"
)

type Server struct {
	ingestor *Ingestor
}

func NewServer(ingestor *Ingestor) *Server {
	return &Server{ingestor: ingestor}
}

type ClaimRequest struct {
	WorkerID string `json:"worker_id" validate:"required"`
}

type ClaimNextRequest struct {
	WorkerID string   `json:"worker_id" validate:"required"`
	AgentIDs []string `json:"agent_ids,omitempty"`
}

type HeartbeatRequest struct {
	AgentIDs           []string `json:"agent_ids,omitempty"`
	MaxConcurrentTasks int      `json:"max_concurrent_tasks" validate:"min=0"`
	ActiveTasks        int      `json:"active_tasks" validate:"min=0"`
}

func (s *Server) Routes(r chi.Router) {
	r.Route("/engine", func(r chi.Router) {
		r.Post("/tasks/{id}/report", s.report)
		r.Post("/tasks/{id}/claim", s.claim)
		r.Post("/claim-next", s.claimNext)
		r.Get("/workers", s.workers)
		r.Post("/workers/{id}/heartbeat", s.heartbeat)
	})
}

func (s *Server) report(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ReportRequest
	if err := cerr.DecodeRequest(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	t, err := s.ingestor.Report(ctx, chi.URLParam(r, "id"), req)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"task_id": t.ID, "status": t.Status, "seq": t.Revision})
}

func (s *Server) claim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ClaimRequest
	if err := cerr.DecodeRequest(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	res, err := s.ingestor.Claim(ctx, chi.URLParam(r, "id"), req.WorkerID)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, res)
}

func (s *Server) claimNext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ClaimNextRequest
	if err := cerr.DecodeRequest(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	res, err := s.ingestor.ClaimNext(ctx, req.WorkerID, req.AgentIDs)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, res)
}

func (s *Server) workers(w http.ResponseWriter, r *http.Request) {
	cerr.SetJSONResponse(r.Context(), map[string]any{"workers": s.ingestor.Workers()})
}

func (s *Server) heartbeat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req HeartbeatRequest
	if err := cerr.DecodeRequest(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	s.ingestor.Heartbeat(Worker{
		ID:                 chi.URLParam(r, "id"),
		AgentIDs:           req.AgentIDs,
		MaxConcurrentTasks: req.MaxConcurrentTasks,
		ActiveTasks:        req.ActiveTasks,
	})
	cerr.SetJSONResponse(ctx, map[string]any{"ok": true})
}
