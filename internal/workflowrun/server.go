package workflowrun

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ascentxr/opsdeck/internal/lifecycle"
	"github.com/ascentxr/opsdeck/pkg/cerr"
)

type Server struct {
	service *Service
}

func NewServer(service *Service) *Server {
	return &Server{service: service}
}

func (s *Server) Routes(r chi.Router) {
	r.Post("/workflows/{id}/runs", s.start)
	r.Route("/workflow-runs", func(r chi.Router) {
		r.Get("/", s.list)
		r.Get("/{id}", s.get)
		r.Post("/{id}/advance", s.command(s.service.Advance))
		r.Post("/{id}/cancel", s.command(s.service.Cancel))
		r.Post("/{id}/pause", s.command(s.service.Pause))
		r.Post("/{id}/resume", s.command(s.service.Resume))
	})
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var in StartInput
	if err := cerr.DecodeRequest(r, &in); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	run, err := s.service.Start(ctx, chi.URLParam(r, "id"), in)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, run)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f := Filter{WorkflowID: r.URL.Query().Get("workflow_id")}
	if v := r.URL.Query().Get("status"); v != "" {
		st, err := lifecycle.ParseRunStatus(v)
		if err != nil {
			cerr.SetJSONError(ctx, lifecycle.APIError(err))
			return
		}
		f.Status = st
	}
	runs, err := s.service.List(ctx, f)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if runs == nil {
		runs = []*Run{}
	}
	cerr.SetJSONResponse(ctx, map[string]any{"runs": runs})
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	run, err := s.service.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, run)
}

func (s *Server) command(fn func(context.Context, string) (*Run, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		run, err := fn(ctx, chi.URLParam(r, "id"))
		if err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
		cerr.SetJSONResponse(ctx, run)
	}
}
