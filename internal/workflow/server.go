package workflow

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ascentxr/opsdeck/pkg/cerr"
)

type Server struct {
	repo Repository
}

func NewServer(repo Repository) *Server {
	return &Server{repo: repo}
}

// Routes registers the read-only definition endpoints. Starting a run is
// served by the workflowrun package.
func (s *Server) Routes(r chi.Router) {
	r.Get("/workflows", s.list)
	r.Get("/workflows/{id}", s.get)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wfs, err := s.repo.List(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if wfs == nil {
		wfs = []*Workflow{}
	}
	cerr.SetJSONResponse(ctx, map[string]any{"workflows": wfs})
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wf, err := s.repo.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, wf)
}
