package skill

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

func (s *Server) Routes(r chi.Router) {
	r.Get("/skills", s.list)
	r.Get("/skills/{id}", s.get)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	skills, err := s.repo.List(ctx, r.URL.Query().Get("business_area"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if skills == nil {
		skills = []*Skill{}
	}
	cerr.SetJSONResponse(ctx, map[string]any{"skills": skills})
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sk, err := s.repo.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, sk)
}
