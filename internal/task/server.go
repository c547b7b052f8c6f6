package task

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ascentxr/opsdeck/internal/lifecycle"
	"github.com/ascentxr/opsdeck/pkg/cerr"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type Server struct {
	service *Service
}

func NewServer(service *Service) *Server {
	return &Server{service: service}
}

type ListResponse struct {
	Tasks  []*Task `json:"tasks"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

type ReviewRequest struct {
	Action     string `json:"action" validate:"required,oneof=approved rejected"`
	ReviewedBy string `json:"reviewed_by,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

func (s *Server) Routes(r chi.Router) {
	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", s.list)
		r.Post("/", s.create)
		r.Get("/{id}", s.get)
		r.Post("/{id}/review", s.review)
		r.Post("/{id}/retry", s.retry)
	})
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var in CreateInput
	if err := cerr.DecodeRequest(r, &in); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	t, err := s.service.Create(ctx, in)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, t)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	f := Filter{
		AgentID:      q.Get("agent_id"),
		BusinessArea: q.Get("business_area"),
		Limit:        defaultPageSize,
	}
	if v := q.Get("status"); v != "" {
		st, err := lifecycle.ParseTaskStatus(v)
		if err != nil {
			cerr.SetJSONError(ctx, lifecycle.APIError(err))
			return
		}
		f.Status = st
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit"), defaultPageSize); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	f.Limit = min(f.Limit, maxPageSize)
	if f.Offset, err = intParam(q.Get("offset"), 0); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	tasks, total, err := s.service.List(ctx, f)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if tasks == nil {
		tasks = []*Task{}
	}
	cerr.SetJSONResponse(ctx, ListResponse{Tasks: tasks, Total: total, Limit: f.Limit, Offset: f.Offset})
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := s.service.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, t)
}

func (s *Server) review(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ReviewRequest
	if err := cerr.DecodeRequest(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	t, err := s.service.Review(ctx, chi.URLParam(r, "id"), lifecycle.ReviewAction(req.Action), req.ReviewedBy, req.Notes)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, t)
}

func (s *Server) retry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := s.service.Retry(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, t)
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, cerr.NewError(cerr.InvalidArgument, "invalid pagination parameter", err)
	}
	return n, nil
}
