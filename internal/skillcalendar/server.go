package skillcalendar

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ascentxr/opsdeck/internal/lifecycle"
	"github.com/ascentxr/opsdeck/pkg/cerr"
)

const (
	defaultUpcomingDays = 7
	maxUpcomingDays     = 90
)

type Server struct {
	service *Service
}

func NewServer(service *Service) *Server {
	return &Server{service: service}
}

type BulkRequest struct {
	Entries []EntryInput `json:"entries" validate:"required,min=1,max=500,dive"`
}

func (s *Server) Routes(r chi.Router) {
	r.Route("/skill-calendar", func(r chi.Router) {
		r.Get("/plans", s.listPlans)
		r.Post("/plans", s.createPlan)
		r.Get("/plans/{id}", s.getPlan)
		r.Put("/plans/{id}", s.updatePlan)
		r.Delete("/plans/{id}", s.archivePlan)
		r.Get("/plans/{id}/stats", s.planStats)

		r.Get("/entries", s.listEntries)
		r.Get("/entries/upcoming", s.upcoming)
		r.Post("/entries", s.createEntry)
		r.Post("/entries/bulk", s.bulkCreate)
		r.Get("/entries/{id}", s.getEntry)
		r.Put("/entries/{id}", s.updateEntry)
		r.Delete("/entries/{id}", s.deleteEntry)
		r.Post("/entries/{id}/execute", s.execute)
		r.Post("/entries/{id}/skip", s.skip)
	})
}

func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f := PlanFilter{BusinessArea: r.URL.Query().Get("business_area")}
	if v := r.URL.Query().Get("status"); v != "" {
		f.Status = PlanStatus(v)
		if !f.Status.Valid() {
			cerr.SetJSONError(ctx, lifecycle.APIError(&lifecycle.UnmappedStatusError{Table: "plan status", Value: v}))
			return
		}
	}
	plans, err := s.service.ListPlans(ctx, f)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if plans == nil {
		plans = []*Plan{}
	}
	cerr.SetJSONResponse(ctx, map[string]any{"plans": plans})
}

func (s *Server) createPlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var in PlanInput
	if err := cerr.DecodeRequest(r, &in); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	p, err := s.service.CreatePlan(ctx, in)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, p)
}

func (s *Server) getPlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := s.service.GetPlan(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, p)
}

func (s *Server) updatePlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var u PlanUpdate
	if err := cerr.DecodeRequest(r, &u); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	p, err := s.service.UpdatePlan(ctx, chi.URLParam(r, "id"), u)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, p)
}

func (s *Server) archivePlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := s.service.ArchivePlan(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, p)
}

func (s *Server) planStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := s.service.PlanStats(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, stats)
}

func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	f := EntryFilter{
		PlanID:    q.Get("plan_id"),
		Phase:     q.Get("phase"),
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
	}
	if v := q.Get("status"); v != "" {
		for _, raw := range strings.Split(v, ",") {
			st, err := lifecycle.ParseEntryStatus(strings.TrimSpace(raw))
			if err != nil {
				cerr.SetJSONError(ctx, lifecycle.APIError(err))
				return
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	entries, err := s.service.ListEntries(ctx, f)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	writeEntries(r, entries)
}

func (s *Server) upcoming(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	days := defaultUpcomingDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > maxUpcomingDays {
			cerr.SetJSONError(ctx, cerr.NewError(cerr.InvalidArgument, "days must be between 0 and 90", err))
			return
		}
		days = n
	}
	entries, err := s.service.Upcoming(ctx, days)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	writeEntries(r, entries)
}

func writeEntries(r *http.Request, entries []*Entry) {
	if entries == nil {
		entries = []*Entry{}
	}
	cerr.SetJSONResponse(r.Context(), map[string]any{"entries": entries})
}

func (s *Server) createEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var in EntryInput
	if err := cerr.DecodeRequest(r, &in); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	e, err := s.service.CreateEntry(ctx, in)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, e)
}

func (s *Server) bulkCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req BulkRequest
	if err := cerr.DecodeRequest(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	entries, err := s.service.BulkCreateEntries(ctx, req.Entries)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, map[string]any{"entries": entries, "count": len(entries)})
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	e, err := s.service.GetEntry(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, e)
}

func (s *Server) updateEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var u EntryUpdate
	if err := cerr.DecodeRequest(r, &u); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	e, err := s.service.UpdateEntry(ctx, chi.URLParam(r, "id"), u)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, e)
}

func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if err := s.service.DeleteEntry(ctx, id); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"id": id, "deleted": true})
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := s.service.Execute(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, res)
}

func (s *Server) skip(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	e, err := s.service.Skip(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, e)
}
