package pushnotification

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ascentxr/opsdeck/internal/config"
	"github.com/ascentxr/opsdeck/internal/pushsubscription"
	"github.com/ascentxr/opsdeck/pkg/cerr"
)

type Server struct {
	vapid  config.VAPIDEnv
	repo   pushsubscription.Repository
	sender *Sender
	now    func() time.Time
}

func NewServer(vapid config.VAPIDEnv, repo pushsubscription.Repository, sender *Sender) *Server {
	return &Server{vapid: vapid, repo: repo, sender: sender, now: time.Now}
}

type RegisterRequest struct {
	Endpoint  string `json:"endpoint" validate:"required,url"`
	P256dhKey string `json:"p256dh_key" validate:"required"`
	AuthKey   string `json:"auth_key" validate:"required"`
	Operator  string `json:"operator,omitempty"`
}

type UnregisterRequest struct {
	Endpoint string `json:"endpoint" validate:"required"`
}

type TestRequest struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

func (s *Server) Routes(r chi.Router) {
	r.Route("/push", func(r chi.Router) {
		r.Get("/vapid-public-key", s.getVAPIDPublicKey)
		r.Get("/subscriptions", s.listSubscriptions)
		r.Post("/subscriptions", s.register)
		r.Delete("/subscriptions", s.unregister)
		r.Post("/test", s.sendTest)
	})
}

func (s *Server) getVAPIDPublicKey(w http.ResponseWriter, r *http.Request) {
	if s.vapid.VAPIDPublicKey == "" {
		cerr.SetNewJSONError(r.Context(), cerr.FailedPrecondition, "push notifications are not configured", nil)
		return
	}
	cerr.SetJSONResponse(r.Context(), map[string]string{"public_key": s.vapid.VAPIDPublicKey})
}

func (s *Server) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.repo.List(r.Context())
	if err != nil {
		cerr.SetJSONError(r.Context(), err)
		return
	}
	if subs == nil {
		subs = []*pushsubscription.Subscription{}
	}
	cerr.SetJSONResponse(r.Context(), subs)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := cerr.DecodeRequest(r, &req); err != nil {
		cerr.SetJSONError(r.Context(), err)
		return
	}
	now := s.now()
	sub, err := s.repo.Register(r.Context(), &pushsubscription.Subscription{
		Endpoint:  req.Endpoint,
		P256dhKey: req.P256dhKey,
		AuthKey:   req.AuthKey,
		Operator:  req.Operator,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		cerr.SetJSONError(r.Context(), err)
		return
	}
	cerr.SetJSONResponseWithStatus(r.Context(), http.StatusCreated, sub)
}

func (s *Server) unregister(w http.ResponseWriter, r *http.Request) {
	var req UnregisterRequest
	if err := cerr.DecodeRequest(r, &req); err != nil {
		cerr.SetJSONError(r.Context(), err)
		return
	}
	if err := s.repo.DeleteByEndpoint(r.Context(), req.Endpoint); err != nil {
		cerr.SetJSONError(r.Context(), err)
		return
	}
	cerr.SetJSONResponse(r.Context(), map[string]any{"endpoint": req.Endpoint, "deleted": true})
}

func (s *Server) sendTest(w http.ResponseWriter, r *http.Request) {
	var req TestRequest
	if err := cerr.DecodeRequest(r, &req); err != nil {
		cerr.SetJSONError(r.Context(), err)
		return
	}
	if !s.sender.Enabled() {
		cerr.SetNewJSONError(r.Context(), cerr.FailedPrecondition, "push notifications are not configured", nil)
		return
	}
	p := Payload{Title: req.Title, Body: req.Body, Tag: "test"}
	if p.Title == "" {
		p.Title = "Test notification"
	}
	if p.Body == "" {
		p.Body = "Push notifications are working."
	}
	cerr.SetJSONResponse(r.Context(), map[string]int{"delivered": s.sender.SendToAll(r.Context(), p)})
}
