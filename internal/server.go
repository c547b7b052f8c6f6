package internal

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/ascentxr/opsdeck/internal/config"
	"github.com/ascentxr/opsdeck/internal/engine"
	"github.com/ascentxr/opsdeck/internal/pushnotification"
	"github.com/ascentxr/opsdeck/internal/skill"
	"github.com/ascentxr/opsdeck/internal/skillcalendar"
	"github.com/ascentxr/opsdeck/internal/task"
	"github.com/ascentxr/opsdeck/internal/taskupdate"
	"github.com/ascentxr/opsdeck/internal/workflow"
	"github.com/ascentxr/opsdeck/internal/workflowrun"
	"github.com/ascentxr/opsdeck/pkg/cerr"
	"github.com/ascentxr/opsdeck/pkg/clog"
)

const (
	healthPath    = "/health"
	metricsPath   = "/metrics"
	websocketPath = "/ws/task-updates"
)

type Server struct {
	server                 *http.Server
	env                    *config.Env
	taskServer             *task.Server
	skillServer            *skill.Server
	workflowServer         *workflow.Server
	workflowRunServer      *workflowrun.Server
	calendarServer         *skillcalendar.Server
	engineServer           *engine.Server
	pushNotificationServer *pushnotification.Server
	taskUpdateServer       *taskupdate.Server
	metricsHandler         http.Handler
}

func NewServer(
	env *config.Env,
	taskServer *task.Server,
	skillServer *skill.Server,
	workflowServer *workflow.Server,
	workflowRunServer *workflowrun.Server,
	calendarServer *skillcalendar.Server,
	engineServer *engine.Server,
	pushNotificationServer *pushnotification.Server,
	taskUpdateServer *taskupdate.Server,
	metricsHandler http.Handler,
) *Server {
	return &Server{
		env:                    env,
		taskServer:             taskServer,
		skillServer:            skillServer,
		workflowServer:         workflowServer,
		workflowRunServer:      workflowRunServer,
		calendarServer:         calendarServer,
		engineServer:           engineServer,
		pushNotificationServer: pushNotificationServer,
		taskUpdateServer:       taskUpdateServer,
		metricsHandler:         metricsHandler,
	}
}

// Handler assembles every surface behind the API key check: the JSON API
// under /api, the connect update stream, the websocket feed and health.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(
			clog.SlogChiMiddleware(),
			cerr.NewJSONResponseChiMiddleware(),
		)
		s.taskServer.Routes(r)
		s.skillServer.Routes(r)
		s.workflowServer.Routes(r)
		s.workflowRunServer.Routes(r)
		s.calendarServer.Routes(r)
		s.engineServer.Routes(r)
		if s.pushNotificationServer != nil {
			s.pushNotificationServer.Routes(r)
		}
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			cerr.SetNewJSONError(r.Context(), cerr.NotFound, "not found", nil)
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			cerr.SetNewJSONError(r.Context(), cerr.InvalidArgument, "method not allowed", nil)
		})
	})

	mux := http.NewServeMux()
	mux.Handle(healthPath, &HealthChecker{})
	mux.Handle("/api/", r)
	mux.HandleFunc(websocketPath, s.taskUpdateServer.ServeWebSocket)
	mux.Handle(grpchealth.NewHandler(grpchealth.NewStaticChecker(taskupdate.ServiceName)))
	mux.Handle(s.taskUpdateServer.Handler(connect.WithInterceptors(s.interceptors()...)))
	if s.metricsHandler != nil {
		mux.Handle(metricsPath, s.metricsHandler)
	}

	return h2c.NewHandler(cors.New(cors.Options{
		AllowedOrigins:   s.env.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.apiKeyMiddleware(mux)), &http2.Server{})
}

// ListenAndServe uses ctx as the base context of every request, so
// cancelling it also ends open update streams during shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type HealthChecker struct{}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) interceptors() []connect.Interceptor {
	return []connect.Interceptor{
		clog.NewSlogConnectInterceptor(clog.WithConnectFilter(clog.DefaultConnectHealthCheckFilter)),
		cerr.NewConvertConnectErrorInterceptor(),
	}
}

func unauthenticated(path string) bool {
	return path == healthPath || path == metricsPath || path == "/grpc.health.v1.Health/Check"
}

// apiKeyMiddleware accepts the key as X-API-Key or a bearer token. Browsers
// cannot set headers on a websocket upgrade, so that path also accepts the
// api_key query parameter.
func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if unauthenticated(r.URL.Path) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if apiKey == "" && r.URL.Path == websocketPath {
			apiKey = r.URL.Query().Get("api_key")
		}
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.env.APIKey)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
