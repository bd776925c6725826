package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"dubcast/internal/config"
	"dubcast/internal/logging"
	"dubcast/internal/pipeline"
	"dubcast/internal/progress"
	"dubcast/internal/queue"
	"dubcast/internal/scheduler"
	"dubcast/internal/services"
	"dubcast/internal/stage"
)

// Server wires the HTTP surface onto the scheduler, store, and progress hub.
type Server struct {
	cfg      *config.Config
	store    *queue.Store
	sched    *scheduler.Scheduler
	actions  *pipeline.Actions
	hub      *progress.Hub
	health   []stage.HealthChecker
	logger   *slog.Logger
	router   *chi.Mux
	upgrader websocket.Upgrader
}

// Options configures a Server.
type Options struct {
	Config    *config.Config
	Store     *queue.Store
	Scheduler *scheduler.Scheduler
	Actions   *pipeline.Actions
	Hub       *progress.Hub
	Health    []stage.HealthChecker
	Logger    *slog.Logger
}

// NewServer constructs the HTTP layer and registers all routes.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		cfg:     opts.Config,
		store:   opts.Store,
		sched:   opts.Scheduler,
		actions: opts.Actions,
		hub:     opts.Hub,
		health:  opts.Health,
		logger:  logger.With(logging.String(logging.FieldComponent, "api")),
		router:  chi.NewRouter(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.registerRoutes()
	return s
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/api/health", s.handleHealth)

	s.router.Route("/api/jobs", func(r chi.Router) {
		r.Post("/", s.handleSubmit)
		r.Get("/", s.handleList)
		r.Post("/reorder", s.handleReorder)

		r.Route("/{jobID}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Delete("/", s.handleDelete)
			r.Patch("/metadata", s.handleMetadata)
			r.Post("/speakers", s.handleSpeakers)
			r.Get("/stream", s.handleStream)
			r.Get("/ws", s.handleWebsocket)
			r.Get("/artifacts/{name}", s.handleArtifact)
			r.Post("/actions/summary-audio", s.handleSummaryAudio)
			r.Post("/actions/merge", s.handleMerge)
			r.Post("/actions/regenerate", s.handleRegenerate)
		})
	})

	s.router.Route("/api/settings", func(r chi.Router) {
		r.Get("/", s.handleSettingsGet)
		r.Patch("/", s.handleSettingsPatch)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	details := services.Details(err)
	s.writeJSON(w, statusFor(err), map[string]string{"error": details.Message})
}

// statusFor maps the service error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrQueueFull):
		return http.StatusConflict
	case errors.Is(err, services.ErrSpeakerInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (*queue.Job, bool) {
	jobID := chi.URLParam(r, "jobID")
	job, err := s.store.GetByID(r.Context(), jobID)
	if err != nil {
		s.writeError(w, services.Wrap(services.ErrPersistence, "", "load job", err.Error(), err))
		return nil, false
	}
	if job == nil {
		s.writeError(w, services.Wrap(services.ErrNotFound, "", "", "job not found", nil))
		return nil, false
	}
	return job, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r, 5*time.Second)
	defer cancel()

	response := HealthResponse{Status: "ok"}
	for _, checker := range s.health {
		health := checker.HealthCheck(ctx)
		response.Services = append(response.Services, ServiceHealth{
			Name:   health.Name,
			Ready:  health.Ready,
			Detail: health.Detail,
		})
		if !health.Ready {
			response.Status = "degraded"
		}
	}
	s.writeJSON(w, http.StatusOK, response)
}
