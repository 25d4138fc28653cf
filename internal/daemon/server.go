package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"

	"github.com/felixgeelhaar/ndole/internal/config"
	"github.com/felixgeelhaar/ndole/internal/domain"
	"github.com/felixgeelhaar/ndole/internal/metrics"
	"github.com/felixgeelhaar/ndole/internal/progression"
)

// NotificationLister reads a user's persisted notifications
type NotificationLister interface {
	List(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
}

// Server represents the Ndolé daemon HTTP server
type Server struct {
	cfg     *config.LocalConfig
	server  *http.Server
	router  *http.ServeMux
	handler http.Handler
	version string
	clock   func() time.Time

	// Services
	service       progression.ProgressionService
	catalog       progression.Catalog
	notifications NotificationLister
	metrics       *metrics.Metrics
	rateLimit     ratelimit.RateLimiter
	storeState    func() string
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	Config        *config.LocalConfig
	Service       progression.ProgressionService
	Catalog       progression.Catalog
	Notifications NotificationLister // optional
	Metrics       *metrics.Metrics   // optional; enables /metrics
	StoreState    func() string      // optional circuit breaker state for /v1/status
	Version       string
}

// NewServer creates a new daemon server
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Service == nil || cfg.Catalog == nil {
		return nil, fmt.Errorf("daemon: service and catalog are required")
	}
	if cfg.Config == nil {
		cfg.Config = config.DefaultLocalConfig()
	}

	s := &Server{
		cfg:           cfg.Config,
		router:        http.NewServeMux(),
		version:       cfg.Version,
		clock:         time.Now,
		service:       cfg.Service,
		catalog:       cfg.Catalog,
		notifications: cfg.Notifications,
		metrics:       cfg.Metrics,
		storeState:    cfg.StoreState,
	}

	if perMinute := cfg.Config.Resilience.RateLimitPerMinute; perMinute > 0 {
		burst := cfg.Config.Resilience.RateLimitBurst
		if burst <= 0 {
			burst = perMinute
		}
		s.rateLimit = ratelimit.New(&ratelimit.Config{
			Rate:     perMinute,
			Burst:    burst,
			Interval: time.Minute,
		})
	}

	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Config.Daemon.Bind, cfg.Config.Daemon.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes and the middleware chain
func (s *Server) setupRoutes() {
	// Health & status
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("GET /v1/status", s.handleStatus)

	// Catalog
	s.router.HandleFunc("GET /v1/catalog", s.handleCatalog)
	s.router.HandleFunc("GET /v1/catalog/levels/{id}", s.handleGetLevel)
	s.router.HandleFunc("GET /v1/catalog/lessons/{id}", s.handleGetLesson)
	s.router.HandleFunc("GET /v1/achievements", s.handleAchievements)

	// Users
	s.router.HandleFunc("GET /v1/users/{id}/progress", s.handleProgress)
	s.router.HandleFunc("POST /v1/users/{id}/completions", s.handleCompletion)
	s.router.HandleFunc("GET /v1/users/{id}/lessons/{lesson}/unlocked", s.handleUnlocked)
	s.router.HandleFunc("GET /v1/users/{id}/notifications", s.handleNotifications)

	var inner http.Handler = s.router
	if s.metrics != nil {
		s.router.Handle("GET /metrics", s.metrics.Handler())
		// Innermost so it sees the pattern the mux stamped on the request
		inner = s.metrics.Middleware(inner)
	}
	s.handler = recoveryMiddleware(correlationIDMiddleware(loggingMiddleware(inner)))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("starting ndole daemon",
		"addr", s.server.Addr,
		"storage", s.cfg.Storage.Backend,
		"cache", s.cfg.Cache.Enabled,
		"queue", s.cfg.Queue.Enabled,
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down daemon...")
	return s.server.Shutdown(ctx)
}

// Handler implementations

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": s.clock().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	levels := s.catalog.ListLevels()
	lessons := 0
	for _, l := range levels {
		lessons += len(l.Lessons)
	}

	store := map[string]interface{}{
		"backend": s.cfg.Storage.Backend,
	}
	if s.storeState != nil {
		store["breaker"] = s.storeState()
	}

	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":  "running",
		"version": s.version,
		"storage": store,
		"cache":   s.cfg.Cache.Enabled,
		"queue":   s.cfg.Queue.Enabled,
		"catalog": map[string]int{
			"levels":  len(levels),
			"lessons": lessons,
		},
	})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		s.jsonResponse(w, http.StatusOK, map[string]interface{}{
			"levels": s.catalog.ListLevels(),
		})
		return
	}

	view, err := s.service.CatalogView(r.Context(), userID)
	if err != nil {
		s.serviceError(w, "failed to build catalog view", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, view)
}

func (s *Server) handleGetLevel(w http.ResponseWriter, r *http.Request) {
	level, err := s.catalog.GetLevel(r.PathValue("id"))
	if err != nil {
		s.serviceError(w, "level not found", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, level)
}

func (s *Server) handleGetLesson(w http.ResponseWriter, r *http.Request) {
	lesson, err := s.catalog.GetLesson(r.PathValue("id"))
	if err != nil {
		s.serviceError(w, "lesson not found", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, lesson)
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"achievements": domain.Achievements(),
	})
}

// progressResponse is a snapshot plus its derived level progress
type progressResponse struct {
	*domain.Snapshot
	Progress domain.LevelProgress `json:"progress"`
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.GetSnapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		s.serviceError(w, "failed to get progress", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, progressResponse{Snapshot: snap, Progress: snap.Progress()})
}

// completionRequest is the body of POST /v1/users/{id}/completions
type completionRequest struct {
	LessonID   string    `json:"lesson_id"`
	Stage      string    `json:"stage"`
	QuizScore  *int      `json:"quiz_score,omitempty"`
	OccurredAt time.Time `json:"occurred_at,omitempty"`
}

func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	if s.rateLimit != nil && !s.rateLimit.Allow(r.Context(), userID) {
		s.jsonError(w, http.StatusTooManyRequests, "rate limit exceeded", nil)
		return
	}

	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	stage, err := domain.ParseStageType(req.Stage)
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid stage", err)
		return
	}

	occurred := req.OccurredAt
	if occurred.IsZero() {
		occurred = s.clock()
	}

	cs, err := s.service.HandleCompletion(r.Context(), domain.CompletionEvent{
		UserID:     userID,
		LessonID:   req.LessonID,
		Stage:      stage,
		QuizScore:  req.QuizScore,
		OccurredAt: occurred,
	})
	if err != nil {
		s.serviceError(w, "failed to record completion", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, cs)
}

func (s *Server) handleUnlocked(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	lesson, err := s.catalog.GetLesson(r.PathValue("lesson"))
	if err != nil {
		s.serviceError(w, "lesson not found", err)
		return
	}

	snap, err := s.service.GetSnapshot(r.Context(), userID)
	if errors.Is(err, domain.ErrNotFound) {
		snap, err = domain.NewSnapshot(userID, s.clock()), nil
	}
	if err != nil {
		s.serviceError(w, "failed to get progress", err)
		return
	}

	ok, err := s.service.IsUnlocked(lesson, snap)
	if err != nil {
		s.serviceError(w, "failed to evaluate unlock", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"user_id":   userID,
		"lesson_id": lesson.ID,
		"unlocked":  ok,
	})
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.jsonError(w, http.StatusBadRequest, "invalid limit", err)
			return
		}
		limit = n
	}

	list := []domain.Notification{}
	if s.notifications != nil {
		var err error
		list, err = s.notifications.List(r.Context(), userID, limit)
		if err != nil {
			s.jsonError(w, http.StatusInternalServerError, "failed to list notifications", err)
			return
		}
	}

	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"user_id":       userID,
		"notifications": list,
	})
}

// serviceError maps domain error kinds onto HTTP status codes
func (s *Server) serviceError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.jsonError(w, http.StatusNotFound, message, err)
	case errors.Is(err, domain.ErrInvalidArgument):
		s.jsonError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, domain.ErrConcurrencyConflict):
		s.jsonError(w, http.StatusConflict, message, err)
	case errors.Is(err, domain.ErrPersistence):
		s.jsonError(w, http.StatusServiceUnavailable, message, err)
	default:
		s.jsonError(w, http.StatusInternalServerError, message, err)
	}
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.jsonResponse(w, status, response)
}
