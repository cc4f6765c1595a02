package services

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/intervue/backend/repository"
	ws "github.com/intervue/backend/websocket"
)

// Server holds all server dependencies
type Server struct {
	config *Config
	db     *repository.Database
	repo   *repository.GORMRepository

	metrics            *Metrics
	geminiService      *GeminiService
	analyticsBuilder   *AnalyticsBuilder
	analyticsGateway   *AnalyticsGateway
	questionGenerator  *QuestionGenerator
	registry           *SessionRegistry
	events             EventPublisher
	amqpPublisher      *AMQPPublisher
	authService        *AuthService
	interviewEndpoints *InterviewEndpoints
	sessionSocket      *SessionSocket
	wsHub              *ws.Hub
	upgrader           websocket.Upgrader
}

// NewServer creates a new server instance
func NewServer(config *Config) *Server {
	return &Server{
		config: config,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return CheckOrigin(r, config.WebSocket.AllowedOrigins)
			},
		},
	}
}

// SetDatabase sets the database connection. db may be nil when the repository
// is backed by something other than the pgx pool.
func (s *Server) SetDatabase(db *repository.Database, repo *repository.GORMRepository) {
	s.db = db
	s.repo = repo
}

// InitializeServices initializes all server services
func (s *Server) InitializeServices(ctx context.Context) error {
	if s.repo == nil {
		return errors.New("database repository is required")
	}
	if s.config.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}

	if s.config.Metrics.Enabled {
		s.metrics = NewDefaultMetrics()
	}

	var ai TextGenerator
	if s.config.AI.GeminiAPIKey != "" {
		gemini, err := NewGeminiService(ctx, s.config.AI.GeminiAPIKey, s.config.AI.Model)
		if err != nil {
			slog.Error("Failed to initialize Gemini service, continuing without AI", "error", err)
		} else {
			s.geminiService = gemini
			ai = gemini
			slog.Info("Gemini service initialized", "model", s.config.AI.Model)
		}
	} else {
		slog.Warn("Gemini API key not configured, analytics will use the deterministic fallback")
	}

	s.analyticsBuilder = NewAnalyticsBuilder(ai, s.config.AI.Timeout, s.config.AI.Temperature, s.metrics)
	s.analyticsGateway = NewAnalyticsGateway(s.repo, nil)
	s.questionGenerator = NewQuestionGenerator(ai, s.config.AI.Timeout, s.metrics)

	s.events = NoopPublisher{}
	if s.config.AMQP.URL != "" {
		publisher, err := NewAMQPPublisher(s.config.AMQP.URL, s.config.AMQP.Exchange, s.metrics)
		if err != nil {
			slog.Error("Failed to connect to AMQP broker, completion events disabled", "error", err)
		} else {
			s.amqpPublisher = publisher
			s.events = publisher
		}
	}

	s.registry = NewSessionRegistry(s.config.Session.IdleTimeout, s.config.Session.SweepInterval, s.metrics)
	s.authService = NewAuthService(s.config.Auth.JWTSecret)

	s.wsHub = ws.NewHub()
	go s.wsHub.Run()

	s.sessionSocket = NewSessionSocket(SessionSocketOptions{
		Repo:            s.repo,
		Registry:        s.registry,
		Hub:             s.wsHub,
		Upgrader:        s.upgrader,
		Analytics:       s.analyticsBuilder,
		Gateway:         s.analyticsGateway,
		Events:          s.events,
		Metrics:         s.metrics,
		InterviewerName: s.config.Session.InterviewerName,
	})
	s.interviewEndpoints = NewInterviewEndpoints(s.repo, s.questionGenerator, s.analyticsGateway, s.registry, s.sessionSocket)

	slog.Info("Services initialized")
	return nil
}

// SetupRoutes configures all HTTP routes
func (s *Server) SetupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.healthHandler)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.apiV1Handler)

		r.Group(func(r chi.Router) {
			r.Use(s.authService.Middleware)
			s.interviewEndpoints.RegisterRoutes(r)
		})
	})

	return r
}

// Start starts the HTTP server and blocks until SIGINT or SIGTERM.
func (s *Server) Start() {
	port := s.config.Server.Port
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: s.SetupRoutes(),
	}

	go func() {
		slog.Info("Starting server", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	s.Shutdown()

	slog.Info("Server exited")
}

// Shutdown closes live sessions and the broker connection.
func (s *Server) Shutdown() {
	if s.registry != nil {
		s.registry.Shutdown()
	}
	if s.amqpPublisher != nil {
		if err := s.amqpPublisher.Close(); err != nil {
			slog.Error("Failed to close AMQP connection", "error", err)
		}
	}
}

// CheckOrigin validates the origin of WebSocket connections to prevent CSRF attacks
func CheckOrigin(r *http.Request, allowedOriginsStr string) bool {
	origin := r.Header.Get("Origin")

	// If no allowed origins are configured, deny all requests
	if allowedOriginsStr == "" {
		slog.Warn("WebSocket connection rejected: no allowed origins configured", "origin", origin)
		return false
	}

	for _, allowed := range strings.Split(allowedOriginsStr, ",") {
		if strings.TrimSpace(allowed) == origin {
			slog.Info("WebSocket connection accepted", "origin", origin)
			return true
		}
	}

	slog.Warn("WebSocket connection rejected: origin not allowed", "origin", origin, "allowed_origins", allowedOriginsStr)
	return false
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "not configured"

	var err error
	switch {
	case s.db != nil:
		err = s.db.Ping(r.Context())
	case s.repo != nil:
		err = s.repo.Ping(r.Context())
	}
	if s.db != nil || s.repo != nil {
		if err != nil {
			dbStatus = "down"
			status = "degraded"
		} else {
			dbStatus = "up"
		}
	}

	sessions := 0
	if s.registry != nil {
		sessions = s.registry.Count()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          status,
		"database":        dbStatus,
		"active_sessions": sessions,
	})
	slog.Debug("Health check", "status", status, "database", dbStatus)
}

func (s *Server) apiV1Handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "API v1", "version": "1.0.0"})
}
