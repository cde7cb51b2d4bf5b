package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/nijaru/yt-tldr/config"
	"github.com/nijaru/yt-tldr/middleware"
	"github.com/nijaru/yt-tldr/models"
	"github.com/nijaru/yt-tldr/static"
	"github.com/nijaru/yt-tldr/worker"
	"github.com/sirupsen/logrus"
)

// Dispatcher accepts summarization work, bounded by the worker pool.
type Dispatcher interface {
	Submit(ctx context.Context, req models.SummarizationRequest) (*models.SummarizationResult, error)
	Stats() worker.Stats
}

type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

type RunLister interface {
	RecentRuns(ctx context.Context, limit int) ([]models.Run, error)
}

type Server struct {
	config     *config.Config
	dispatcher Dispatcher
	models     ModelLister
	runs       RunLister
	logger     *logrus.Logger
	server     *http.Server
	startTime  time.Time
}

type ServerOption func(*Server)

func NewServer(cfg *config.Config, dispatcher Dispatcher, opts ...ServerOption) *Server {
	s := &Server{
		config:     cfg,
		dispatcher: dispatcher,
		logger:     logrus.StandardLogger(),
		startTime:  time.Now(),
	}

	for _, opt := range opts {
		opt(s)
	}

	// No write timeout: local inference can legitimately take minutes.
	s.server = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.routes(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	return s
}

func WithModelLister(lister ModelLister) ServerOption {
	return func(s *Server) {
		s.models = lister
	}
}

func WithRunLister(lister RunLister) ServerOption {
	return func(s *Server) {
		s.runs = lister
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func (s *Server) Start() error {
	s.logger.WithField("addr", s.server.Addr).Info("Starting server")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	return s.server.Shutdown(ctx)
}

// Close drops all connections, canceling in-flight requests.
func (s *Server) Close() error {
	return s.server.Close()
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	api := s.rateLimit()
	mux.Handle("POST /api/summarize", api(http.HandlerFunc(s.handleSummarize)))
	mux.Handle("GET /api/models", api(http.HandlerFunc(s.handleModels)))
	mux.Handle("GET /api/runs", api(http.HandlerFunc(s.handleRuns)))

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /", static.Handler())

	return middleware.Chain(mux,
		middleware.RequestID(),
		middleware.Logging(s.logger),
		middleware.Recovery(s.logger),
	)
}

// rateLimit returns the API rate limiter, or a pass-through when it is disabled.
func (s *Server) rateLimit() func(http.Handler) http.Handler {
	if s.config.RateLimitRPM <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.NewRateLimiter(s.config.RateLimitRPM, s.config.RateLimitBurst).Middleware
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.dispatcher.Stats()
	status := map[string]any{
		"status":   "ok",
		"version":  s.config.Version,
		"uptime":   time.Since(s.startTime).String(),
		"workers":  stats.Workers,
		"active":   stats.Active,
		"queued":   stats.Queued,
		"capacity": stats.Capacity,
	}

	if s.config.Debug {
		status["goroutines"] = runtime.NumGoroutine()
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		status["memory"] = map[string]any{
			"allocated": m.Alloc,
			"total":     m.TotalAlloc,
			"system":    m.Sys,
			"gc_cycles": m.NumGC,
		}
	}

	respondJSON(w, r, http.StatusOK, status)
}
