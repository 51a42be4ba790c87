// Package server exposes the research brief pipeline over HTTP. Brief
// generation is synchronous: POST /brief blocks until the pipeline finishes
// or fails, and the response code reflects how it failed.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/research-brief/internal/config"
	"github.com/sells-group/research-brief/internal/model"
	"github.com/sells-group/research-brief/internal/monitoring"
	"github.com/sells-group/research-brief/internal/store"
	"github.com/sells-group/research-brief/pkg/langsmith"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Runner is the pipeline surface the server depends on.
type Runner interface {
	Run(ctx context.Context, requestID string, req model.ResearchRequest) (*model.FinalBrief, error)
	BreakerStates() map[string]string
}

// Server wires the HTTP API around the pipeline, metrics registry, and store.
type Server struct {
	cfg     *config.Config
	runner  Runner
	monitor *monitoring.Service
	store   store.Store
	tracer  langsmith.Tracer
	limiter *rate.Limiter
}

// New creates a Server. The rate limiter is process-wide: one bucket shared
// across all clients.
func New(
	cfg *config.Config,
	runner Runner,
	monitor *monitoring.Service,
	st store.Store,
	tracer langsmith.Tracer,
) *Server {
	rpm := cfg.Server.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}
	burst := cfg.Server.BurstLimit
	if burst <= 0 {
		burst = 10
	}
	return &Server{
		cfg:     cfg,
		runner:  runner,
		monitor: monitor,
		store:   st,
		tracer:  tracer,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Post("/brief", s.handleCreateBrief)
		r.Get("/execution/{requestID}", s.handleGetExecution)
		r.Get("/briefs", s.handleListBriefs)
		r.Get("/briefs/{requestID}", s.handleGetBrief)
	})

	return r
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("starting server", zap.Int("port", s.cfg.Server.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	return nil
}
