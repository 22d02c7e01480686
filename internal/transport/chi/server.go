package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/indexsync/internal/domain"
	"github.com/kailas-cloud/indexsync/internal/metrics"
	healthuc "github.com/kailas-cloud/indexsync/internal/usecase/health"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Options tunes the HTTP surface.
type Options struct {
	APIKeys []string
	// MaxCount caps the search window size.
	MaxCount         int
	SnapshotTTL      time.Duration
	SnapshotCapacity int
}

// Server exposes the mutation hooks, reindexing and search over HTTP.
type Server struct {
	entities  EntityLoader
	hooks     Hooks
	reindexer Reindexer
	indexes   IndexLister
	search    Searcher
	health    HealthChecker
	snapshots *snapshotStore
	opts      Options
	logger    *zap.Logger

	reindexGroup  singleflight.Group
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	entities EntityLoader,
	hooks Hooks,
	reindexer Reindexer,
	indexes IndexLister,
	search Searcher,
	health HealthChecker,
	opts Options,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxCount <= 0 {
		opts.MaxCount = 100
	}
	if opts.SnapshotTTL <= 0 {
		opts.SnapshotTTL = 5 * time.Minute
	}
	if opts.SnapshotCapacity <= 0 {
		opts.SnapshotCapacity = 10000
	}
	s := &Server{
		entities:  entities,
		hooks:     hooks,
		reindexer: reindexer,
		indexes:   indexes,
		search:    search,
		health:    health,
		snapshots: newSnapshotStore(opts.SnapshotCapacity, opts.SnapshotTTL),
		opts:      opts,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrUnknownType, http.StatusNotFound, ErrorCodeUnknownType),
		sentinelHandler(domain.ErrUnknownIndex, http.StatusNotFound, ErrorCodeUnknownIndex),
		sentinelHandler(domain.ErrNotIndexed, http.StatusBadRequest, ErrorCodeNotIndexed),
		sentinelHandler(domain.ErrUnknownField, http.StatusBadRequest, ErrorCodeUnknownField),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, ErrorCodeNotFound),
		sentinelHandler(domain.ErrReindexInProgress, http.StatusConflict, ErrorCodeReindexConflict),
		sentinelHandler(domain.ErrConfig, http.StatusInternalServerError, ErrorCodeConfiguration),
	}
	return s
}

// Routes builds the router with the full middleware chain.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(s.opts.APIKeys))
	r.Use(metrics.Middleware())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrorCodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrorCodeBadRequest, "method not allowed")
	})

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/hooks/{type}/{key}", func(r chi.Router) {
			r.Post("/save", s.SaveHook)
			r.Post("/pre-delete", s.PreDeleteHook)
			r.Post("/post-delete", s.PostDeleteHook)
		})
		r.Post("/reindex", s.Reindex)
		r.Get("/indexes", s.ListIndexes)
		r.Get("/indexes/configuration", s.ShowConfiguration)
		r.Get("/search/{type}", s.Search)
	})
	return r
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrUnknownType,
		domain.ErrUnknownIndex,
		domain.ErrNotIndexed,
		domain.ErrUnknownField,
		domain.ErrNotFound,
		domain.ErrReindexInProgress,
		domain.ErrConfig,
	}
	var unknown *domain.UnknownIndexError
	if errors.As(err, &unknown) {
		return unknown.Error()
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
