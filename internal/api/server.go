// Package api exposes the record store over HTTP.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/medrex/healthcare-records/pkg/logger"
	"github.com/medrex/healthcare-records/pkg/monitoring"
	"github.com/medrex/healthcare-records/pkg/types"
)

// Store is the record store as seen by the HTTP layer.
type Store interface {
	Initialize(ctx context.Context, caller types.Identity) error
	AuthorizeProvider(ctx context.Context, caller, provider types.Identity) error
	AddRecord(ctx context.Context, caller types.Identity, patientID, patientName, diagnosis, treatment string) (uint64, error)
	GetOwner(ctx context.Context) (types.Identity, error)
	GetPatientRecords(ctx context.Context, patientID string) ([]types.RecordView, error)
	GetPatientRecord(ctx context.Context, patientID string, recordID uint64) (types.RecordView, error)
	IsAuthorized(ctx context.Context, identity types.Identity) (bool, error)
}

type callerContextKey struct{}

// Server routes HTTP requests to the store
type Server struct {
	router      *mux.Router
	store       Store
	validator   *TokenValidator
	rateLimiter *RateLimiter
	logger      *logger.Logger
	metrics     *monitoring.MetricsCollector
	tracing     *monitoring.TracingManager
	health      *monitoring.HealthManager
	metricsPath string
	healthPath  string
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithRateLimiter limits write requests per caller
func WithRateLimiter(rl *RateLimiter) ServerOption {
	return func(s *Server) { s.rateLimiter = rl }
}

// WithMetrics records HTTP metrics and serves them at path
func WithMetrics(m *monitoring.MetricsCollector, path string) ServerOption {
	return func(s *Server) {
		s.metrics = m
		s.metricsPath = path
	}
}

// WithHealth serves the health report at path
func WithHealth(hm *monitoring.HealthManager, path string) ServerOption {
	return func(s *Server) {
		s.health = hm
		s.healthPath = path
	}
}

// WithTracing wraps every request in a trace span
func WithTracing(tm *monitoring.TracingManager) ServerOption {
	return func(s *Server) { s.tracing = tm }
}

// NewServer creates the HTTP server for store
func NewServer(store Store, validator *TokenValidator, log *logger.Logger, opts ...ServerOption) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		store:     store,
		validator: validator,
		logger:    log,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	if s.tracing != nil {
		s.router.Use(s.tracing.HTTPMiddleware)
	}
	s.router.Use(monitoring.NewMonitoringMiddleware(s.metrics, s.logger).HTTPMiddleware)
	s.router.Use(securityHeadersMiddleware)
}

func (s *Server) setupRoutes() {
	if s.health != nil {
		s.router.HandleFunc(s.healthPath, s.health.HTTPHandler()).Methods(http.MethodGet)
	}
	if s.metrics != nil {
		s.router.Handle(s.metricsPath, s.metrics.Handler()).Methods(http.MethodGet)
	}

	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	v1.Handle("/initialize", s.authenticated(s.handleInitialize)).Methods(http.MethodPost)
	v1.HandleFunc("/owner", s.handleGetOwner).Methods(http.MethodGet)

	v1.Handle("/providers", s.authenticated(s.rateLimited("authorize_provider", s.handleAuthorizeProvider))).Methods(http.MethodPost)
	v1.HandleFunc("/providers/{identity}", s.handleGetProvider).Methods(http.MethodGet)

	v1.Handle("/patients/{patientID}/records", s.authenticated(s.rateLimited("add_record", s.handleAddRecord))).Methods(http.MethodPost)
	v1.HandleFunc("/patients/{patientID}/records", s.handleGetRecords).Methods(http.MethodGet)
	v1.HandleFunc("/patients/{patientID}/records/{recordID}", s.handleGetRecord).Methods(http.MethodGet)
}

// authenticated requires a valid bearer token and puts the caller identity
// in the request context. Reads are public and skip this.
func (s *Server) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.writeError(w, r, types.NewAuthenticationError("missing authorization header", nil))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			s.writeError(w, r, types.NewAuthenticationError("invalid authorization header format", nil))
			return
		}

		caller, err := s.validator.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			s.logger.Security(r.Context(), "token_rejected", "", map[string]interface{}{
				"path":  r.URL.Path,
				"error": err.Error(),
			})
			s.writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), callerContextKey{}, caller)
		ctx = logger.ContextWithCaller(ctx, caller.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimited applies the per-caller write budget
func (s *Server) rateLimited(operation string, next http.HandlerFunc) http.HandlerFunc {
	if s.rateLimiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		caller := callerFromContext(r.Context())
		if !s.rateLimiter.Allow(caller.String()) {
			s.logger.Security(r.Context(), "rate_limit_exceeded", caller.String(), nil)
			s.metrics.RecordRejection(operation, "rate_limited")
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: errorBody{
				Code:    errCodeRateLimited,
				Message: "rate limit exceeded",
			}})
			return
		}
		next(w, r)
	}
}

func callerFromContext(ctx context.Context) types.Identity {
	caller, _ := ctx.Value(callerContextKey{}).(types.Identity)
	return caller
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
