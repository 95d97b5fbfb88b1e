// Package httpapi exposes the form service over HTTP. Reads answer with JSON,
// mutations follow post/redirect/get and report rejected input through an
// error query parameter on the redirect target.
package httpapi

import (
	"context"
	"net/http"

	"formcore/internal/auth"
	"formcore/internal/core"
	"formcore/internal/metrics"
	"formcore/pkg/domain"

	"github.com/gorilla/mux"
)

// Server routes requests to the form service.
type Server struct {
	service  *core.Service
	registry *auth.Registry
	sessions *auth.Sessions
	logger   core.Logger
	metrics  *metrics.Metrics
	router   *mux.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger installs the access and error logger.
func WithLogger(l core.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records request metrics and serves them at /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New wires the routes.
func New(service *core.Service, registry *auth.Registry, sessions *auth.Sessions, opts ...Option) *Server {
	s := &Server{
		service:  service,
		registry: registry,
		sessions: sessions,
		logger:   core.NewZapLogger(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.accessLog)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	r.Use(s.identify)

	r.HandleFunc("/", s.handleHome).Methods(http.MethodGet)
	r.HandleFunc("/register", s.handleAccountView).Methods(http.MethodGet)
	r.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/login", s.handleAccountView).Methods(http.MethodGet)
	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/form/{id}", s.handleViewForm).Methods(http.MethodGet)
	r.HandleFunc("/form/{id}", s.handleSubmit).Methods(http.MethodPost)

	d := r.PathPrefix("/dashboard").Subrouter()
	d.Use(s.requireLogin)
	d.HandleFunc("", s.handleDashboard).Methods(http.MethodGet)
	d.HandleFunc("/form/create", s.handleCreateForm).Methods(http.MethodPost)
	d.HandleFunc("/form/{id}/edit", s.handleEditForm).Methods(http.MethodPost)
	d.HandleFunc("/form/{id}/delete", s.handleDeleteForm).Methods(http.MethodPost)
	d.HandleFunc("/form/{id}/duplicate", s.handleDuplicateForm).Methods(http.MethodPost)
	d.HandleFunc("/form/{id}/fields", s.handleListFields).Methods(http.MethodGet)
	d.HandleFunc("/form/{id}/fields", s.handleAddField).Methods(http.MethodPost)
	d.HandleFunc("/form/{id}/fields/{fieldID}/edit", s.handleEditField).Methods(http.MethodPost)
	d.HandleFunc("/form/{id}/fields/{fieldID}/delete", s.handleDeleteField).Methods(http.MethodPost)
	d.HandleFunc("/form/{id}/responses", s.handleResponses).Methods(http.MethodGet)
	d.HandleFunc("/form/{id}/export", s.handleExport).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

type identityKey struct{}

// identify resolves the session cookie once per request. A session whose
// user no longer exists in the store is treated as anonymous.
func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := s.sessions.Current(r)
		if !id.IsAnonymous() {
			current, err := s.registry.Lookup(r.Context(), id.UserID)
			if err != nil {
				s.logger.Warn("session lookup failed", "user_id", id.UserID, "error", err)
				current = domain.Anonymous()
			}
			id = current
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}

func (s *Server) requireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identity(r).IsAnonymous() {
			redirect(w, r, "/login", "login required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func identity(r *http.Request) domain.Identity {
	id, _ := r.Context().Value(identityKey{}).(domain.Identity)
	return id
}
