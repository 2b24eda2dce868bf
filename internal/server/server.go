// Package server exposes interview sessions over a websocket and serves the
// health, introspection and archive endpoints.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sjawhar/interview-coach/internal/interview"
	"github.com/sjawhar/interview-coach/internal/model"
	"github.com/sjawhar/interview-coach/internal/observe"
	"github.com/sjawhar/interview-coach/internal/storage"
)

// DocumentExtractor turns a job description and resume into interview hints.
type DocumentExtractor interface {
	Extract(ctx context.Context, jobDescription, resume string, role model.JobRole) (model.Insights, error)
}

// ArchiveStore reads back ended interviews.
type ArchiveStore interface {
	ListInterviews(ctx context.Context, limit int) ([]storage.Summary, error)
	GetInterview(ctx context.Context, id string) (storage.Interview, error)
}

type Options struct {
	Registry  *interview.Registry
	Extractor DocumentExtractor
	Archive   ArchiveStore
	// Checks are evaluated by /readyz in order.
	Checks []Checker
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
	Metrics        *observe.Metrics
	Logger         *slog.Logger
	Now            func() time.Time
}

type Server struct {
	registry  *interview.Registry
	extractor DocumentExtractor
	archive   ArchiveStore
	metrics   *observe.Metrics
	logger    *slog.Logger
	now       func() time.Time

	hub     *Hub
	handler http.Handler
}

func New(opts Options) *Server {
	if opts.Metrics == nil {
		opts.Metrics = observe.Discard()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		registry:  opts.Registry,
		extractor: opts.Extractor,
		archive:   opts.Archive,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		now:       opts.Now,
		hub:       NewHub(),
	}

	checks := append([]Checker{{Name: "sessions", Check: func(context.Context) error { return nil }}}, opts.Checks...)
	health := NewHealth(checks...)

	r := mux.NewRouter()
	r.HandleFunc("/ws", s.serveWS).Methods(http.MethodGet)
	r.HandleFunc("/healthz", health.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", health.Readyz).Methods(http.MethodGet)
	if opts.MetricsHandler != nil {
		r.Handle("/metrics", opts.MetricsHandler).Methods(http.MethodGet)
	}
	s.registerAPIRoutes(r.PathPrefix("/api").Subrouter())
	r.Use(observe.Middleware(s.metrics, routeTemplate))

	s.handler = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Connections reports how many websocket clients are attached.
func (s *Server) Connections() int {
	return s.hub.Len()
}

// CloseConnections closes every websocket. Call it after the registry has
// shut down so the sessions end with their shutdown reason.
func (s *Server) CloseConnections() {
	s.hub.CloseAll()
}

// routeTemplate labels requests by their route pattern so ids do not
// explode metric cardinality.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
