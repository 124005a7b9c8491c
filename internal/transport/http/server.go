package http

import (
	"context"
	"net/http"
	"time"

	"github.com/NewsPager/internal/app"
	"github.com/NewsPager/pkg/config"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// SessionStore is the part of the session registry the API needs.
type SessionStore interface {
	Create(query string) (*app.Session, error)
	Get(id string) (*app.Session, error)
	Close(id string) error
}

// HealthCheck probes optional dependencies; a nil error means healthy.
type HealthCheck func(ctx context.Context) map[string]error

type Handler struct {
	sessions  SessionStore
	health    HealthCheck
	connected func() bool
}

func NewHandler(sessions SessionStore, health HealthCheck, connected func() bool) *Handler {
	if health == nil {
		health = func(context.Context) map[string]error { return nil }
	}
	if connected == nil {
		connected = func() bool { return true }
	}
	return &Handler{sessions: sessions, health: health, connected: connected}
}

func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler())

	s := r.PathPrefix("/sessions").Subrouter()
	s.HandleFunc("", h.createSession).Methods(http.MethodPost)
	s.HandleFunc("/{id}", h.closeSession).Methods(http.MethodDelete)
	s.HandleFunc("/{id}/query", h.typeQuery).Methods(http.MethodPost)
	s.HandleFunc("/{id}/refresh", h.refresh).Methods(http.MethodPost)
	s.HandleFunc("/{id}/retry", h.retry).Methods(http.MethodPost)
	s.HandleFunc("/{id}/widget", h.setWidget).Methods(http.MethodPut)
	s.HandleFunc("/{id}/state", h.state).Methods(http.MethodGet)
	s.HandleFunc("/{id}/events", h.events).Methods(http.MethodGet)
	s.HandleFunc("/{id}/items/{index:[0-9]+}", h.item).Methods(http.MethodGet)
	return r
}

func NewHTTPServer(cfg *config.Config, h *Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           otelhttp.NewHandler(NewRouter(h), "news-pager"),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
