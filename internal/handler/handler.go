package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatroom/internal/chat"
	"chatroom/internal/config"
	"chatroom/internal/hub"
	"chatroom/internal/metrics"
)

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds application dependencies
type Handler struct {
	Config   config.Config
	Log      *slog.Logger
	Registry *hub.Registry
	Pipeline *chat.Pipeline
	Query    *chat.QueryService
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	DB       Pinger

	validate *validator.Validate
	upgrader websocket.Upgrader
}

// New creates a new Handler with the given dependencies. Metrics, Gatherer
// and DB may be set on the returned value afterwards.
func New(cfg config.Config, log *slog.Logger, registry *hub.Registry, pipeline *chat.Pipeline, query *chat.QueryService) *Handler {
	return &Handler{
		Config:   cfg,
		Log:      log,
		Registry: registry,
		Pipeline: pipeline,
		Query:    query,
		validate: validator.New(),
		upgrader: createUpgrader(cfg.AllowedOrigins),
	}
}

// SetupRouter configures and returns the HTTP router
func (h *Handler) SetupRouter() *mux.Router {
	r := mux.NewRouter()

	// REST API
	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.requireUser)
	api.HandleFunc("/sessions/", h.ListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id:[0-9]+}/", h.GetSession).Methods("GET")
	api.HandleFunc("/messages/", h.ListMessages).Methods("GET")
	api.HandleFunc("/send-message/", h.SendMessage).Methods("POST")

	// WebSocket
	r.HandleFunc("/ws/chat/{session_id:[0-9]+}/", h.HandleWebSocket).Methods("GET")

	r.HandleFunc("/healthz", h.Healthz).Methods("GET")
	if h.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	return r
}

// Shutdown closes every live connection. The registry is empty afterwards.
func (h *Handler) Shutdown() {
	subs := h.Registry.Close()
	for _, sub := range subs {
		sub.Close()
	}
	h.Log.Info("closed websocket connections", "count", len(subs))
}

// Healthz handles GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.DB != nil {
		if err := h.DB.Ping(r.Context()); err != nil {
			h.Log.Error("[GET /healthz] database unreachable", "error", err)
			writeError(w, http.StatusServiceUnavailable, "Database error")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
