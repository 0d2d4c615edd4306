// Package server exposes the worker's HTTP surface: the status document, the
// dashboard, a liveness probe and a WebSocket status stream.
package server

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"go-pulse/services/pulse-worker/internal/agent"
	"go-pulse/services/pulse-worker/internal/httpHelpers"
)

const dashboardRefresh = 2 * time.Second

//go:embed templates/*.html
var templates embed.FS

var dashboardTmpl = template.Must(template.ParseFS(templates, "templates/dashboard.html"))

type dashboardData struct {
	Title          string
	ConnectedLabel string
	RefreshMs      int64
}

// NewRouter builds the worker's HTTP handler around state
func NewRouter(state *agent.State) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestIDHeader)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/status", statusHandler(state))
	r.Get("/healthz", healthHandler)
	r.Get("/ws", wsHandler(state))
	r.Get("/", dashboardHandler)

	return r
}

// requestIDHeader echoes the id assigned by middleware.RequestID back to the client
func requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set(middleware.RequestIDHeader, reqID)
		}
		next.ServeHTTP(w, r)
	})
}

func statusHandler(state *agent.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		doc := state.Document(start)
		httpHelpers.WriteTimings(w, httpHelpers.Timings{"snapshot": time.Since(start)})
		httpHelpers.WriteOutput(w, doc)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	httpHelpers.WriteOutput(w, map[string]any{"status": "ok"})
}

func dashboardHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := dashboardTmpl.Execute(w, dashboardData{
		Title:          "Worker Status",
		ConnectedLabel: agent.StatusConnected.String(),
		RefreshMs:      dashboardRefresh.Milliseconds(),
	})
	if err != nil {
		slog.Error("Error rendering dashboard", "error", err)
	}
}
