package httpserver

import (
	"encoding/json"
	"net/http"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sentraguard/internal/auth"
	"sentraguard/internal/events"
)

type Deps struct {
	Logger         *slog.Logger
	Auth           *auth.Service
	Events         events.Lister
	Scanner        Scanner
	Controls       Controls
	Gatherer       prometheus.Gatherer
	SchedulerToken string
}

func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()
	logger := d.Logger

	// Health check
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	if d.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	// Auth
	mux.Handle("/api/v1/auth/login", loginHandler(d.Auth, logger))

	secured := auth.JWTMiddleware(d.Auth)

	// Scans
	mux.Handle("/api/v1/scan", schedulerOrJWT(d.SchedulerToken, secured, scanHandler(d.Scanner, logger)))
	mux.Handle("/api/v1/status", secured(statusHandler(d.Scanner, logger)))

	// Shutdown controls
	mux.Handle("/api/v1/shutdown", secured(shutdownHandler(d.Controls, logger)))
	mux.Handle("/api/v1/restore", secured(restoreHandler(d.Controls, logger)))

	// Events
	queryHandler := &events.QueryHandler{
		Store:  d.Events,
		Logger: logger,
	}
	mux.Handle("/api/v1/events", secured(queryHandler))

	// CORS wrapper (simple, for local UI/tools).
	return withCORS(mux)
}
