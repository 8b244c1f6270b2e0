package events

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"sentraguard/internal/auth"
)

// Lister is satisfied by Store and Memory.
type Lister interface {
	List(ctx context.Context, f Filter) ([]Event, error)
}

// QueryHandler exposes a read-only slice of the event log.
type QueryHandler struct {
	Store  Lister
	Logger *slog.Logger
}

func (h *QueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	// Authentication is handled by middleware; we just ensure it ran.
	if _, ok := auth.UserFromContext(r.Context()); !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	evts, err := h.Store.List(r.Context(), filter)
	if err != nil {
		h.Logger.Error("list events", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(evts)
}

func parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	filter := Filter{ActorID: q.Get("actor_id")}
	if kinds := q.Get("kind"); kinds != "" {
		filter.Kinds = strings.Split(kinds, ",")
	}
	if targets := q.Get("target"); targets != "" {
		filter.Targets = strings.Split(targets, ",")
	}
	if s := q.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return Filter{}, err
		}
		filter.Since = t
	}
	if s := q.Get("until"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return Filter{}, err
		}
		filter.Until = t
	}
	if s := q.Get("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil {
			return Filter{}, err
		}
		filter.Limit = l
	}
	return filter, nil
}
