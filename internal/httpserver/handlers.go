package httpserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"sentraguard/internal/auth"
	"sentraguard/internal/scan"
	"sentraguard/internal/shutdown"
)

type Scanner interface {
	Run(ctx context.Context) scan.Report
	Status(ctx context.Context) (*scan.Status, error)
}

// Controls is the manual side of the shutdown state machine.
type Controls interface {
	RequestShutdown(ctx context.Context, req shutdown.Request) (*shutdown.Status, error)
	Restore(ctx context.Context, restoredBy string) (*shutdown.Status, error)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// shutdownErrorStatus maps state machine errors onto HTTP codes.
func shutdownErrorStatus(err error) int {
	switch {
	case errors.Is(err, shutdown.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, shutdown.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, shutdown.ErrInvalidRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func loginHandler(svc *auth.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" {
			writeError(w, http.StatusBadRequest, "username and password required")
			return
		}
		session, err := svc.Login(r.Context(), body.Username, body.Password)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			logger.Warn("failed login", "username", body.Username, "remote", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		if err != nil {
			logger.Error("issue token", "err", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

// schedulerOrJWT admits the external scheduler by its shared token, and
// users with a scan-capable role by bearer token.
func schedulerOrJWT(token string, secured func(http.Handler) http.Handler, next http.HandlerFunc) http.Handler {
	jwtNext := secured(auth.RequireRole(next, auth.RoleSuperAdmin, auth.RoleAdmin, auth.RoleSecurityAdmin, auth.RoleAnalyst))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Api-Key")
		if key == "" {
			jwtNext.ServeHTTP(w, r)
			return
		}
		if token == "" || subtle.ConstantTimeCompare([]byte(key), []byte(token)) != 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// scanCycleTimeout bounds a cycle started over HTTP. It stays below the
// server's write timeout.
const scanCycleTimeout = 50 * time.Second

// scanHandler runs the cycle detached from the request so a disconnecting
// caller cannot cancel its writes halfway.
func scanHandler(scanner Scanner, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), scanCycleTimeout)
		defer cancel()
		rep := scanner.Run(ctx)
		logger.Info("scan triggered over http", "cycle_id", rep.CycleID, "errors", rep.ErrorCount)
		writeJSON(w, http.StatusOK, struct {
			scan.Report
			Messages []string `json:"errors,omitempty"`
		}{rep, rep.Messages()})
	}
}

func statusHandler(scanner Scanner, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		st, err := scanner.Status(r.Context())
		if err != nil {
			logger.Error("load status", "err", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// shutdownHandler takes the actor from the token. The machine re-checks the
// actor's stored role, so a stale token role grants nothing.
func shutdownHandler(controls Controls, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		user, ok := auth.UserFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body struct {
			Level        string `json:"level"`
			Reason       string `json:"reason"`
			RestoreAfter string `json:"restore_after"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		if strings.TrimSpace(body.Reason) == "" {
			writeError(w, http.StatusBadRequest, "reason required")
			return
		}
		req := shutdown.Request{
			Level:       shutdown.Level(body.Level),
			Reason:      body.Reason,
			TriggeredBy: user.Username,
		}
		if body.RestoreAfter != "" {
			d, err := time.ParseDuration(body.RestoreAfter)
			if err != nil || d <= 0 {
				writeError(w, http.StatusBadRequest, "restore_after must be a positive duration")
				return
			}
			req.RestoreAfter = d
		}
		st, err := controls.RequestShutdown(r.Context(), req)
		if err != nil && st != nil {
			logger.Error("shutdown entered without emergency event", "err", err, "shutdown_id", st.ID)
			writeJSON(w, http.StatusCreated, struct {
				*shutdown.Status
				Warning string `json:"warning"`
			}{st, err.Error()})
			return
		}
		if err != nil {
			code := shutdownErrorStatus(err)
			if code == http.StatusInternalServerError {
				logger.Error("request shutdown", "err", err, "actor", user.Username)
			}
			writeError(w, code, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, st)
	}
}

func restoreHandler(controls Controls, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		user, ok := auth.UserFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		st, err := controls.Restore(r.Context(), user.Username)
		if err != nil {
			code := shutdownErrorStatus(err)
			if code == http.StatusInternalServerError {
				logger.Error("restore", "err", err, "actor", user.Username)
			}
			writeError(w, code, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"state":    shutdown.StateOperational,
			"restored": st != nil,
			"shutdown": st,
		})
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Api-Key")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
