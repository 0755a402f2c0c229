// Package httpapi exposes the account service over HTTP.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"ventia.app/internal/identity"
	"ventia.app/internal/obs"
)

// ReadyProbe reports whether the service can take traffic.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	svc        *identity.Service
	readyProbe ReadyProbe
	version    string
	log        *zap.Logger
}

// New wires the routes.
func New(svc *identity.Service, rp ReadyProbe, version string, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	a := &API{
		mux:        http.NewServeMux(),
		svc:        svc,
		readyProbe: rp,
		version:    version,
		log:        log,
	}

	// health/ready
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// account endpoints
	a.mux.HandleFunc("/auth/register/", a.handleRegister)
	a.mux.HandleFunc("/auth/login/", a.handleLogin)
	a.mux.HandleFunc("/auth/refresh/", a.handleRefresh)
	a.mux.HandleFunc("/auth/logout/", a.handleLogout)
	a.mux.HandleFunc("/auth/profile/", a.handleProfile)
	a.mux.HandleFunc("/auth/change-password/", a.handleChangePassword)
	a.mux.HandleFunc("/auth/request-reset-password/", a.handleRequestReset)
	a.mux.HandleFunc("/auth/password-reset/", a.handleCheckResetToken)
	a.mux.HandleFunc("/auth/set-new-password/", a.handleSetNewPassword)
	// /auth/{id}/update/ falls through to the subtree handler
	a.mux.HandleFunc("/auth/", a.handleUserResource)

	a.mux.HandleFunc("/create-company/", a.handleCreateCompany)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "ventia-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
