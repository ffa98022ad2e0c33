package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/dd0wney/cluso-relay/pkg/health"
	"github.com/dd0wney/cluso-relay/pkg/logging"
	"github.com/dd0wney/cluso-relay/pkg/metrics"
	"github.com/dd0wney/cluso-relay/pkg/relay"
	"github.com/dd0wney/cluso-relay/pkg/validation"
)

// modeSetter applies relay configuration on the driver goroutine
type modeSetter interface {
	SetServerRelayMode(ctx context.Context, cfg relay.RelayConfig, force bool) (bool, error)
}

type adminServer struct {
	snapshot func() relay.Snapshot
	modes    modeSetter
	role     *serverRole
	health   *health.Checker
	metrics  *metrics.Registry
	logger   logging.Logger
	now      func() time.Time
}

// ModeRequest is the body of POST /relay/mode
type ModeRequest struct {
	Mode              string `json:"mode" validate:"required"`
	ConfiguredPrimary int    `json:"configured_primary" validate:"required,oneof=1 2"`
	Force             bool   `json:"force"`
}

// StatusResponse is the body of GET /relay/status
type StatusResponse struct {
	relay.Snapshot
	TimelineActive bool  `json:"timeline_active"`
	RoleChanges    int64 `json:"role_changes"`
}

func (s *adminServer) router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.health.Handler(health.Liveness)).Methods("GET")
	router.HandleFunc("/ready", s.health.Handler(health.Readiness)).Methods("GET")
	router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	router.HandleFunc("/relay/status", s.getStatus).Methods("GET")
	router.HandleFunc("/relay/mode", s.setMode).Methods("POST")

	router.Use(s.metricsMiddleware)
	return router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *adminServer) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		s.metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(rec.status), time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *adminServer) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Snapshot:       s.snapshot(),
		TimelineActive: s.role.active(),
		RoleChanges:    s.role.changes.Load(),
	})
}

func (s *adminServer) setMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := validation.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	mode, err := relay.ParseRelayMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cfg := relay.RelayConfig{
		ModeTimestamp:     s.now().UnixMilli(),
		Mode:              mode,
		ConfiguredPrimary: req.ConfiguredPrimary,
	}

	changed, err := s.modes.SetServerRelayMode(r.Context(), cfg, req.Force)
	switch {
	case errors.Is(err, relay.ErrDriverStopped):
		writeError(w, http.StatusServiceUnavailable, err)
		return
	case err != nil:
		s.logger.Error("Failed to set relay mode", logging.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"changed":      changed,
		"relay_config": cfg,
	})
}
