// Package api exposes the ops HTTP interface: health, readiness,
// metrics, and the pincode-cached query used by the onboarding flow.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var validPincode = regexp.MustCompile(`^\d{6}$`)

// Pinger is the store surface readiness checks depend on.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CacheQuery answers whether a pincode already has scrape history.
type CacheQuery interface {
	PincodeCached(ctx context.Context, pincode string) (bool, error)
}

// Server wires HTTP handlers to the scheduler and store.
type Server struct {
	router chi.Router
	store  Pinger
	cache  CacheQuery
	logger *zap.Logger
}

// NewServer constructs a Server with routes registered.
func NewServer(store Pinger, cache CacheQuery, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{store: store, cache: cache, logger: logger}

	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/v1/pincodes/{pincode}/cached", s.handlePincodeCached)
	s.router = r
	return s
}

// Handler returns the http.Handler for the ops server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handlePincodeCached(w http.ResponseWriter, r *http.Request) {
	pincode := chi.URLParam(r, "pincode")
	if !validPincode.MatchString(pincode) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "pincode must be 6 digits"})
		return
	}
	cached, err := s.cache.PincodeCached(r.Context(), pincode)
	if err != nil {
		s.logger.Error("pincode cached query failed",
			zap.String("pincode", pincode),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pincode": pincode, "cached": cached})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
