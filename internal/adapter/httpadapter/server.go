package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/forest-inventory-etl/internal/domain"
)

// maxIdentityBody bounds POST /v1/identities request bodies.
const maxIdentityBody = 32 << 20

// Server exposes health, readiness, metrics, and identity resolution over HTTP.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and
// POST /v1/identities routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /v1/identities", s.handleIdentities)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type identityRecord struct {
	ID   string  `json:"id"`
	Prev *string `json:"prev"`
}

type identityRequest struct {
	Records []identityRecord `json:"records"`
}

type identityResponse struct {
	Groups int            `json:"groups"`
	UIDs   map[string]int `json:"uids"`
}

// handleIdentities resolves the posted records into plot uids. A prev that is
// null, blank or a missing-value marker is treated as absent.
func (s *Server) handleIdentities(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIdentityBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		sharedobs.WriteJSON(w, status, map[string]string{"error": "invalid request body: " + err.Error()})
		return
	}

	records := make([]domain.Record, len(req.Records))
	for i, rec := range req.Records {
		records[i] = domain.Record{ID: rec.ID, Prev: rec.Prev}
	}

	m, err := domain.ResolveIdentities(records)
	if err != nil {
		var invalid *domain.InvalidRecordError
		if errors.As(err, &invalid) {
			sharedobs.WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error": invalid.Error(),
				"index": invalid.Index,
			})
			return
		}
		s.logger.Error("resolve identities", "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	s.logger.Debug("identities resolved", "records", len(records), "groups", m.Groups())
	sharedobs.WriteJSON(w, http.StatusOK, identityResponse{Groups: m.Groups(), UIDs: m.All()})
}
