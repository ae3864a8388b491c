// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leseb/ogc-gw/pkg/core/services"
	"github.com/leseb/ogc-gw/pkg/observability/logging"
	"github.com/leseb/ogc-gw/pkg/provider"
)

const maxBodyBytes = 1 << 20

// Handler implements the HTTP adapter
type Handler struct {
	providers *services.Providers
	logger    *logging.Logger
	mux       *http.ServeMux
}

// New creates a new HTTP handler. Metrics are served from gatherer, or the
// default prometheus registry when nil.
func New(providers *services.Providers, logger *logging.Logger, gatherer prometheus.Gatherer) *Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	h := &Handler{
		providers: providers,
		logger:    logger,
		mux:       http.NewServeMux(),
	}

	// Register routes
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /openapi.json", h.handleOpenAPI)
	h.mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Provider administration, {category} is "layers" or "styles"
	h.mux.HandleFunc("GET /v1/{category}/factories", h.handleListFactories)
	h.mux.HandleFunc("GET /v1/{category}/failures", h.handleListFailures)
	h.mux.HandleFunc("POST /v1/{category}/providers", h.handleCreateProvider)
	h.mux.HandleFunc("GET /v1/{category}/providers", h.handleListProviders)
	h.mux.HandleFunc("GET /v1/{category}/providers/{id}", h.handleGetProvider)
	h.mux.HandleFunc("PUT /v1/{category}/providers/{id}", h.handleUpdateProvider)
	h.mux.HandleFunc("DELETE /v1/{category}/providers/{id}", h.handleDeleteProvider)
	h.mux.HandleFunc("POST /v1/{category}/providers/{id}/restart", h.handleRestartProvider)
	h.mux.HandleFunc("POST /v1/{category}/providers/{id}/reload", h.handleReloadProvider)
	h.mux.HandleFunc("GET /v1/{category}/providers/{id}/health", h.handlePingProvider)
	h.mux.HandleFunc("GET /v1/{category}/providers/{id}/keys/{key}", h.handleLookupKey)

	return h
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("Request",
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr)

	h.mux.ServeHTTP(w, r)
}

// handleHealth handles health check requests
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]int)
	failing := 0
	for _, c := range h.providers.Categories() {
		infos, _ := h.providers.List(c)
		failures, _ := h.providers.Failures(c)
		counts[c] = len(infos)
		failing += len(failures)
	}
	status := "healthy"
	if failing > 0 {
		status = "degraded"
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"providers": counts,
		"failures":  failing,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"type":    errType,
			"message": message,
		},
	})
}

// writeServiceError maps registry and service errors to HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var (
		construction *provider.ConstructionFailedError
		invalid      *provider.InvalidConfigError
	)
	switch {
	case errors.As(err, &construction):
		h.writeError(w, http.StatusUnprocessableEntity, "construction_failed", err.Error())
	case errors.Is(err, provider.ErrNoMatch),
		errors.Is(err, provider.ErrAmbiguousMatch),
		errors.Is(err, provider.ErrInvalidID),
		errors.As(err, &invalid):
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, provider.ErrDuplicateID):
		h.writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, provider.ErrNotFound), errors.Is(err, services.ErrUnknownCategory):
		h.writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, provider.ErrClosed):
		h.writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	default:
		h.logger.Error("Provider operation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}
