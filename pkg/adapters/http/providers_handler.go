// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/leseb/ogc-gw/pkg/core/services"
	"github.com/leseb/ogc-gw/pkg/layer"
	"github.com/leseb/ogc-gw/pkg/provider"
	"github.com/leseb/ogc-gw/pkg/style"
)

// pathCategories maps URL segments to registry categories.
var pathCategories = map[string]string{
	"layers": layer.Category,
	"styles": style.Category,
}

type listResponse struct {
	Object string `json:"object"`
	Data   any    `json:"data"`
}

// providerRequest is the body of POST and PUT on providers.
type providerRequest struct {
	ID     string               `json:"id,omitempty"`
	Hint   provider.Hint        `json:"hint,omitempty"`
	Config *provider.ConfigTree `json:"config"`
}

func category(r *http.Request) (string, error) {
	seg := r.PathValue("category")
	c, ok := pathCategories[seg]
	if !ok {
		return "", fmt.Errorf("%q: %w", seg, services.ErrUnknownCategory)
	}
	return c, nil
}

func (h *Handler) decodeProvider(w http.ResponseWriter, r *http.Request) (*providerRequest, bool) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	var req providerRequest
	if err := dec.Decode(&req); err != nil {
		h.logger.Debug("Failed to parse provider request", "error", err)
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse request body")
		return nil, false
	}
	if req.Config == nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "config is required")
		return nil, false
	}
	return &req, true
}

// handleListFactories handles GET /v1/{category}/factories
func (h *Handler) handleListFactories(w http.ResponseWriter, r *http.Request) {
	c, err := category(r)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	factories, err := h.providers.Factories(c)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listResponse{Object: "list", Data: factories})
}

// handleListFailures handles GET /v1/{category}/failures
func (h *Handler) handleListFailures(w http.ResponseWriter, r *http.Request) {
	c, err := category(r)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	failures, err := h.providers.Failures(c)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listResponse{Object: "list", Data: failures})
}

// handleCreateProvider handles POST /v1/{category}/providers
func (h *Handler) handleCreateProvider(w http.ResponseWriter, r *http.Request) {
	c, err := category(r)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	req, ok := h.decodeProvider(w, r)
	if !ok {
		return
	}
	if req.ID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "id is required")
		return
	}

	info, err := h.providers.Create(r.Context(), c, req.ID, req.Hint, req.Config)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, info)
}

// handleListProviders handles GET /v1/{category}/providers
func (h *Handler) handleListProviders(w http.ResponseWriter, r *http.Request) {
	c, err := category(r)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	infos, err := h.providers.List(c)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listResponse{Object: "list", Data: infos})
}

// handleGetProvider handles GET /v1/{category}/providers/{id}
func (h *Handler) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	c, err := category(r)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	info, err := h.providers.Describe(c, r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

// handleUpdateProvider handles PUT /v1/{category}/providers/{id}
func (h *Handler) handleUpdateProvider(w http.ResponseWriter, r *http.Request) {
	c, err := category(r)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	req, ok := h.decodeProvider(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if req.ID != "" && req.ID != id {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "id in body does not match path")
		return
	}

	info, err := h.providers.Update(r.Context(), c, id, req.Hint, req.Config)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

// handleDeleteProvider handles DELETE /v1/{category}/providers/{id}
func (h *Handler) handleDeleteProvider(w http.ResponseWriter, r *http.Request) {
	c, err := category(r)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	purge := false
	if v := r.URL.Query().Get("purge"); v != "" {
		purge, err = strconv.ParseBool(v)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "purge must be a boolean")
			return
		}
	}

	id := r.PathValue("id")
	if err := h.providers.Remove(r.Context(), c, id, purge); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"id":      id,
		"object":  "provider.deleted",
		"deleted": true,
		"purged":  purge,
	})
}

// handleRestartProvider handles POST /v1/{category}/providers/{id}/restart
func (h *Handler) handleRestartProvider(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.providers.Restart)
}

// handleReloadProvider handles POST /v1/{category}/providers/{id}/reload
func (h *Handler) handleReloadProvider(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.providers.Reload)
}

// handlePingProvider handles GET /v1/{category}/providers/{id}/health
func (h *Handler) handlePingProvider(w http.ResponseWriter, r *http.Request) {
	c, err := category(r)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	id := r.PathValue("id")
	if err := h.providers.Ping(r.Context(), c, id); err != nil {
		if _, derr := h.providers.Describe(c, id); derr != nil {
			h.writeServiceError(w, derr)
			return
		}
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"id": id, "status": "unreachable", "error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "healthy"})
}

// lifecycle runs op on the provider named in the path and answers with
// its updated description.
func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, category, id string) error) {
	c, err := category(r)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	id := r.PathValue("id")
	if err := op(r.Context(), c, id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	info, err := h.providers.Describe(c, id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

// handleLookupKey handles GET /v1/{category}/providers/{id}/keys/{key}
func (h *Handler) handleLookupKey(w http.ResponseWriter, r *http.Request) {
	c, err := category(r)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	handle, err := h.providers.Lookup(c, r.PathValue("id"), r.PathValue("key"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, handle)
}
