// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/leseb/ogc-gw/docs"
)

// openAPIJSON converts the embedded YAML document once.
var openAPIJSON = sync.OnceValues(func() ([]byte, error) {
	var spec map[string]any
	if err := yaml.Unmarshal(docs.OpenAPISpec, &spec); err != nil {
		return nil, fmt.Errorf("parse embedded OpenAPI document: %w", err)
	}
	data, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("marshal OpenAPI document: %w", err)
	}
	return data, nil
})

// handleOpenAPI serves the admin API description as JSON.
func (h *Handler) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	data, err := openAPIJSON()
	if err != nil {
		h.logger.Error("Failed to load OpenAPI document", "error", err)
		h.writeError(w, http.StatusInternalServerError, "spec_error", "Failed to load OpenAPI spec")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
