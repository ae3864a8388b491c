// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/leseb/ogc-gw/pkg/core/services"
	"github.com/leseb/ogc-gw/pkg/observability/logging"
	"github.com/leseb/ogc-gw/pkg/provider"
	"github.com/leseb/ogc-gw/pkg/storage/memory"
)

const roadsBody = `{
	"id": "base",
	"config": {
		"name": "base",
		"choice": {"name": "memory", "params": {"layers": [{"key": "roads", "type": "vector", "extent": [0, 0, 10, 10]}]}}
	}
}`

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics := provider.NewMetrics(reg)
	svc := services.NewProviders(memory.New(), nil,
		services.NewLayerRegistry(provider.WithMetrics(metrics)).Admin(),
		services.NewStyleRegistry(provider.WithMetrics(metrics)).Admin(),
	)
	t.Cleanup(func() { svc.Shutdown(context.Background()) })
	return New(svc, logging.Discard(), reg)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Error.Type
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t)
	rec := do(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"healthy"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestOpenAPI(t *testing.T) {
	h := newTestHandler(t)
	rec := do(t, h, http.MethodGet, "/openapi.json", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var doc map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	paths, _ := doc["paths"].(map[string]any)
	if _, ok := paths["/v1/{category}/providers/{id}"]; !ok {
		t.Errorf("provider path missing from document")
	}
}

func TestProviderLifecycle(t *testing.T) {
	h := newTestHandler(t)

	rec := do(t, h, http.MethodPost, "/v1/layers/providers", roadsBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var info provider.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info.Category != "layer" || info.Kind != "memory" || len(info.Keys) != 1 {
		t.Errorf("info = %+v", info)
	}

	rec = do(t, h, http.MethodGet, "/v1/layers/providers/base/keys/roads", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("lookup status = %d", rec.Code)
	}
	var handle provider.Handle
	json.Unmarshal(rec.Body.Bytes(), &handle)
	if handle.Key != "roads" || handle.Extent == nil || handle.Extent.MaxX != 10 {
		t.Errorf("handle = %+v", handle)
	}

	rec = do(t, h, http.MethodGet, "/v1/layers/providers", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"id":"base"`) {
		t.Errorf("list = %d %s", rec.Code, rec.Body.String())
	}

	for _, op := range []string{"restart", "reload"} {
		rec = do(t, h, http.MethodPost, "/v1/layers/providers/base/"+op, "")
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d: %s", op, rec.Code, rec.Body.String())
		}
	}

	rec = do(t, h, http.MethodGet, "/v1/layers/providers/base/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}

	update := strings.Replace(roadsBody, `"key": "roads"`, `"key": "rail"`, 1)
	rec = do(t, h, http.MethodPut, "/v1/layers/providers/base", update)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodGet, "/v1/layers/providers/base/keys/roads", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("old key still served after update: %d", rec.Code)
	}

	rec = do(t, h, http.MethodDelete, "/v1/layers/providers/base?purge=true", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"purged":true`) {
		t.Errorf("delete = %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodGet, "/v1/layers/providers/base", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d", rec.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	h := newTestHandler(t)
	if rec := do(t, h, http.MethodPost, "/v1/layers/providers", roadsBody); rec.Code != http.StatusCreated {
		t.Fatalf("seed create = %d", rec.Code)
	}

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
		wantType string
	}{
		{"duplicate id", http.MethodPost, "/v1/layers/providers", roadsBody, http.StatusConflict, "conflict"},
		{"no match", http.MethodPost, "/v1/layers/providers",
			`{"id":"x","config":{"name":"x","choice":{"name":"wfs"}}}`, http.StatusBadRequest, "invalid_request"},
		{"no choice", http.MethodPost, "/v1/layers/providers",
			`{"id":"x","config":{"name":"x"}}`, http.StatusBadRequest, "invalid_request"},
		{"invalid id", http.MethodPost, "/v1/layers/providers",
			`{"id":"a b","config":{"name":"x","choice":{"name":"memory"}}}`, http.StatusBadRequest, "invalid_request"},
		{"schema violation", http.MethodPost, "/v1/layers/providers",
			`{"id":"x","config":{"name":"x","choice":{"name":"memory","params":{"bogus":1}}}}`, http.StatusUnprocessableEntity, "construction_failed"},
		{"malformed body", http.MethodPost, "/v1/styles/providers", `{`, http.StatusBadRequest, "invalid_request"},
		{"unknown field", http.MethodPost, "/v1/styles/providers", `{"id":"x","cfg":{}}`, http.StatusBadRequest, "invalid_request"},
		{"unknown category", http.MethodGet, "/v1/tiles/providers", "", http.StatusNotFound, "not_found"},
		{"unknown provider", http.MethodPost, "/v1/layers/providers/missing/restart", "", http.StatusNotFound, "not_found"},
		{"bad purge flag", http.MethodDelete, "/v1/layers/providers/base?purge=maybe", "", http.StatusBadRequest, "invalid_request"},
		{"id mismatch", http.MethodPut, "/v1/layers/providers/other", roadsBody, http.StatusBadRequest, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if got := errorType(t, rec); got != tt.wantType {
				t.Errorf("error type = %q, want %q", got, tt.wantType)
			}
		})
	}

	rec := do(t, h, http.MethodGet, "/v1/layers/failures", "")
	if !strings.Contains(rec.Body.String(), `"id":"x"`) {
		t.Errorf("schema violation not listed in failures: %s", rec.Body.String())
	}
}

func TestClosedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc := services.NewProviders(memory.New(), nil, services.NewLayerRegistry().Admin())
	h := New(svc, logging.Discard(), reg)
	if err := svc.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	rec := do(t, h, http.MethodPost, "/v1/layers/providers", roadsBody)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestFactoriesAndMetrics(t *testing.T) {
	h := newTestHandler(t)

	rec := do(t, h, http.MethodGet, "/v1/styles/factories", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, kind := range []string{"memory", "sld-directory", "style-redis", "style-postgres", "style-mysql"} {
		if !strings.Contains(rec.Body.String(), `"kind":"`+kind+`"`) {
			t.Errorf("factory %q missing", kind)
		}
	}

	do(t, h, http.MethodPost, "/v1/layers/providers", roadsBody)
	rec = do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ogcgw_provider_operations_total") {
		t.Errorf("registry metrics not exposed:\n%s", rec.Body.String())
	}
}
