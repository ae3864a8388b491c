// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func sign(t *testing.T, secret string, method jwt.SigningMethod, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, jwt.MapClaims{
		"sub": "operator",
		"exp": exp.Unix(),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestSecure_Token(t *testing.T) {
	h := newTestHandler(t).Secure(SecurityConfig{AuthSecret: "s3cret"})
	valid := sign(t, "s3cret", jwt.SigningMethodHS256, time.Now().Add(time.Hour))

	tests := []struct {
		name   string
		path   string
		auth   string
		status int
	}{
		{"health is open", "/health", "", http.StatusOK},
		{"openapi is open", "/openapi.json", "", http.StatusOK},
		{"missing token", "/v1/layers/providers", "", http.StatusUnauthorized},
		{"wrong scheme", "/v1/layers/providers", "Basic " + valid, http.StatusUnauthorized},
		{"wrong secret", "/v1/layers/providers", "Bearer " + sign(t, "other", jwt.SigningMethodHS256, time.Now().Add(time.Hour)), http.StatusUnauthorized},
		{"expired", "/v1/layers/providers", "Bearer " + sign(t, "s3cret", jwt.SigningMethodHS256, time.Now().Add(-time.Hour)), http.StatusUnauthorized},
		{"wrong algorithm", "/v1/layers/providers", "Bearer " + sign(t, "s3cret", jwt.SigningMethodHS512, time.Now().Add(time.Hour)), http.StatusUnauthorized},
		{"valid", "/v1/layers/providers", "Bearer " + valid, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestSecure_CORS(t *testing.T) {
	h := newTestHandler(t).Secure(SecurityConfig{CORSOrigins: []string{"https://console.example.org"}})

	req := httptest.NewRequest(http.MethodOptions, "/v1/styles/providers", nil)
	req.Header.Set("Origin", "https://console.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://console.example.org" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected Allow-Origin for foreign origin: %q", got)
	}
}
