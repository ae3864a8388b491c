// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/cors"
)

// SecurityConfig configures the middleware applied by Secure.
type SecurityConfig struct {
	// AuthSecret is the HS256 key of admin bearer tokens. Empty disables
	// authentication.
	AuthSecret string
	// CORSOrigins lists origins allowed to call the admin API. Empty
	// disables CORS handling.
	CORSOrigins []string
}

// Secure wraps h with token authentication on /v1/ routes and CORS.
func (h *Handler) Secure(cfg SecurityConfig) http.Handler {
	var next http.Handler = h
	if cfg.AuthSecret != "" {
		next = requireToken(next, []byte(cfg.AuthSecret), h.writeError)
	}
	if len(cfg.CORSOrigins) > 0 {
		next = cors.New(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		}).Handler(next)
	}
	return next
}

func requireToken(next http.Handler, secret []byte, writeError func(http.ResponseWriter, int, string, string)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/") {
			next.ServeHTTP(w, r)
			return
		}
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Missing bearer token")
			return
		}
		token, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
