// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

// Package httpapi implements the HTTP transport for the authentication
// service: the JSON endpoints under /api/auth and the access gate that
// guards protected routes.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/gatekeep/gatekeep/internal/auth"
)

// CookieConfig controls how the session cookie is issued.
type CookieConfig struct {
	// Name of the session cookie.
	Name string
	// MaxAge is the cookie lifetime. This is a transport-layer limit
	// and may be shorter than the session TTL, in which case the
	// browser drops the cookie before the durable session lapses.
	MaxAge time.Duration
	// Secure marks the cookie as HTTPS-only.
	Secure bool
}

// DefaultCookieConfig matches the original deployment: a 24-hour
// cookie carrying a session that outlives it on the server side.
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Name:   "session_token",
		MaxAge: 24 * time.Hour,
	}
}

// Server routes HTTP requests to the authentication service.
type Server struct {
	auth     *auth.Service
	sessions *auth.SessionStore
	gate     *Gate
	cookie   CookieConfig
	logger   *slog.Logger
}

// NewServer creates a Server wired to the given service. The gate may
// be nil, in which case no routes are protected.
func NewServer(svc *auth.Service, sessions *auth.SessionStore, gate *Gate, cookie CookieConfig, logger *slog.Logger) (*Server, error) {
	if svc == nil {
		return nil, oops.Errorf("auth service is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cookie.Name == "" {
		cookie = DefaultCookieConfig()
	}

	return &Server{
		auth:     svc,
		sessions: sessions,
		gate:     gate,
		cookie:   cookie,
		logger:   logger.With("component", "httpapi"),
	}, nil
}

// Handler returns the root http.Handler for the service.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.HandleFunc("GET /api/auth/me", s.handleMe)

	if s.gate == nil {
		return mux
	}
	return s.gate.Middleware(s.sessions, s.cookie.Name, mux)
}

// setSessionCookie issues the session cookie on the response.
func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie.Name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.cookie.MaxAge.Seconds()),
	})
}

// clearSessionCookie expires the session cookie on the response.
func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie.Name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
