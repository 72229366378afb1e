// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gobwas/glob"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatekeep/gatekeep/internal/auth"
)

type contextKey string

const userIDContextKey contextKey = "user_id"

// UserIDFrom returns the authenticated user's id attached by the gate,
// if any.
func UserIDFrom(ctx context.Context) (ulid.ULID, bool) {
	id, ok := ctx.Value(userIDContextKey).(ulid.ULID)
	return id, ok
}

// Gate guards a configured set of route patterns. Listed routes
// require a valid session (fail closed); everything else passes
// through untouched (fail open).
type Gate struct {
	patterns []glob.Glob
}

// NewGate compiles the protected-route patterns. Patterns use glob
// syntax with '/' as the separator, so "/app/*" matches one path
// segment and "/app/**" matches any depth.
func NewGate(patterns []string) (*Gate, error) {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, oops.
				Code("GATE_INVALID_PATTERN").
				With("pattern", p).
				Wrap(err)
		}
		compiled = append(compiled, g)
	}
	return &Gate{patterns: compiled}, nil
}

// Protects reports whether the path matches any configured pattern.
func (g *Gate) Protects(path string) bool {
	for _, p := range g.patterns {
		if p.Match(path) {
			return true
		}
	}
	return false
}

// Middleware resolves the session cookie on protected routes and
// attaches the owning user's id to the request context. Requests with
// no cookie, or a token the store cannot resolve, are rejected.
func (g *Gate) Middleware(sessions *auth.SessionStore, cookieName string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Protects(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(cookieName)
		if err != nil || cookie.Value == "" {
			writeMessage(w, http.StatusUnauthorized, msgUnauthorized)
			return
		}

		userID, err := sessions.Resolve(r.Context(), cookie.Value)
		if errors.Is(err, auth.ErrNotFound) {
			writeMessage(w, http.StatusUnauthorized, msgUnauthorized)
			return
		}
		if err != nil {
			writeMessage(w, http.StatusInternalServerError, msgInternal)
			return
		}

		ctx := context.WithValue(r.Context(), userIDContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
