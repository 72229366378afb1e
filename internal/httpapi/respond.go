// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gatekeep/gatekeep/internal/auth"
	"github.com/gatekeep/gatekeep/pkg/errutil"
)

// Generic messages returned to clients. Internal detail stays in the
// logs; responses never reveal whether a username exists or what the
// store did.
const (
	msgInvalidCredentials = "Invalid username or password."
	msgUnauthorized       = "Authentication required."
	msgInvalidRequest     = "Invalid request body."
	msgInternal           = "An unexpected error occurred."
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // response write errors mean the client went away
	json.NewEncoder(w).Encode(v)
}

// writeMessage sends a generic failure body.
func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}

// writeFieldErrors sends a 400 with per-field detail so the client can
// annotate its form.
func writeFieldErrors(w http.ResponseWriter, fields auth.FieldErrors) {
	writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "errors": fields})
}

// writeServiceError maps a service-layer error onto the wire. Input
// and uniqueness problems carry field detail; everything else collapses
// to a generic message so internals never leak.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var validationErr *auth.ValidationError
	if errors.As(err, &validationErr) {
		writeFieldErrors(w, validationErr.Fields)
		return
	}

	var conflictErr *auth.ConflictError
	if errors.As(err, &conflictErr) {
		writeFieldErrors(w, conflictErr.Fields)
		return
	}

	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeMessage(w, http.StatusUnauthorized, msgInvalidCredentials)
		return
	}

	errutil.LogError(logger, "request failed", err)
	writeMessage(w, http.StatusInternalServerError, msgInternal)
}
