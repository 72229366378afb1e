// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidCredentials is returned for any failed login attempt.
// The same value covers an unknown username and a wrong password so
// callers cannot distinguish the two.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Sentinel duplicate errors returned by UserRepository.Create when the
// database rejects an insert on a unique constraint.
var (
	ErrDuplicateUsername = errors.New("username already taken")
	ErrDuplicateEmail    = errors.New("email already registered")
)

// FieldErrors maps form field names to human-readable messages. The
// reserved key "form" carries a top-level message that is not tied to
// a single field (terms not accepted, missing fields).
type FieldErrors map[string]string

// FormErrorKey is the FieldErrors key for top-level form messages.
const FormErrorKey = "form"

func (f FieldErrors) String() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+f[k])
	}
	return strings.Join(parts, "; ")
}

// ValidationError reports malformed registration input. Fields holds
// one message per offending field.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Fields)
}

// ConflictError reports a uniqueness violation at registration time.
// Fields names exactly the colliding fields (username, email, or both).
type ConflictError struct {
	Fields FieldErrors
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s", e.Fields)
}
