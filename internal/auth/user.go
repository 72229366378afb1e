// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// User represents a registered account.
type User struct {
	ID           ulid.ULID
	Username     string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user. Returns an error wrapping
	// ErrDuplicateUsername or ErrDuplicateEmail when the database
	// rejects the insert on a unique constraint.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByUsername retrieves a user by username.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// FindByUsernameOrEmail returns every user whose username or email
	// matches, in a single query. Used for the pre-insert duplicate
	// check; an empty slice means no collision.
	FindByUsernameOrEmail(ctx context.Context, username, email string) ([]*User, error)
}
