// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Service provides registration, login, and logout.
type Service struct {
	users    UserRepository
	sessions *SessionStore
	hasher   PasswordHasher
	logger   *slog.Logger
}

// NewService creates a new Service.
func NewService(users UserRepository, sessions *SessionStore, hasher PasswordHasher, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session store is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		logger:   logger,
	}, nil
}

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Register creates a new user account and an initial session.
// Returns the user, the session token, and any error. Malformed input
// yields a *ValidationError; a username or email collision yields a
// *ConflictError naming exactly the colliding fields.
func (s *Service) Register(ctx context.Context, form RegistrationForm, userAgent, ipAddress string) (*User, string, error) {
	if form.DisplayName == "" {
		form.DisplayName = form.Username
	}

	if fields := ValidateRegistration(form); fields != nil {
		Registrations.WithLabelValues(StatusRejected).Inc()
		return nil, "", &ValidationError{Fields: fields}
	}

	// Best-effort duplicate check ahead of the insert. Two concurrent
	// registrations can both pass it; the unique constraints below are
	// the final arbiter.
	existing, err := s.users.FindByUsernameOrEmail(ctx, form.Username, form.Email)
	if err != nil {
		Registrations.WithLabelValues(StatusError).Inc()
		return nil, "", oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "check existing user").
			Wrap(err)
	}
	if fields := conflictFields(existing, form.Username, form.Email); fields != nil {
		Registrations.WithLabelValues(StatusConflict).Inc()
		return nil, "", &ConflictError{Fields: fields}
	}

	hash, err := s.hasher.Hash(form.Password)
	if err != nil {
		Registrations.WithLabelValues(StatusError).Inc()
		return nil, "", oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	now := time.Now()
	user := &User{
		ID:           ulid.Make(),
		Username:     form.Username,
		DisplayName:  form.DisplayName,
		Email:        form.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		// A concurrent registration may have won the race past the
		// duplicate check. Map the constraint violation to the same
		// conflict contract.
		if fields := duplicateInsertFields(err); fields != nil {
			Registrations.WithLabelValues(StatusConflict).Inc()
			return nil, "", &ConflictError{Fields: fields}
		}
		Registrations.WithLabelValues(StatusError).Inc()
		return nil, "", oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "insert user").
			With("username", form.Username).
			Wrap(err)
	}

	token, err := s.sessions.Create(ctx, user.ID, userAgent, ipAddress)
	if err != nil {
		Registrations.WithLabelValues(StatusError).Inc()
		return nil, "", err
	}

	Registrations.WithLabelValues(StatusSuccess).Inc()
	s.logger.Info("user registered", "user_id", user.ID.String(), "username", user.Username)
	return user, token, nil
}

// Login authenticates a user and creates a session.
// Returns the user, the session token, and any error. A wrong password
// and an unknown username both yield an error wrapping
// ErrInvalidCredentials; password verification runs against a decoy
// hash for unknown usernames so the two cases are indistinguishable in
// timing as well as in response.
func (s *Service) Login(ctx context.Context, username, password, userAgent, ipAddress string) (*User, string, error) {
	user, lookupErr := s.users.GetByUsername(ctx, username)

	targetHash := dummyPasswordHash
	userExists := false

	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			Logins.WithLabelValues(StatusError).Inc()
			return nil, "", oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get user by username").
				Wrap(lookupErr)
		}
	} else {
		targetHash = user.PasswordHash
		userExists = true
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !userExists {
			Logins.WithLabelValues(StatusRejected).Inc()
			return nil, "", oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
		}
		Logins.WithLabelValues(StatusError).Inc()
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}

	if !userExists || !valid {
		Logins.WithLabelValues(StatusRejected).Inc()
		return nil, "", oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	}

	token, err := s.sessions.Create(ctx, user.ID, userAgent, ipAddress)
	if err != nil {
		Logins.WithLabelValues(StatusError).Inc()
		return nil, "", err
	}

	Logins.WithLabelValues(StatusSuccess).Inc()
	s.logger.Info("user logged in", "user_id", user.ID.String())
	return user, token, nil
}

// Logout invalidates the session identified by the token. Unknown
// tokens are a no-op.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

// conflictFields inspects the users returned by the duplicate check
// and names every colliding field. Returns nil when nothing collides.
func conflictFields(existing []*User, username, email string) FieldErrors {
	fields := FieldErrors{}
	for _, u := range existing {
		if u.Username == username {
			fields["username"] = "Username is already taken."
		}
		if u.Email == email {
			fields["email"] = "Email is already registered."
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// duplicateInsertFields maps a unique-violation error from the insert
// to the conflict field map. Returns nil for unrelated errors.
func duplicateInsertFields(err error) FieldErrors {
	switch {
	case errors.Is(err, ErrDuplicateUsername):
		return FieldErrors{"username": "Username is already taken."}
	case errors.Is(err, ErrDuplicateEmail):
		return FieldErrors{"email": "Email is already registered."}
	default:
		return nil
	}
}
