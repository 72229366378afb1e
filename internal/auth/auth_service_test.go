// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package auth_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatekeep/gatekeep/internal/auth"
)

// fakeUserRepo is an in-memory UserRepository.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*auth.User // keyed by username

	createErr error
	findErr   error
	getErr    error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*auth.User)}
}

func (r *fakeUserRepo) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if _, ok := r.users[user.Username]; ok {
		return fmt.Errorf("insert users: %w", auth.ErrDuplicateUsername)
	}
	for _, u := range r.users {
		if u.Email == user.Email {
			return fmt.Errorf("insert users: %w", auth.ErrDuplicateEmail)
		}
	}
	copied := *user
	r.users[user.Username] = &copied
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			copied := *u
			return &copied, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *fakeUserRepo) GetByUsername(_ context.Context, username string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	u, ok := r.users[username]
	if !ok {
		return nil, auth.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *fakeUserRepo) FindByUsernameOrEmail(_ context.Context, username, email string) ([]*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	var matches []*auth.User
	for _, u := range r.users {
		if u.Username == username || u.Email == email {
			copied := *u
			matches = append(matches, &copied)
		}
	}
	return matches, nil
}

// newTestService wires a Service over fakes and a miniredis-backed
// session store.
func newTestService(t *testing.T) (*auth.Service, *fakeUserRepo, *auth.SessionStore) {
	t.Helper()

	store, _, _ := newTestStore(t)
	userRepo := newFakeUserRepo()

	svc, err := auth.NewService(userRepo, store, auth.NewArgon2idHasher(), nil)
	require.NoError(t, err)

	return svc, userRepo, store
}

func TestServiceRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("creates user and session", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		user, token, err := svc.Register(ctx, validForm(), "agent", "192.0.2.1")
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "alice01", user.Username)
		assert.Equal(t, "Alice", user.DisplayName)
		assert.NotEmpty(t, user.PasswordHash)
		assert.NotEqual(t, "Abcd123!", user.PasswordHash)
		assert.Len(t, token, auth.SessionTokenBytes*2)
	})

	t.Run("registration session resolves immediately", func(t *testing.T) {
		svc, _, store := newTestService(t)

		user, token, err := svc.Register(ctx, validForm(), "", "")
		require.NoError(t, err)

		got, err := store.Resolve(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got)
	})

	t.Run("empty display name defaults to username", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		form := validForm()
		form.DisplayName = ""

		user, _, err := svc.Register(ctx, form, "", "")
		require.NoError(t, err)
		assert.Equal(t, "alice01", user.DisplayName)
	})

	t.Run("invalid form yields ValidationError", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		form := validForm()
		form.Password = "short1"
		form.ConfirmPassword = "short1"

		_, _, err := svc.Register(ctx, form, "", "")
		var validationErr *auth.ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Contains(t, validationErr.Fields, "password")
	})

	t.Run("duplicate username yields ConflictError", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		_, _, err := svc.Register(ctx, validForm(), "", "")
		require.NoError(t, err)

		form := validForm()
		form.Email = "other@b.com"

		_, _, err = svc.Register(ctx, form, "", "")
		var conflictErr *auth.ConflictError
		require.ErrorAs(t, err, &conflictErr)
		assert.Contains(t, conflictErr.Fields, "username")
		assert.NotContains(t, conflictErr.Fields, "email")
	})

	t.Run("duplicate email yields ConflictError", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		_, _, err := svc.Register(ctx, validForm(), "", "")
		require.NoError(t, err)

		form := validForm()
		form.Username = "bob01"

		_, _, err = svc.Register(ctx, form, "", "")
		var conflictErr *auth.ConflictError
		require.ErrorAs(t, err, &conflictErr)
		assert.Contains(t, conflictErr.Fields, "email")
		assert.NotContains(t, conflictErr.Fields, "username")
	})

	t.Run("username and email colliding with different users both flagged", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		_, _, err := svc.Register(ctx, validForm(), "", "")
		require.NoError(t, err)

		second := validForm()
		second.Username = "bob01"
		second.Email = "bob@b.com"
		_, _, err = svc.Register(ctx, second, "", "")
		require.NoError(t, err)

		// alice01's username, bob's email.
		third := validForm()
		third.Email = "bob@b.com"

		_, _, err = svc.Register(ctx, third, "", "")
		var conflictErr *auth.ConflictError
		require.ErrorAs(t, err, &conflictErr)
		assert.Contains(t, conflictErr.Fields, "username")
		assert.Contains(t, conflictErr.Fields, "email")
	})

	t.Run("insert race maps constraint violation to ConflictError", func(t *testing.T) {
		svc, userRepo, _ := newTestService(t)
		userRepo.createErr = fmt.Errorf("insert users: %w", auth.ErrDuplicateUsername)

		_, _, err := svc.Register(ctx, validForm(), "", "")
		var conflictErr *auth.ConflictError
		require.ErrorAs(t, err, &conflictErr)
		assert.Contains(t, conflictErr.Fields, "username")
	})

	t.Run("duplicate-check failure surfaces as internal error", func(t *testing.T) {
		svc, userRepo, _ := newTestService(t)
		userRepo.findErr = assert.AnError

		_, _, err := svc.Register(ctx, validForm(), "", "")
		require.Error(t, err)

		var validationErr *auth.ValidationError
		var conflictErr *auth.ConflictError
		assert.False(t, errors.As(err, &validationErr))
		assert.False(t, errors.As(err, &conflictErr))
	})
}

func TestServiceLogin(t *testing.T) {
	ctx := context.Background()

	register := func(t *testing.T, svc *auth.Service) *auth.User {
		t.Helper()
		user, _, err := svc.Register(ctx, validForm(), "", "")
		require.NoError(t, err)
		return user
	}

	t.Run("valid credentials create a session", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		registered := register(t, svc)

		user, token, err := svc.Login(ctx, "alice01", "Abcd123!", "agent", "192.0.2.1")
		require.NoError(t, err)
		assert.Equal(t, registered.ID, user.ID)
		assert.Len(t, token, auth.SessionTokenBytes*2)
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		register(t, svc)

		_, _, err := svc.Login(ctx, "alice01", "Wrong123!", "", "")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("unknown username is rejected identically", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		register(t, svc)

		wrongPassErr := func() error {
			_, _, err := svc.Login(ctx, "alice01", "Wrong123!", "", "")
			return err
		}()
		unknownUserErr := func() error {
			_, _, err := svc.Login(ctx, "nobody", "Wrong123!", "", "")
			return err
		}()

		require.ErrorIs(t, wrongPassErr, auth.ErrInvalidCredentials)
		require.ErrorIs(t, unknownUserErr, auth.ErrInvalidCredentials)
		assert.Equal(t, wrongPassErr.Error(), unknownUserErr.Error())
	})

	t.Run("lookup failure is not a credential error", func(t *testing.T) {
		svc, userRepo, _ := newTestService(t)
		userRepo.getErr = assert.AnError

		_, _, err := svc.Login(ctx, "alice01", "Abcd123!", "", "")
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrInvalidCredentials)
	})
}

func TestServiceLogout(t *testing.T) {
	ctx := context.Background()

	t.Run("invalidates the session", func(t *testing.T) {
		svc, _, store := newTestService(t)

		_, token, err := svc.Register(ctx, validForm(), "", "")
		require.NoError(t, err)

		require.NoError(t, svc.Logout(ctx, token))

		_, err = store.Resolve(ctx, token)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("unknown token is a no-op", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		assert.NoError(t, svc.Logout(ctx, "no-such-token"))
	})
}
