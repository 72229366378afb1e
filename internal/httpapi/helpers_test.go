// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package httpapi_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/gatekeep/gatekeep/internal/auth"
	authcache "github.com/gatekeep/gatekeep/internal/auth/cache"
	"github.com/gatekeep/gatekeep/internal/httpapi"
)

// memUserRepo is an in-memory auth.UserRepository.
type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*auth.User

	getErr error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*auth.User)}
}

func (r *memUserRepo) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *user
	r.users[user.Username] = &copied
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
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

func (r *memUserRepo) GetByUsername(_ context.Context, username string) (*auth.User, error) {
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

func (r *memUserRepo) FindByUsernameOrEmail(_ context.Context, username, email string) ([]*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matches []*auth.User
	for _, u := range r.users {
		if u.Username == username || u.Email == email {
			copied := *u
			matches = append(matches, &copied)
		}
	}
	return matches, nil
}

// memSessionRepo is an in-memory auth.SessionRepository.
type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*auth.Session

	getErr error
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*auth.Session)}
}

func (r *memSessionRepo) Create(_ context.Context, session *auth.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *session
	r.sessions[session.Token] = &copied
	return nil
}

func (r *memSessionRepo) GetByToken(_ context.Context, token string) (*auth.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	session, ok := r.sessions[token]
	if !ok {
		return nil, auth.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (r *memSessionRepo) DeleteByToken(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, token)
	return nil
}

func (r *memSessionRepo) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var n int64
	for token, session := range r.sessions {
		if session.IsExpiredAt(now) {
			delete(r.sessions, token)
			n++
		}
	}
	return n, nil
}

// testEnv bundles everything a handler test needs.
type testEnv struct {
	handler     http.Handler
	users       *memUserRepo
	sessionRepo *memSessionRepo
	store       *auth.SessionStore
	redis       *miniredis.Miniredis
}

// newTestEnv wires a full Server over in-memory repos, a
// miniredis-backed cache, and a gate protecting /api/auth/me.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	users := newMemUserRepo()
	sessionRepo := newMemSessionRepo()

	store, err := auth.NewSessionStore(sessionRepo, authcache.NewSessionCache(client), nil)
	require.NoError(t, err)

	svc, err := auth.NewService(users, store, auth.NewArgon2idHasher(), nil)
	require.NoError(t, err)

	gate, err := httpapi.NewGate([]string{"/api/auth/me", "/app/**"})
	require.NoError(t, err)

	server, err := httpapi.NewServer(svc, store, gate, httpapi.DefaultCookieConfig(), nil)
	require.NoError(t, err)

	return &testEnv{
		handler:     server.Handler(),
		users:       users,
		sessionRepo: sessionRepo,
		store:       store,
		redis:       mr,
	}
}

// testUserID returns a fresh user id for session fixtures.
func testUserID(t *testing.T) ulid.ULID {
	t.Helper()
	return ulid.Make()
}

// sessionCookie extracts the session_token cookie from a response.
func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == "session_token" {
			return c
		}
	}
	return nil
}
