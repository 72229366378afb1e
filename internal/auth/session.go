// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatekeep/gatekeep/pkg/errutil"
)

// Session token configuration.
const (
	SessionTokenBytes = 48              // 48 bytes = 96 hex chars
	SessionTTL        = 144 * time.Hour // fixed session lifetime
)

// Session represents an issued session. Sessions are read-only once
// created: expiry is derived from ExpiresAt at read time, never
// written back.
type Session struct {
	Token     string
	UserID    ulid.ULID
	UserAgent string
	IPAddress string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return s.IsExpiredAt(time.Now())
}

// IsExpiredAt returns true if the session would be expired at the given time.
// Useful for testing with deterministic time values.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return t.After(s.ExpiresAt)
}

// GenerateSessionToken creates a secure random session token.
// The token carries SessionTokenBytes bytes of entropy, hex-encoded.
func GenerateSessionToken() (string, error) {
	buf := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}
	return hex.EncodeToString(buf), nil
}

// SessionRepository manages durable session persistence.
type SessionRepository interface {
	// Create stores a new session record.
	Create(ctx context.Context, session *Session) error

	// GetByToken retrieves a session by token. Returns an error
	// wrapping ErrNotFound when no record exists.
	GetByToken(ctx context.Context, token string) (*Session, error)

	// DeleteByToken removes every record matching the token. Deleting
	// an absent token is not an error.
	DeleteByToken(ctx context.Context, token string) error

	// DeleteExpired removes all expired sessions and returns the count
	// of deleted records.
	DeleteExpired(ctx context.Context) (int64, error)
}

// SessionCache is the expiring-key cache in front of the durable
// repository. Implementations must treat every operation as
// best-effort: errors are reported but never block the caller.
type SessionCache interface {
	// Put stores the token -> user mapping with the given TTL.
	Put(ctx context.Context, token string, userID ulid.ULID, ttl time.Duration) error

	// Get returns the cached user for the token. The second return is
	// false on a cache miss.
	Get(ctx context.Context, token string) (ulid.ULID, bool, error)

	// Delete removes the cache entry for the token.
	Delete(ctx context.Context, token string) error
}

// SessionStore issues, resolves, and deletes sessions across the
// durable repository and the cache.
//
// The durable record is authoritative. Resolve trusts a cache hit
// without re-checking expiry: entries are written with a TTL equal to
// the remaining session lifetime, so a hit is by construction
// unexpired. On a miss the durable record is consulted and, when still
// valid, the cache is repopulated with the remaining TTL (cache-aside).
type SessionStore struct {
	sessions SessionRepository
	cache    SessionCache
	ttl      time.Duration
	logger   *slog.Logger
}

// NewSessionStore creates a SessionStore over the given repository and
// cache. A nil logger falls back to slog.Default.
func NewSessionStore(sessions SessionRepository, cache SessionCache, logger *slog.Logger) (*SessionStore, error) {
	if sessions == nil {
		return nil, oops.Errorf("session repository is required")
	}
	if cache == nil {
		return nil, oops.Errorf("session cache is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{
		sessions: sessions,
		cache:    cache,
		ttl:      SessionTTL,
		logger:   logger,
	}, nil
}

// Create issues a new session for the user and returns its token.
// The durable write must succeed; a cache write failure is logged and
// otherwise ignored, since the durable record alone makes the token
// valid.
func (s *SessionStore) Create(ctx context.Context, userID ulid.ULID, userAgent, ipAddress string) (string, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return "", oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}

	token, err := GenerateSessionToken()
	if err != nil {
		return "", err
	}

	now := time.Now()
	session := &Session{
		Token:     token,
		UserID:    userID,
		UserAgent: userAgent,
		IPAddress: ipAddress,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "persist session").
			With("user_id", userID.String()).
			Wrap(err)
	}

	if err := s.cache.Put(ctx, token, userID, s.ttl); err != nil {
		errutil.LogError(s.logger, "session cache write failed", err)
	}

	return token, nil
}

// Resolve returns the user ID owning the token. Returns an error
// wrapping ErrNotFound when the token is unknown or the session has
// expired.
func (s *SessionStore) Resolve(ctx context.Context, token string) (ulid.ULID, error) {
	if token == "" {
		return ulid.ULID{}, oops.Code("SESSION_TOKEN_EMPTY").Wrap(ErrNotFound)
	}

	userID, ok, err := s.cache.Get(ctx, token)
	if err != nil {
		SessionCacheLookups.WithLabelValues(StatusCacheError).Inc()
		errutil.LogError(s.logger, "session cache read failed", err)
	} else if ok {
		SessionCacheLookups.WithLabelValues(StatusCacheHit).Inc()
		return userID, nil
	} else {
		SessionCacheLookups.WithLabelValues(StatusCacheMiss).Inc()
	}

	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ulid.ULID{}, oops.Code("SESSION_INVALID").Wrap(ErrNotFound)
		}
		return ulid.ULID{}, oops.Code("SESSION_RESOLVE_FAILED").
			With("operation", "get session by token").
			Wrap(err)
	}

	now := time.Now()
	if session.IsExpiredAt(now) {
		return ulid.ULID{}, oops.Code("SESSION_EXPIRED").Wrap(ErrNotFound)
	}

	// Self-heal the cold cache with the remaining lifetime.
	if err := s.cache.Put(ctx, token, session.UserID, session.ExpiresAt.Sub(now)); err != nil {
		errutil.LogError(s.logger, "session cache repopulation failed", err)
	}

	return session.UserID, nil
}

// Delete removes the session from both stores. Both deletes are
// attempted even if one fails; only a durable-store failure is
// returned. Deleting an unknown token is a no-op.
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	repoErr := s.sessions.DeleteByToken(ctx, token)

	if err := s.cache.Delete(ctx, token); err != nil {
		errutil.LogError(s.logger, "session cache delete failed", err)
	}

	if repoErr != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session by token").
			Wrap(repoErr)
	}
	return nil
}

// SweepExpired removes expired durable records. Matching cache entries
// expire on their own; the sweep only reclaims table space.
func (s *SessionStore) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, oops.Code("SESSION_SWEEP_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	SessionsSwept.Add(float64(n))
	return n, nil
}

// RunJanitor sweeps expired sessions at the given interval until the
// context is cancelled. Sweep failures are logged and the loop
// continues.
func (s *SessionStore) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepExpired(ctx)
			if err != nil {
				errutil.LogError(s.logger, "session sweep failed", err)
				continue
			}
			if n > 0 {
				s.logger.Info("swept expired sessions", "count", n)
			}
		}
	}
}
