// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

// Package cache implements the session cache using Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/gatekeep/gatekeep/internal/auth"
)

// sessionKeyPrefix namespaces session entries in Redis.
const sessionKeyPrefix = "session:"

// connectAttempts bounds the startup ping probe.
const connectAttempts = 5

// sessionEntry is the JSON payload stored per token.
type sessionEntry struct {
	UserID string `json:"user_id"`
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Connect creates a Redis client and verifies connectivity with an
// exponential-backoff ping probe.
func Connect(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	backoff := retry.WithMaxRetries(connectAttempts, retry.NewExponential(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = client.Close() //nolint:errcheck // connect failure takes precedence
		return nil, oops.Code("CACHE_CONNECT_FAILED").
			With("addr", opts.Addr).
			Wrap(err)
	}

	return client, nil
}

// SessionCache implements auth.SessionCache using Redis.
type SessionCache struct {
	client *redis.Client
}

// NewSessionCache creates a SessionCache over the given client.
func NewSessionCache(client *redis.Client) *SessionCache {
	return &SessionCache{client: client}
}

// Put stores the token -> user mapping with the given TTL.
func (c *SessionCache) Put(ctx context.Context, token string, userID ulid.ULID, ttl time.Duration) error {
	if ttl <= 0 {
		return oops.Code("CACHE_INVALID_TTL").Errorf("ttl must be positive, got %s", ttl)
	}

	payload, err := json.Marshal(sessionEntry{UserID: userID.String()})
	if err != nil {
		return oops.Code("CACHE_ENCODE_FAILED").Wrap(err)
	}

	if err := c.client.Set(ctx, sessionKeyPrefix+token, payload, ttl).Err(); err != nil {
		return oops.Code("CACHE_SET_FAILED").
			With("operation", "set session entry").
			Wrap(err)
	}
	return nil
}

// Get returns the cached user for the token. The second return is
// false on a cache miss.
func (c *SessionCache) Get(ctx context.Context, token string) (ulid.ULID, bool, error) {
	payload, err := c.client.Get(ctx, sessionKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return ulid.ULID{}, false, nil
	}
	if err != nil {
		return ulid.ULID{}, false, oops.Code("CACHE_GET_FAILED").
			With("operation", "get session entry").
			Wrap(err)
	}

	var entry sessionEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return ulid.ULID{}, false, oops.Code("CACHE_DECODE_FAILED").Wrap(err)
	}

	userID, err := ulid.Parse(entry.UserID)
	if err != nil {
		return ulid.ULID{}, false, oops.Code("CACHE_INVALID_USER_ID").
			With("user_id", entry.UserID).
			Wrap(err)
	}

	return userID, true, nil
}

// Delete removes the cache entry for the token. Deleting an absent
// entry is a no-op.
func (c *SessionCache) Delete(ctx context.Context, token string) error {
	if err := c.client.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
		return oops.Code("CACHE_DEL_FAILED").
			With("operation", "delete session entry").
			Wrap(err)
	}
	return nil
}

// Compile-time interface check.
var _ auth.SessionCache = (*SessionCache)(nil)
