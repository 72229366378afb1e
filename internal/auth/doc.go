// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

// Package auth provides the authentication core for Gatekeep.
//
// # Domain Types
//
// Domain types (User, Session) should be created through the service
// layer rather than by direct struct initialization:
//   - Service.Register - validates, hashes, and persists a new User
//   - SessionStore.Create - issues a token and persists a Session
//
// # Services
//
// Service types coordinate domain operations:
//   - Service - registration, login, logout
//   - SessionStore - session issuance, resolution, and deletion across
//     the durable repository and the cache
//
// The durable repository is always authoritative. The cache is an
// accelerant: a cache miss or a cache outage never invalidates a
// session that the durable store still holds.
package auth
