// Package session provides the Redis-backed refresh-session registry used by
// the authentication hot paths.
//
// # Storage layout
//
// Each session is one Redis hash keyed by session ID; a per-user set indexes
// session IDs for listing and bulk revocation. Only the SHA-256 hash of the
// refresh secret is stored.
//
// # Rotation protocol
//
// [Store.Rotate] runs a Lua compare-and-swap: when the presented hash matches,
// the stored hash is replaced in the same script execution. Concurrent callers
// presenting the same token produce exactly one winner; every loser sees
// [ErrHashMismatch] and the session is revoked, which is what makes refresh
// token reuse detectable.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model.
// It does NOT mint tokens, evaluate roles, or enforce authentication policy —
// those responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import authcore or jwt (no upward imports).
//   - Perform application-level authorization decisions.
//   - Store raw refresh secrets in [Session] fields.
package session
