// Package authcore is the authentication and session security engine behind
// the retailstack inventory backend. It owns the account lifecycle
// (signup, email verification, system-owner approval, activation), credential
// verification with brute-force defenses, rotating refresh-token sessions,
// one-time tokens for email verification and password reset, and TOTP-based
// multi-factor authentication.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the [UserStore] persistence contract, and value types (LoginResult,
// SessionInfo, etc.). Internal coordination — one-time token storage, rate
// limiting, lockout counters, audit dispatch — lives under internal/ and is
// never exported. Reusable primitives (access-token codec, argon2id hashing,
// the Redis session registry) are public subpackages.
//
// The engine deliberately does not own HTTP framing, email transport, or the
// relational schema beyond what store/postgres ships: callers plug those in
// at the boundary ([Mailer], [UserStore], [AuditSink]).
//
// # Consistency contract
//
// The three adversarial-facing mutations — refresh-token rotation, one-time
// token consumption, and rate/lockout counter increments — each execute as a
// single Redis script, so concurrent attackers observe exactly one winner.
// Access-token verification is purely local and never touches shared state.
package authcore
