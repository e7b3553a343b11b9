// Package rate provides the Redis-backed sliding-window limiter that guards
// credential-bearing endpoints before any password work happens.
//
// # Window semantics
//
// Sliding window over a sorted set of attempt timestamps: trim, count, and
// record run in one Lua script. A denied attempt is not recorded, so an
// attacker cannot extend a victim's window by hammering it. Key prefix:
//   - arl: — per (client IP, claimed identity) pair
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Be imported outside the authcore module.
package rate
