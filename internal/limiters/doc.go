// Package limiters provides domain-specific abuse guards layered above the
// internal/rate primitives.
//
// # Limiters
//
//   - [Lockout] — per-user failure counter with an escalating cooldown lock.
//   - [RequestThrottle] — fixed-window throttle for one-time-token request
//     endpoints (verification email, password reset).
//
// All limiters are nil-safe: calling any method on a nil receiver returns
// the zero outcome.
//
// # Architecture boundaries
//
// Each limiter owns its own Redis key namespace and error types. Policy
// thresholds come from Config structs supplied at construction time.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling internal package except internal/rate.
//   - Make policy decisions beyond counting — flow code decides consequences.
package limiters
