// Package otoken stores one-time tokens for email verification and password
// reset flows.
//
// # Consume-once protocol
//
// Records are keyed by the SHA-256 of the raw secret; the raw secret is never
// stored. [Store.Consume] swaps the record for a tombstone in a single Lua
// execution, so concurrent presentations of the same token yield exactly one
// winner. The tombstone lingers so a replay reports "already consumed"
// instead of "unknown token".
//
// # What this package must NOT do
//
//   - Generate or email raw tokens — the Engine owns both.
//   - Import authcore or any sibling internal package.
package otoken
