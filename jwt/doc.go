// Package jwt manages access-token issuance and verification with HS256 signing,
// strict validation semantics, and a previous-key fallback for signing-key rotation.
package jwt
