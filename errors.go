package authcore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDuplicateIdentity is returned by signup when the email or username is
	// already taken (case-insensitive, across both columns).
	ErrDuplicateIdentity = errors.New("email or username already exists")
	// ErrInvalidCredentials is the uniform credential failure: unknown
	// identity and wrong password are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRateLimited is returned when the sliding-window guard for an
	// (IP, identity) pair is exhausted. Usually wrapped in [*RetryAfterError].
	ErrRateLimited = errors.New("too many attempts")
	// ErrAccountLocked is returned while a per-user lockout cooldown is active.
	ErrAccountLocked = errors.New("account temporarily locked")
	// ErrAccountNotApproved gates login until a system owner approves the account.
	ErrAccountNotApproved = errors.New("account pending system owner approval")
	// ErrEmailNotVerified gates login until the verification token is consumed.
	ErrEmailNotVerified = errors.New("email verification required")
	// ErrForbidden is returned when the acting user lacks the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrUserNotFound is returned when the target user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidState is returned by the approval workflow when the target is
	// not in the pending state.
	ErrInvalidState = errors.New("user is not pending approval")
	// ErrInvalidRole is returned by signup for an unknown role value.
	ErrInvalidRole = errors.New("invalid account role")
	// ErrInvalidIdentity is returned by signup when the email or username is
	// malformed.
	ErrInvalidIdentity = errors.New("invalid email or username")
	// ErrPasswordPolicy is returned when a password fails the configured policy.
	ErrPasswordPolicy = errors.New("password policy violation")

	// ErrTokenInvalid is returned for an unknown or malformed one-time token.
	ErrTokenInvalid = errors.New("invalid or expired token")
	// ErrTokenExpired is returned when a one-time token exists but is past expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenConsumed is returned when a one-time token was already used.
	ErrTokenConsumed = errors.New("token already consumed")

	// ErrAccessTokenInvalid is returned by VerifyAccess for bad signatures,
	// malformed claims, or unknown signing keys.
	ErrAccessTokenInvalid = errors.New("invalid access token")
	// ErrAccessTokenExpired is returned by VerifyAccess past the token expiry.
	ErrAccessTokenExpired = errors.New("access token expired")

	// ErrSessionInvalid is returned when a refresh token does not match any
	// live session.
	ErrSessionInvalid = errors.New("invalid refresh session")
	// ErrSessionExpired is returned when the matched session is past expiry.
	ErrSessionExpired = errors.New("refresh session expired")
	// ErrSessionReused is returned when a rotated-out refresh token is
	// presented again. The whole session is revoked as a consequence.
	ErrSessionReused = errors.New("refresh token reuse detected")
	// ErrSessionNotFound is returned by session lookup and revocation.
	ErrSessionNotFound = errors.New("session not found")

	// ErrMFARequired signals that password verification succeeded but the
	// account requires a second factor; callers should present the challenge.
	ErrMFARequired = errors.New("mfa code required")
	// ErrMFACodeInvalid is returned for a wrong, drifted-out, or replayed code.
	ErrMFACodeInvalid = errors.New("invalid mfa code")
	// ErrMFANotConfigured is returned when a TOTP operation needs prior setup.
	ErrMFANotConfigured = errors.New("mfa not configured")
	// ErrMFAAlreadyEnabled is returned by EnableTOTP on a protected account.
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
	// ErrMFAChallengeInvalid is returned for an unknown login challenge id.
	ErrMFAChallengeInvalid = errors.New("mfa challenge invalid")
	// ErrMFAChallengeExpired is returned when the login challenge timed out.
	ErrMFAChallengeExpired = errors.New("mfa challenge expired")
	// ErrMFAAttemptsExceeded is returned when a challenge burned its attempt
	// budget; the caller must restart login.
	ErrMFAAttemptsExceeded = errors.New("mfa challenge attempts exceeded")

	// ErrUnavailable wraps datastore and backend failures. Requests fail as a
	// whole; no partial token issuance or state mutation is surfaced.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrEngineNotReady is returned when an Engine method is called on a
	// partially constructed engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// RetryAfterError decorates [ErrRateLimited] and [ErrAccountLocked] with the
// cooldown remaining. errors.Is still matches the underlying sentinel.
type RetryAfterError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("%v (retry after %s)", e.Err, e.RetryAfter.Round(time.Second))
}

func (e *RetryAfterError) Unwrap() error { return e.Err }

// RetryAfterHint extracts the cooldown from err, if it carries one.
func RetryAfterHint(err error) (time.Duration, bool) {
	var ra *RetryAfterError
	if errors.As(err, &ra) {
		return ra.RetryAfter, true
	}
	return 0, false
}
