package authcore

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventUserCreated        = "users.created"
	auditEventUserActivated      = "users.activated"
	auditEventUserApproved       = "users.approved"
	auditEventUserRejected       = "users.rejected"
	auditEventUserCleanup        = "users.cleanup"
	auditEventLoginSuccess       = "auth.login.success"
	auditEventLoginFailure       = "auth.login.failure"
	auditEventLoginRateLimited   = "auth.login.rate_limited"
	auditEventLoginLocked        = "auth.login.locked"
	auditEventLoginMFARequired   = "auth.login.mfa_required"
	auditEventLoginMFASuccess    = "auth.login.mfa_success"
	auditEventLoginMFAFailure    = "auth.login.mfa_failure"
	auditEventRefreshSuccess     = "auth.refresh.success"
	auditEventRefreshInvalid     = "auth.refresh.invalid"
	auditEventSessionReuse       = "sessions.reuse_detected"
	auditEventSessionRevoked     = "sessions.revoked"
	auditEventSessionRevokedAll  = "sessions.revoked_all"
	auditEventLogout             = "auth.logout"
	auditEventVerifyRequested    = "verification.requested"
	auditEventVerifyConfirmed    = "verification.confirmed"
	auditEventResetRequested     = "password_reset.requested"
	auditEventResetConfirmed     = "password_reset.confirmed"
	auditEventPasswordChanged    = "password.changed"
	auditEventTOTPSetupRequested = "mfa.totp.setup_requested"
	auditEventTOTPEnabled        = "mfa.totp.enabled"
	auditEventTOTPDisabled       = "mfa.totp.disabled"
)

// AuditErrorCode is the stable failure classifier attached to audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrNotApproved        AuditErrorCode = "not_approved"
	auditErrNotVerified        AuditErrorCode = "not_verified"
	auditErrForbidden          AuditErrorCode = "forbidden"
	auditErrNotFound           AuditErrorCode = "not_found"
	auditErrInvalidState       AuditErrorCode = "invalid_state"
	auditErrTokenInvalid       AuditErrorCode = "token_invalid"
	auditErrTokenConsumed      AuditErrorCode = "token_consumed"
	auditErrSessionReuse       AuditErrorCode = "session_reuse"
	auditErrSessionInvalid     AuditErrorCode = "session_invalid"
	auditErrMFAInvalid         AuditErrorCode = "mfa_invalid"
	auditErrMFAExceeded        AuditErrorCode = "mfa_attempts_exceeded"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
)

func auditErrorCode(err error) AuditErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountNotApproved):
		return auditErrNotApproved
	case errors.Is(err, ErrEmailNotVerified):
		return auditErrNotVerified
	case errors.Is(err, ErrForbidden):
		return auditErrForbidden
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrSessionNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrInvalidState):
		return auditErrInvalidState
	case errors.Is(err, ErrTokenConsumed):
		return auditErrTokenConsumed
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrTokenExpired):
		return auditErrTokenInvalid
	case errors.Is(err, ErrSessionReused):
		return auditErrSessionReuse
	case errors.Is(err, ErrSessionInvalid), errors.Is(err, ErrSessionExpired):
		return auditErrSessionInvalid
	case errors.Is(err, ErrMFAAttemptsExceeded):
		return auditErrMFAExceeded
	case errors.Is(err, ErrMFACodeInvalid), errors.Is(err, ErrMFAChallengeInvalid), errors.Is(err, ErrMFAChallengeExpired):
		return auditErrMFAInvalid
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrUnavailable):
		return auditErrUnavailable
	default:
		return "internal_error"
	}
}

// emitAudit forwards one event through the async dispatcher. metadataBuilder
// runs only when auditing is enabled so hot paths pay nothing for disabled
// audit.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	actorID string,
	targetID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		ActorID:   actorID,
		TargetID:  targetID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}
