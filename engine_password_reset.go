package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/retailstack/authcore/internal/limiters"
	"github.com/retailstack/authcore/internal/otoken"
	"github.com/retailstack/authcore/password"
)

// RequestPasswordReset issues a reset token for the account behind identity
// and queues it for email dispatch. Like email verification requests the
// response is success-shaped for unknown accounts.
func (e *Engine) RequestPasswordReset(ctx context.Context, identity string) (*OneTimeTokenIssue, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	identity = strings.TrimSpace(identity)
	ip := clientIPFromContext(ctx)

	if err := e.resetThrottle.Check(ctx, identity, ip); err != nil {
		if errors.Is(err, limiters.ErrRequestRateLimited) {
			return nil, &RetryAfterError{Err: ErrRateLimited, RetryAfter: e.config.PasswordReset.RequestCooldown}
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	result := &OneTimeTokenIssue{}
	user, err := e.userStore.GetUserByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return result, nil
		}
		return nil, err
	}

	rawToken, err := e.issueOneTimeToken(ctx, otoken.PurposePasswordReset, user.UserID, e.config.PasswordReset.TokenTTL)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventResetRequested, true, user.UserID, user.UserID, "", nil, nil)
	e.dispatchMail(user.Email, rawToken, otoken.PurposePasswordReset)

	if e.config.exposeDebugTokens() {
		result.DebugToken = rawToken
	}
	return result, nil
}

// ConfirmPasswordReset consumes a reset token and replaces the account
// password. Every live session of the account is revoked and any lockout
// state is cleared, so the first login with the new password starts clean.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, rawToken, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}

	record, err := e.consumeOneTimeToken(ctx, otoken.PurposePasswordReset, rawToken)
	if err != nil {
		e.emitAudit(ctx, auditEventResetConfirmed, false, "", "", "", err, nil)
		return err
	}

	user, err := e.userStore.GetUserByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrTokenInvalid
		}
		return err
	}

	if err := e.replacePassword(ctx, user, newPassword); err != nil {
		return err
	}

	if err := e.lockout.Reset(ctx, user.UserID); err != nil {
		e.logger.Warn(ctx, "lockout reset after password reset failed", "user_id", user.UserID, "error", err)
	}

	e.emitAudit(ctx, auditEventResetConfirmed, true, user.UserID, user.UserID, "", nil, nil)
	return nil
}

// ChangePassword replaces the password of an authenticated account after
// re-proving the current one. All sessions except keepSessionID are revoked;
// pass an empty keepSessionID to revoke every session.
func (e *Engine) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, keepSessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	user, err := e.userStore.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := e.passwordHash.Verify(currentPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify current password: %w", err)
	}
	if !ok {
		e.emitAudit(ctx, auditEventPasswordChanged, false, userID, userID, "", ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	if err := e.replacePasswordKeeping(ctx, user, newPassword, keepSessionID); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventPasswordChanged, true, userID, userID, keepSessionID, nil, nil)
	return nil
}

// replacePassword hashes and stores a new password and revokes every
// session of the account.
func (e *Engine) replacePassword(ctx context.Context, user UserRecord, newPassword string) error {
	return e.replacePasswordKeeping(ctx, user, newPassword, "")
}

func (e *Engine) replacePasswordKeeping(ctx context.Context, user UserRecord, newPassword, keepSessionID string) error {
	newHash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		if errors.Is(err, password.ErrPolicy) {
			return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
		}
		return fmt.Errorf("hash new password: %w", err)
	}

	if err := e.userStore.UpdatePasswordHash(ctx, user.UserID, newHash); err != nil {
		return err
	}

	if err := e.revokeSessionsExcept(ctx, user.UserID, keepSessionID); err != nil {
		e.logger.Warn(ctx, "session revocation after password change failed", "user_id", user.UserID, "error", err)
	}
	return nil
}

func (e *Engine) revokeSessionsExcept(ctx context.Context, userID, keepSessionID string) error {
	if keepSessionID == "" {
		_, err := e.sessionStore.DeleteAllForUser(ctx, userID)
		return err
	}

	sessions, err := e.sessionStore.ListForUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if s.SessionID == keepSessionID {
			continue
		}
		if _, err := e.sessionStore.Delete(ctx, userID, s.SessionID); err != nil {
			return err
		}
	}
	return nil
}
