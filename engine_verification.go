package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/retailstack/authcore/internal/limiters"
	"github.com/retailstack/authcore/internal/otoken"
	"github.com/retailstack/authcore/internal/random"
)

// RequestEmailVerification issues a fresh verification token for the account
// behind identity and queues it for email dispatch.
//
// The response is success-shaped whether or not the account exists, is
// already verified, or verification is disabled: the endpoint must not be a
// membership oracle. Only the request throttle produces a visible error.
func (e *Engine) RequestEmailVerification(ctx context.Context, identity string) (*OneTimeTokenIssue, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	identity = strings.TrimSpace(identity)
	ip := clientIPFromContext(ctx)

	if err := e.verifyThrottle.Check(ctx, identity, ip); err != nil {
		if errors.Is(err, limiters.ErrRequestRateLimited) {
			return nil, &RetryAfterError{Err: ErrRateLimited, RetryAfter: e.config.EmailVerification.RequestCooldown}
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	result := &OneTimeTokenIssue{}
	if !e.config.EmailVerification.Enabled {
		return result, nil
	}

	user, err := e.userStore.GetUserByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return result, nil
		}
		return nil, err
	}
	if user.EmailVerified {
		return result, nil
	}

	rawToken, err := e.issueOneTimeToken(ctx, otoken.PurposeEmailVerification, user.UserID, e.config.EmailVerification.TokenTTL)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventVerifyRequested, true, user.UserID, user.UserID, "", nil, nil)
	e.dispatchMail(user.Email, rawToken, otoken.PurposeEmailVerification)

	if e.config.exposeDebugTokens() {
		result.DebugToken = rawToken
	}
	return result, nil
}

// ConfirmEmailVerification consumes a verification token and marks the
// account verified. Consumption is exactly-once: a replayed token reports
// [ErrTokenConsumed], and when approval already happened the confirmation
// activates the account.
func (e *Engine) ConfirmEmailVerification(ctx context.Context, rawToken string) (UserRecord, error) {
	if err := e.ready(); err != nil {
		return UserRecord{}, err
	}

	record, err := e.consumeOneTimeToken(ctx, otoken.PurposeEmailVerification, rawToken)
	if err != nil {
		e.emitAudit(ctx, auditEventVerifyConfirmed, false, "", "", "", err, nil)
		return UserRecord{}, err
	}

	user, err := e.userStore.SetEmailVerified(ctx, record.UserID)
	if err != nil {
		return UserRecord{}, err
	}

	e.emitAudit(ctx, auditEventVerifyConfirmed, true, user.UserID, user.UserID, "", nil, nil)

	if err := e.activateIfReady(ctx, user); err != nil {
		return UserRecord{}, err
	}

	return user, nil
}

// consumeOneTimeToken maps the store's consume-once outcomes onto the public
// error taxonomy and enforces record expiry independently of key TTL.
func (e *Engine) consumeOneTimeToken(ctx context.Context, purpose otoken.Purpose, rawToken string) (*otoken.Record, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, ErrTokenInvalid
	}

	record, err := e.tokens.Consume(ctx, purpose, random.Hash(rawToken))
	if err != nil {
		switch {
		case errors.Is(err, otoken.ErrNotFound):
			return nil, ErrTokenInvalid
		case errors.Is(err, otoken.ErrConsumed):
			return nil, ErrTokenConsumed
		default:
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	if time.Now().After(record.ExpiresAt) {
		return nil, ErrTokenExpired
	}
	return record, nil
}
