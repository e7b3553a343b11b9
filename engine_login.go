package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/retailstack/authcore/internal/rate"
)

// Login authenticates the identity (email or username) with a password.
//
// Guard order is deliberate: the sliding-window rate guard fires before any
// store lookup or password work, the lockout check fires before argon2, and
// activation gates are evaluated only after the password verified so their
// errors never leak account state to a guesser.
//
// When the account has TOTP enabled the result carries MFARequired and a
// challenge handle instead of tokens; complete with [Engine.ConfirmLoginMFA].
func (e *Engine) Login(ctx context.Context, identity, passwd string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	identity = strings.TrimSpace(identity)
	ip := clientIPFromContext(ctx)

	if retry, err := e.rateLimiter.Allow(ctx, ip, identity); err != nil {
		if !errors.Is(err, rate.ErrRateLimited) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", "", ErrRateLimited, func() map[string]string {
			return map[string]string{"identity": identity}
		})
		return nil, &RetryAfterError{Err: ErrRateLimited, RetryAfter: retry}
	}

	user, err := e.userStore.GetUserByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Unknown identity and wrong password must be indistinguishable.
			e.emitAudit(ctx, auditEventLoginFailure, false, "", "", "", ErrInvalidCredentials, func() map[string]string {
				return map[string]string{"identity": identity}
			})
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	locked, remaining, err := e.lockout.Status(ctx, user.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if locked {
		e.emitAudit(ctx, auditEventLoginLocked, false, user.UserID, user.UserID, "", ErrAccountLocked, nil)
		return nil, &RetryAfterError{Err: ErrAccountLocked, RetryAfter: remaining}
	}

	ok, err := e.passwordHash.Verify(passwd, user.PasswordHash)
	if err != nil || !ok {
		armed, lockErr := e.lockout.OnFailure(ctx, user.UserID)
		if lockErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, lockErr)
		}
		if armed {
			e.emitAudit(ctx, auditEventLoginLocked, false, user.UserID, user.UserID, "", ErrAccountLocked, nil)
		}
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, user.UserID, "", ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	if err := loginActivationGate(user); err != nil {
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, user.UserID, "", err, nil)
		return nil, err
	}

	e.maybeUpgradeHash(ctx, user, passwd)

	if user.TOTPEnabled {
		ch := mfaChallenge{UserID: user.UserID, Identity: identity, IP: ip}
		challengeID, err := e.mfaChallenges.Create(ctx, ch, e.config.TOTP.ChallengeTTL)
		if err != nil {
			return nil, err
		}
		e.emitAudit(ctx, auditEventLoginMFARequired, true, user.UserID, user.UserID, "", nil, nil)
		return &LoginResult{MFARequired: true, MFAChallenge: challengeID}, nil
	}

	return e.finishLogin(ctx, user, identity, ip)
}

// ConfirmLoginMFA completes a login that returned MFARequired by presenting
// a TOTP code against the issued challenge. Every call charges one attempt;
// burning the budget destroys the challenge and forces a fresh login.
func (e *Engine) ConfirmLoginMFA(ctx context.Context, challengeID, code string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	ch, err := e.mfaChallenges.Bump(ctx, challengeID, e.config.TOTP.ChallengeMaxAttempts)
	if err != nil {
		e.emitAudit(ctx, auditEventLoginMFAFailure, false, "", "", "", err, nil)
		return nil, err
	}

	user, err := e.userStore.GetUserByID(ctx, ch.UserID)
	if err != nil {
		return nil, err
	}

	matched, step, err := e.verifyTOTPForUser(ctx, user, code)
	if err != nil {
		return nil, err
	}
	if !matched {
		e.emitAudit(ctx, auditEventLoginMFAFailure, false, user.UserID, user.UserID, "", ErrMFACodeInvalid, nil)
		return nil, ErrMFACodeInvalid
	}

	if err := e.userStore.UpdateTOTPLastUsedStep(ctx, user.UserID, step); err != nil {
		return nil, err
	}
	_ = e.mfaChallenges.Delete(ctx, challengeID)

	e.emitAudit(ctx, auditEventLoginMFASuccess, true, user.UserID, user.UserID, "", nil, nil)

	// Reset with the identity and IP the first step was throttled under, not
	// whatever the confirm request arrived from.
	return e.finishLogin(ctx, user, ch.Identity, ch.IP)
}

// finishLogin is the shared success tail: clear abuse counters, stamp the
// login, mint tokens.
func (e *Engine) finishLogin(ctx context.Context, user UserRecord, identity, ip string) (*LoginResult, error) {
	if err := e.rateLimiter.Reset(ctx, ip, identity); err != nil {
		e.logger.Warn(ctx, "rate window reset failed", "err", err)
	}
	if err := e.lockout.Reset(ctx, user.UserID); err != nil {
		e.logger.Warn(ctx, "lockout reset failed", "err", err)
	}

	if err := e.userStore.RecordLogin(ctx, user.UserID, time.Now()); err != nil {
		return nil, err
	}

	result, err := e.issueSessionTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventLoginSuccess, true, user.UserID, user.UserID, result.SessionID, nil, nil)
	return result, nil
}

// verifyTOTPForUser decrypts the active secret and checks the code with the
// stored replay floor.
func (e *Engine) verifyTOTPForUser(ctx context.Context, user UserRecord, code string) (bool, int64, error) {
	record, err := e.userStore.GetTOTP(ctx, user.UserID)
	if err != nil {
		return false, 0, err
	}
	if !record.Enabled || len(record.Secret) == 0 {
		return false, 0, ErrMFANotConfigured
	}

	secret, err := e.totp.decryptTOTPSecret(record.Secret)
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	matched, step, err := e.totp.VerifyCode(secret, code, record.LastUsedStep, time.Now())
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return matched, step, nil
}

// maybeUpgradeHash transparently re-hashes on login when the stored hash was
// produced with weaker parameters. Best-effort: a failure here must not
// block the login.
func (e *Engine) maybeUpgradeHash(ctx context.Context, user UserRecord, passwd string) {
	needs, err := e.passwordHash.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return
	}
	newHash, err := e.passwordHash.Hash(passwd)
	if err != nil {
		return
	}
	if err := e.userStore.UpdatePasswordHash(ctx, user.UserID, newHash); err != nil {
		e.logger.Warn(ctx, "password hash upgrade failed", "user_id", user.UserID, "err", err)
	}
}

// loginActivationGate orders the post-password account gates. Rejected
// accounts are permanently forbidden; pending ones wait on approval; the
// verification gate fires last.
func loginActivationGate(user UserRecord) error {
	switch user.ApprovalStatus {
	case ApprovalRejected:
		return ErrForbidden
	case ApprovalPending:
		return ErrAccountNotApproved
	}
	if !user.EmailVerified {
		return ErrEmailNotVerified
	}
	return nil
}
