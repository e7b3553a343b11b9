package authcore

import (
	"context"
	"fmt"
	"time"
)

// SetupTOTP generates a fresh TOTP secret for the account and stages it as
// pending. The secret does not protect logins until [Engine.EnableTOTP]
// proves the user's authenticator produced a valid code for it. Calling
// SetupTOTP again before confirmation replaces the pending secret.
func (e *Engine) SetupTOTP(ctx context.Context, userID string) (*TOTPSetup, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	user, err := e.userStore.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	rec, err := e.userStore.GetTOTP(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec.Enabled {
		return nil, ErrMFAAlreadyEnabled
	}

	raw, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	encrypted, err := e.totp.encryptTOTPSecret(raw)
	if err != nil {
		return nil, fmt.Errorf("encrypt totp secret: %w", err)
	}

	if err := e.userStore.SetPendingTOTPSecret(ctx, userID, encrypted); err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventTOTPSetupRequested, true, userID, userID, "", nil, nil)

	return &TOTPSetup{
		SecretBase32: secretBase32,
		ProvisionURI: e.totp.ProvisionURI(secretBase32, user.Email),
	}, nil
}

// EnableTOTP promotes the pending secret staged by [Engine.SetupTOTP] once
// code proves the authenticator holds it. From here on logins require a
// second factor.
func (e *Engine) EnableTOTP(ctx context.Context, userID, code string) error {
	if err := e.ready(); err != nil {
		return err
	}

	rec, err := e.userStore.GetTOTP(ctx, userID)
	if err != nil {
		return err
	}
	if rec.Enabled {
		return ErrMFAAlreadyEnabled
	}
	if len(rec.PendingSecret) == 0 {
		return ErrMFANotConfigured
	}

	secret, err := e.totp.decryptTOTPSecret(rec.PendingSecret)
	if err != nil {
		return fmt.Errorf("decrypt pending totp secret: %w", err)
	}

	matched, step, err := e.totp.VerifyCode(secret, code, 0, time.Now())
	if err != nil {
		return err
	}
	if !matched {
		e.emitAudit(ctx, auditEventTOTPEnabled, false, userID, userID, "", ErrMFACodeInvalid, nil)
		return ErrMFACodeInvalid
	}

	if err := e.userStore.EnableTOTP(ctx, userID); err != nil {
		return err
	}
	if err := e.userStore.UpdateTOTPLastUsedStep(ctx, userID, step); err != nil {
		e.logger.Warn(ctx, "persisting totp replay floor failed", "user_id", userID, "error", err)
	}

	e.emitAudit(ctx, auditEventTOTPEnabled, true, userID, userID, "", nil, nil)
	return nil
}

// DisableTOTP turns the second factor off. The caller must present a code
// from the currently active secret so a hijacked access token alone cannot
// strip MFA from the account.
func (e *Engine) DisableTOTP(ctx context.Context, userID, code string) error {
	if err := e.ready(); err != nil {
		return err
	}

	user, err := e.userStore.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	matched, step, err := e.verifyTOTPForUser(ctx, user, code)
	if err != nil {
		return err
	}
	if !matched {
		e.emitAudit(ctx, auditEventTOTPDisabled, false, userID, userID, "", ErrMFACodeInvalid, nil)
		return ErrMFACodeInvalid
	}
	if err := e.userStore.UpdateTOTPLastUsedStep(ctx, userID, step); err != nil {
		e.logger.Warn(ctx, "persisting totp replay floor failed", "user_id", userID, "error", err)
	}

	if err := e.userStore.DisableTOTP(ctx, userID); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventTOTPDisabled, true, userID, userID, "", nil, nil)
	return nil
}
