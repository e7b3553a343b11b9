package authcore

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/retailstack/authcore/internal/random"
	"github.com/retailstack/authcore/session"
)

// Refresh rotates a refresh token and mints a fresh token pair.
//
// Rotation is single-winner: of any number of concurrent presentations of
// the same token exactly one succeeds. Everyone else, including a thief
// replaying an already-rotated token, observes [ErrSessionReused] with the
// session revoked, so neither the thief nor the victim keeps access.
//
// Account eligibility is re-checked on every rotation; an account that was
// rejected, locked out of approval, or unverified since login cannot keep a
// session alive past its access-token expiry.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	sessionID, secret, err := splitRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	nextSecret, err := random.Token(32)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	res, err := e.sessionStore.Rotate(ctx, sessionID, random.Hash(secret), random.Hash(nextSecret))
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", sessionID, ErrSessionInvalid, nil)
			return nil, ErrSessionInvalid
		case errors.Is(err, session.ErrExpired):
			e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, res.UserID, sessionID, ErrSessionExpired, nil)
			return nil, ErrSessionExpired
		case errors.Is(err, session.ErrHashMismatch):
			e.emitAudit(ctx, auditEventSessionReuse, false, res.UserID, res.UserID, sessionID, ErrSessionReused, nil)
			e.logger.Warn(ctx, "refresh token reuse detected", "session_id", sessionID, "user_id", res.UserID)
			return nil, ErrSessionReused
		default:
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	user, err := e.userStore.GetUserByID(ctx, res.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_, _ = e.sessionStore.Delete(ctx, res.UserID, sessionID)
			return nil, ErrSessionInvalid
		}
		return nil, err
	}

	if err := loginActivationGate(user); err != nil {
		// Eligibility revoked since login: the session dies with it.
		_, _ = e.sessionStore.Delete(ctx, user.UserID, sessionID)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, user.UserID, user.UserID, sessionID, err, nil)
		return nil, err
	}

	accessToken, err := e.jwtManager.CreateAccess(user.UserID, string(user.Role), sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	e.emitAudit(ctx, auditEventRefreshSuccess, true, user.UserID, user.UserID, sessionID, nil, nil)

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: sessionID + "." + nextSecret,
		SessionID:    sessionID,
	}, nil
}

// Logout revokes the session behind a refresh token. The token must still
// match the session; a stale or foreign token cannot log anyone out.
// Logging out an already-dead session succeeds silently.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if err := e.ready(); err != nil {
		return err
	}

	sessionID, secret, err := splitRefreshToken(refreshToken)
	if err != nil {
		return err
	}

	sess, err := e.sessionStore.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrExpired) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	providedHash := random.Hash(secret)
	if subtle.ConstantTimeCompare([]byte(providedHash), []byte(sess.RefreshHash)) != 1 {
		return ErrSessionInvalid
	}

	if _, err := e.sessionStore.Delete(ctx, sess.UserID, sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	e.emitAudit(ctx, auditEventLogout, true, sess.UserID, sess.UserID, sessionID, nil, nil)
	return nil
}

// splitRefreshToken separates the "<sessionID>.<secret>" wire format.
func splitRefreshToken(refreshToken string) (sessionID, secret string, err error) {
	sessionID, secret, ok := strings.Cut(refreshToken, ".")
	if !ok || sessionID == "" || secret == "" {
		return "", "", ErrSessionInvalid
	}
	return sessionID, secret, nil
}
