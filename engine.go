package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	internalaudit "github.com/retailstack/authcore/internal/audit"
	"github.com/retailstack/authcore/internal/limiters"
	"github.com/retailstack/authcore/internal/otoken"
	"github.com/retailstack/authcore/internal/random"
	"github.com/retailstack/authcore/internal/rate"
	"github.com/retailstack/authcore/jwt"
	"github.com/retailstack/authcore/logging"
	"github.com/retailstack/authcore/password"
	"github.com/retailstack/authcore/session"
)

// Engine is the authentication facade. Construct one through [NewBuilder];
// an Engine is immutable after Build and safe for concurrent use.
type Engine struct {
	config         Config
	logger         logging.Logger
	userStore      UserStore
	mailer         Mailer
	sessionStore   *session.Store
	rateLimiter    *rate.Limiter
	lockout        *limiters.Lockout
	verifyThrottle *limiters.RequestThrottle
	resetThrottle  *limiters.RequestThrottle
	tokens         *otoken.Store
	mfaChallenges  *mfaChallengeStore
	audit          *internalaudit.Dispatcher
	passwordHash   *password.Hasher
	totp           *totpManager
	jwtManager     *jwt.Manager
}

// Close drains the async audit dispatcher. It does not close the Redis
// client or the user store; the caller owns both.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped by a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// VerifyAccess validates an access token signature and expiry and returns
// its claims. It is purely local: no Redis or store round-trip, which is
// what keeps per-request authentication cheap. Session revocation therefore
// takes effect at the next refresh, bounded by the access TTL.
func (e *Engine) VerifyAccess(tokenStr string) (AccessClaims, error) {
	if e == nil || e.jwtManager == nil {
		return AccessClaims{}, ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseAccess(tokenStr)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return AccessClaims{}, ErrAccessTokenExpired
		}
		return AccessClaims{}, ErrAccessTokenInvalid
	}

	role := Role(claims.Role)
	if !role.Valid() {
		return AccessClaims{}, ErrAccessTokenInvalid
	}

	return AccessClaims{
		UserID:    claims.UID,
		Role:      role,
		SessionID: claims.SID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// issueSessionTokens creates a refresh session and mints the token pair.
// The raw refresh token is "<sessionID>.<secret>"; only the secret's hash
// reaches Redis.
func (e *Engine) issueSessionTokens(ctx context.Context, user UserRecord) (*LoginResult, error) {
	secret, err := random.Token(32)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	now := time.Now()
	sess := &session.Session{
		SessionID:   uuid.NewString(),
		UserID:      user.UserID,
		RefreshHash: random.Hash(secret),
		IPAddress:   clientIPFromContext(ctx),
		UserAgent:   userAgentFromContext(ctx),
		CreatedAt:   now,
		ExpiresAt:   now.Add(e.config.Session.RefreshTTL),
		LastUsedAt:  now,
	}

	if err := e.sessionStore.Save(ctx, sess, e.config.Session.RefreshTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	accessToken, err := e.jwtManager.CreateAccess(user.UserID, string(user.Role), sess.SessionID)
	if err != nil {
		// Do not leave a session behind that no client holds a token for.
		_, _ = e.sessionStore.Delete(ctx, user.UserID, sess.SessionID)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: sess.SessionID + "." + secret,
		SessionID:    sess.SessionID,
	}, nil
}

// loadActingUser resolves the acting user for privileged operations.
func (e *Engine) loadActingUser(ctx context.Context, actorID string) (UserRecord, error) {
	actor, err := e.userStore.GetUserByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return UserRecord{}, ErrForbidden
		}
		return UserRecord{}, err
	}
	return actor, nil
}

func (e *Engine) ready() error {
	if e == nil || e.userStore == nil || e.sessionStore == nil || e.jwtManager == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}
	return nil
}
