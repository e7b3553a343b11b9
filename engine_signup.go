package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/retailstack/authcore/internal/otoken"
	"github.com/retailstack/authcore/internal/random"
	"github.com/retailstack/authcore/password"
)

// Signup registers a new account.
//
// System owners are approved and verified on creation: they bootstrap the
// installation and there is nobody to approve them. Every other role starts
// pending and, when email verification is enabled, unverified; such accounts
// cannot log in until both gates clear.
func (e *Engine) Signup(ctx context.Context, req SignupRequest) (*SignupResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	username := strings.TrimSpace(req.Username)
	if err := validateSignupIdentity(email, username); err != nil {
		return nil, err
	}

	role := req.Role
	if role == "" {
		role = RoleEmployee
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	hash, err := e.passwordHash.Hash(req.Password)
	if err != nil {
		if errors.Is(err, password.ErrPolicy) {
			return nil, fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	emailVerified := role == RoleSystemOwner || !e.config.EmailVerification.Enabled

	user, err := e.userStore.CreateUser(ctx, CreateUserInput{
		UserID:         uuid.NewString(),
		Email:          email,
		Username:       username,
		PasswordHash:   hash,
		Role:           role,
		ShopID:         req.ShopID,
		ApprovalStatus: roleInitialApproval[role],
		EmailVerified:  emailVerified,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateIdentity) {
			e.emitAudit(ctx, auditEventUserCreated, false, "", "", "", ErrDuplicateIdentity, func() map[string]string {
				return map[string]string{"identity": email}
			})
		}
		return nil, err
	}

	e.emitAudit(ctx, auditEventUserCreated, true, user.UserID, user.UserID, "", nil, func() map[string]string {
		return map[string]string{
			"role":   string(user.Role),
			"status": string(user.ApprovalStatus),
		}
	})

	// A system owner is born active: stamp activation right away.
	if user.Active() {
		if err := e.activateIfReady(ctx, user); err != nil {
			return nil, err
		}
	}

	result := &SignupResult{
		UserID:         user.UserID,
		Email:          user.Email,
		Username:       user.Username,
		Role:           user.Role,
		ApprovalStatus: user.ApprovalStatus,
	}

	if e.config.EmailVerification.Enabled && !user.EmailVerified {
		result.EmailVerificationRequired = true
		rawToken, err := e.issueOneTimeToken(ctx, otoken.PurposeEmailVerification, user.UserID, e.config.EmailVerification.TokenTTL)
		if err != nil {
			return nil, err
		}
		e.dispatchMail(user.Email, rawToken, otoken.PurposeEmailVerification)
		if e.config.exposeDebugTokens() {
			result.DebugToken = rawToken
		}
	}

	return result, nil
}

// activateIfReady stamps activated_at once the account becomes active. The
// store call is idempotent; only the first transition emits the audit event.
func (e *Engine) activateIfReady(ctx context.Context, user UserRecord) error {
	if !user.Active() {
		return nil
	}
	first, err := e.userStore.MarkActivated(ctx, user.UserID, time.Now())
	if err != nil {
		return err
	}
	if first {
		e.emitAudit(ctx, auditEventUserActivated, true, user.UserID, user.UserID, "", nil, nil)
	}
	return nil
}

// issueOneTimeToken mints a raw secret, stores only its hash, and returns
// the raw value for out-of-band delivery.
func (e *Engine) issueOneTimeToken(ctx context.Context, purpose otoken.Purpose, userID string, ttl time.Duration) (string, error) {
	raw, err := random.Token(32)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := e.tokens.Issue(ctx, purpose, userID, random.Hash(raw), ttl); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return raw, nil
}

// dispatchMail hands the raw token to the mailer off the request path. Mail
// failures are logged, never surfaced: the request already succeeded and the
// token can be re-requested.
func (e *Engine) dispatchMail(email, rawToken string, purpose otoken.Purpose) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var err error
		switch purpose {
		case otoken.PurposeEmailVerification:
			err = e.mailer.SendEmailVerification(ctx, email, rawToken)
		case otoken.PurposePasswordReset:
			err = e.mailer.SendPasswordReset(ctx, email, rawToken)
		}
		if err != nil {
			e.logger.Error(ctx, "outbound mail failed", "purpose", string(purpose), "err", err)
		}
	}()
}

func validateSignupIdentity(email, username string) error {
	if email == "" || !strings.Contains(email, "@") || strings.ContainsAny(email, " \t") {
		return fmt.Errorf("%w: invalid email", ErrInvalidIdentity)
	}
	if username == "" || len(username) < 3 || len(username) > 64 {
		return fmt.Errorf("%w: invalid username", ErrInvalidIdentity)
	}
	return nil
}
