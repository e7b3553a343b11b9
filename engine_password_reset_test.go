package authcore

import (
	"context"
	"errors"
	"testing"
)

func TestPasswordResetFlow(t *testing.T) {
	_, rdb := newTestRedis(t)
	engine, store := newTestEngine(t, rdb, testConfig())
	ctx := context.Background()

	signupActiveUser(t, engine, store, "alice@example.com", "alice", "old-password-123", RoleEmployee)
	login := loginUser(t, engine, "alice@example.com", "old-password-123")

	issue, err := engine.RequestPasswordReset(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if issue.DebugToken == "" {
		t.Fatal("expected debug token")
	}

	if err := engine.ConfirmPasswordReset(ctx, issue.DebugToken, "new-password-456"); err != nil {
		t.Fatalf("ConfirmPasswordReset failed: %v", err)
	}

	// Old password dead, new password works.
	if _, err := engine.Login(ctx, "alice@example.com", "old-password-123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials with old password, got %v", err)
	}
	if _, err := engine.Login(ctx, "alice@example.com", "new-password-456"); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}

	// Every session from before the reset is revoked.
	if _, err := engine.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected pre-reset session revoked, got %v", err)
	}
}

func TestPasswordResetTokenSingleUse(t *testing.T) {
	_, rdb := newTestRedis(t)
	engine, store := newTestEngine(t, rdb, testConfig())
	ctx := context.Background()

	signupActiveUser(t, engine, store, "alice@example.com", "alice", "old-password-123", RoleEmployee)

	issue, _ := engine.RequestPasswordReset(ctx, "alice@example.com")
	if err := engine.ConfirmPasswordReset(ctx, issue.DebugToken, "new-password-456"); err != nil {
		t.Fatalf("ConfirmPasswordReset failed: %v", err)
	}
	if err := engine.ConfirmPasswordReset(ctx, issue.DebugToken, "evil-password-789"); !errors.Is(err, ErrTokenConsumed) {
		t.Fatalf("expected ErrTokenConsumed on replay, got %v", err)
	}
}

func TestPasswordResetPolicyEnforced(t *testing.T) {
	_, rdb := newTestRedis(t)
	engine, store := newTestEngine(t, rdb, testConfig())
	ctx := context.Background()

	signupActiveUser(t, engine, store, "alice@example.com", "alice", "old-password-123", RoleEmployee)

	issue, _ := engine.RequestPasswordReset(ctx, "alice@example.com")
	if err := engine.ConfirmPasswordReset(ctx, issue.DebugToken, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
}

func TestPasswordResetClearsLockout(t *testing.T) {
	_, rdb := newTestRedis(t)
	cfg := testConfig()
	cfg.RateLimit.Enabled = false
	cfg.Lockout.MaxFailures = 2
	engine, store := newTestEngine(t, rdb, cfg)
	ctx := context.Background()

	signupActiveUser(t, engine, store, "alice@example.com", "alice", "old-password-123", RoleEmployee)

	for i := 0; i < 2; i++ {
		engine.Login(ctx, "alice@example.com", "wrong-password-999")
	}
	if _, err := engine.Login(ctx, "alice@example.com", "old-password-123"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}

	issue, _ := engine.RequestPasswordReset(ctx, "alice@example.com")
	if err := engine.ConfirmPasswordReset(ctx, issue.DebugToken, "new-password-456"); err != nil {
		t.Fatalf("ConfirmPasswordReset failed: %v", err)
	}

	if _, err := engine.Login(ctx, "alice@example.com", "new-password-456"); err != nil {
		t.Fatalf("reset must clear the lockout: %v", err)
	}
}

func TestPasswordResetRequestSuccessShaped(t *testing.T) {
	_, rdb := newTestRedis(t)
	engine, _ := newTestEngine(t, rdb, testConfig())
	ctx := context.Background()

	result, err := engine.RequestPasswordReset(ctx, "ghost@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset for unknown identity failed: %v", err)
	}
	if result.DebugToken != "" {
		t.Fatal("no token must be issued for unknown accounts")
	}
}

func TestChangePasswordKeepsCurrentSession(t *testing.T) {
	_, rdb := newTestRedis(t)
	engine, store := newTestEngine(t, rdb, testConfig())
	ctx := context.Background()

	user := signupActiveUser(t, engine, store, "alice@example.com", "alice", "old-password-123", RoleEmployee)
	current := loginUser(t, engine, "alice@example.com", "old-password-123")
	other := loginUser(t, engine, "alice@example.com", "old-password-123")

	err := engine.ChangePassword(ctx, user.UserID, "old-password-123", "new-password-456", current.SessionID)
	if err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	// The changing session survives; the other dies.
	if _, err := engine.Refresh(ctx, current.RefreshToken); err != nil {
		t.Fatalf("current session must survive: %v", err)
	}
	if _, err := engine.Refresh(ctx, other.RefreshToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("other session must be revoked, got %v", err)
	}
}

func TestChangePasswordRequiresCurrent(t *testing.T) {
	_, rdb := newTestRedis(t)
	engine, store := newTestEngine(t, rdb, testConfig())
	ctx := context.Background()

	user := signupActiveUser(t, engine, store, "alice@example.com", "alice", "old-password-123", RoleEmployee)

	err := engine.ChangePassword(ctx, user.UserID, "wrong-password-999", "new-password-456", "")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	// The password did not change.
	if _, err := engine.Login(ctx, "alice@example.com", "old-password-123"); err != nil {
		t.Fatalf("old password must still work: %v", err)
	}
}
