package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCleanupDeletesOnlyStalePendingUsers(t *testing.T) {
	_, rdb := newTestRedis(t)
	cfg := testConfig()
	engine, store := newTestEngine(t, rdb, cfg)
	ctx := context.Background()

	owner := signupActiveUser(t, engine, store, "owner@example.com", "owner", "correct-password-123", RoleSystemOwner)

	// Stale: pending, unverified, older than the cutoff.
	stale, err := engine.Signup(ctx, SignupRequest{
		Email:    "stale@example.com",
		Username: "staleuser",
		Password: "correct-password-123",
		Role:     RoleEmployee,
	})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	store.setCreatedAt(stale.UserID, time.Now().Add(-100*time.Hour))

	// Old but verified: must survive.
	verified, err := engine.Signup(ctx, SignupRequest{
		Email:    "verified@example.com",
		Username: "verifieduser",
		Password: "correct-password-123",
		Role:     RoleEmployee,
	})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if _, err := engine.ConfirmEmailVerification(ctx, verified.DebugToken); err != nil {
		t.Fatalf("ConfirmEmailVerification failed: %v", err)
	}
	store.setCreatedAt(verified.UserID, time.Now().Add(-100*time.Hour))

	// Pending but fresh: must survive.
	fresh, err := engine.Signup(ctx, SignupRequest{
		Email:    "fresh@example.com",
		Username: "freshuser",
		Password: "correct-password-123",
		Role:     RoleEmployee,
	})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	result, err := engine.CleanupStalePendingUsers(ctx, owner.UserID, 0)
	if err != nil {
		t.Fatalf("CleanupStalePendingUsers failed: %v", err)
	}
	if result.DeletedUsers != 1 {
		t.Fatalf("expected 1 deleted, got %d", result.DeletedUsers)
	}
	if result.Cutoff != cfg.Cleanup.PendingCutoff {
		t.Fatalf("expected default cutoff %v, got %v", cfg.Cleanup.PendingCutoff, result.Cutoff)
	}

	if _, err := store.GetUserByID(ctx, stale.UserID); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected stale user gone, got %v", err)
	}
	if _, err := store.GetUserByID(ctx, verified.UserID); err != nil {
		t.Fatalf("verified user must survive: %v", err)
	}
	if _, err := store.GetUserByID(ctx, fresh.UserID); err != nil {
		t.Fatalf("fresh user must survive: %v", err)
	}
}

func TestCleanupExplicitCutoffOverridesDefault(t *testing.T) {
	_, rdb := newTestRedis(t)
	cfg := testConfig()
	engine, store := newTestEngine(t, rdb, cfg)
	ctx := context.Background()

	owner := signupActiveUser(t, engine, store, "owner@example.com", "owner", "correct-password-123", RoleSystemOwner)

	signup, err := engine.Signup(ctx, SignupRequest{
		Email:    "recent@example.com",
		Username: "recentuser",
		Password: "correct-password-123",
		Role:     RoleEmployee,
	})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	store.setCreatedAt(signup.UserID, time.Now().Add(-2*time.Hour))

	result, err := engine.CleanupStalePendingUsers(ctx, owner.UserID, time.Hour)
	if err != nil {
		t.Fatalf("CleanupStalePendingUsers failed: %v", err)
	}
	if result.DeletedUsers != 1 {
		t.Fatalf("expected 1 deleted under 1h cutoff, got %d", result.DeletedUsers)
	}
	if result.Cutoff != time.Hour {
		t.Fatalf("expected 1h cutoff echoed, got %v", result.Cutoff)
	}
}

func TestCleanupRequiresSystemOwner(t *testing.T) {
	_, rdb := newTestRedis(t)
	cfg := testConfig()
	engine, store := newTestEngine(t, rdb, cfg)
	ctx := context.Background()

	employee := signupActiveUser(t, engine, store, "emp@example.com", "employee", "correct-password-123", RoleEmployee)

	if _, err := engine.CleanupStalePendingUsers(ctx, employee.UserID, 0); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for employee, got %v", err)
	}
	if _, err := engine.CleanupStalePendingUsers(ctx, "no-such-user", 0); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for unknown actor, got %v", err)
	}
}

func TestSweeperNilWhenDisabled(t *testing.T) {
	_, rdb := newTestRedis(t)
	cfg := testConfig()
	cfg.Cleanup.Enabled = false
	engine, _ := newTestEngine(t, rdb, cfg)

	s := NewSweeper(engine)
	if s != nil {
		t.Fatal("expected nil sweeper when cleanup is disabled")
	}
	// Nil receivers must be no-ops.
	s.Start()
	s.Stop()
}

func TestSweeperRemovesStaleAccounts(t *testing.T) {
	_, rdb := newTestRedis(t)
	cfg := testConfig()
	cfg.Cleanup.Enabled = true
	cfg.Cleanup.Interval = 10 * time.Millisecond
	engine, store := newTestEngine(t, rdb, cfg)
	ctx := context.Background()

	signup, err := engine.Signup(ctx, SignupRequest{
		Email:    "stale@example.com",
		Username: "staleuser",
		Password: "correct-password-123",
		Role:     RoleEmployee,
	})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	store.setCreatedAt(signup.UserID, time.Now().Add(-100*time.Hour))

	s := NewSweeper(engine)
	if s == nil {
		t.Fatal("expected sweeper")
	}
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := store.GetUserByID(ctx, signup.UserID); errors.Is(err, ErrUserNotFound) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("sweeper did not remove the stale account in time")
}
