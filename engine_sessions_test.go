package authcore

import (
	"context"
	"errors"
	"testing"
)

func TestListSessionsSelf(t *testing.T) {
	_, rdb := newTestRedis(t)
	engine, store := newTestEngine(t, rdb, testConfig())
	ctx := context.Background()

	user := signupActiveUser(t, engine, store, "alice@example.com", "alice", "correct-password-123", RoleEmployee)
	first := loginUser(t, engine, "alice@example.com", "correct-password-123")
	second := loginUser(t, engine, "alice@example.com", "correct-password-123")

	sessions, err := engine.ListSessions(ctx, user.UserID, user.UserID)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}

	ids := map[string]bool{first.SessionID: false, second.SessionID: false}
	for _, s := range sessions {
		if s.UserID != user.UserID {
			t.Fatalf("foreign user id in listing: %+v", s)
		}
		ids[s.SessionID] = true
	}
	for id, seen := range ids {
		if !seen {
			t.Fatalf("session %s missing from listing", id)
		}
	}
}

func TestListSessionsForeignForbidden(t *testing.T) {
	_, rdb := newTestRedis(t)
	engine, store := newTestEngine(t, rdb, testConfig())
	ctx := context.Background()

	alice := signupActiveUser(t, engine, store, "alice@example.com", "alice", "correct-password-123", RoleEmployee)
	bob := signupActiveUser(t, engine, store, "bob@example.com", "bobby", "correct-password-123", RoleEmployee)

	if _, err := engine.ListSessions(ctx, alice.UserID, bob.UserID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestListSessionsSystemOwnerCrossUser(t *testing.T) {
	_, rdb := newTestRedis(t)
	engine, store := newTestEngine(t, rdb, testConfig())
	ctx := context.Background()

	owner := signupActiveUser(t, engine, store, "owner@example.com", "owner", "correct-password-123", RoleSystemOwner)
	alice := signupActiveUser(t, engine, store, "alice@example.com", "alice", "correct-password-123", RoleEmployee)
	loginUser(t, engine, "alice@example.com", "correct-password-123")

	sessions, err := engine.ListSessions(ctx, owner.UserID, alice.UserID)
	if err != nil {
		t.Fatalf("system owner ListSessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(sessions))
	}
}

func TestInactiveSystemOwnerLosesCrossUserSessionAccess(t *testing.T) {
	_, rdb := newTestRedis(t)
	engine, store := newTestEngine(t, rdb, testConfig())
	ctx := context.Background()

	owner := signupActiveUser(t, engine, store, "owner@example.com", "owner", "correct-password-123", RoleSystemOwner)
	alice := signupActiveUser(t, engine, store, "alice@example.com", "alice", "correct-password-123", RoleEmployee)
	aliceLogin := loginUser(t, engine, "alice@example.com", "correct-password-123")

	store.setApproval(owner.UserID, ApprovalRejected)

	if _, err := engine.ListSessions(ctx, owner.UserID, alice.UserID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden from ListSessions, got %v", err)
	}
	if err := engine.RevokeSession(ctx, owner.UserID, alice.UserID, aliceLogin.SessionID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden from RevokeSession, got %v", err)
	}
	if _, err := engine.Refresh(ctx, aliceLogin.RefreshToken); err != nil {
		t.Fatalf("alice's session must survive: %v", err)
	}
}

func TestRevokeSession(t *testing.T) {
	_, rdb := newTestRedis(t)
	engine, store := newTestEngine(t, rdb, testConfig())
	ctx := context.Background()

	user := signupActiveUser(t, engine, store, "alice@example.com", "alice", "correct-password-123", RoleEmployee)
	login := loginUser(t, engine, "alice@example.com", "correct-password-123")

	if err := engine.RevokeSession(ctx, user.UserID, user.UserID, login.SessionID); err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}
	if _, err := engine.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid after revoke, got %v", err)
	}

	// A second revoke reports the session as gone.
	if err := engine.RevokeSession(ctx, user.UserID, user.UserID, login.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRevokeForeignSessionLooksMissing(t *testing.T) {
	_, rdb := newTestRedis(t)
	engine, store := newTestEngine(t, rdb, testConfig())
	ctx := context.Background()

	alice := signupActiveUser(t, engine, store, "alice@example.com", "alice", "correct-password-123", RoleEmployee)
	signupActiveUser(t, engine, store, "bob@example.com", "bobby", "correct-password-123", RoleEmployee)
	bobLogin := loginUser(t, engine, "bob@example.com", "correct-password-123")

	// Alice targeting Bob's session through her own scope: not found, and
	// Bob's session survives.
	err := engine.RevokeSession(ctx, alice.UserID, alice.UserID, bobLogin.SessionID)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := engine.Refresh(ctx, bobLogin.RefreshToken); err != nil {
		t.Fatalf("bob's session must survive: %v", err)
	}
}

func TestRevokeAllSessions(t *testing.T) {
	_, rdb := newTestRedis(t)
	engine, store := newTestEngine(t, rdb, testConfig())
	ctx := context.Background()

	user := signupActiveUser(t, engine, store, "alice@example.com", "alice", "correct-password-123", RoleEmployee)
	first := loginUser(t, engine, "alice@example.com", "correct-password-123")
	second := loginUser(t, engine, "alice@example.com", "correct-password-123")

	count, err := engine.RevokeAllSessions(ctx, user.UserID, user.UserID)
	if err != nil {
		t.Fatalf("RevokeAllSessions failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("revoked = %d, want 2", count)
	}

	for _, login := range []*LoginResult{first, second} {
		if _, err := engine.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrSessionInvalid) {
			t.Fatalf("expected ErrSessionInvalid, got %v", err)
		}
	}
}
