package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewStore(rdb, "ac"), mr
}

func testSession() *Session {
	now := time.Now()
	return &Session{
		SessionID:   "sid-1",
		UserID:      "u-1",
		RefreshHash: "hash-1",
		IPAddress:   "203.0.113.7",
		UserAgent:   "cli/1.0",
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
		LastUsedAt:  now,
	}
}

func TestSaveAndGet(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()
	sess := testSession()

	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save session: %v", err)
	}

	got, err := store.Get(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.UserID != sess.UserID || got.RefreshHash != sess.RefreshHash {
		t.Fatalf("unexpected session: %+v", got)
	}
	if got.IPAddress != sess.IPAddress || got.UserAgent != sess.UserAgent {
		t.Fatalf("metadata not round-tripped: %+v", got)
	}
}

func TestGetMissing(t *testing.T) {
	store, _ := newSessionStoreTest(t)

	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetExpiredRemoves(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()

	sess := testSession()
	sess.ExpiresAt = time.Now().Add(-time.Minute)
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save session: %v", err)
	}

	if _, err := store.Get(ctx, sess.SessionID); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}

	// The expired session must be gone on the second read.
	if _, err := store.Get(ctx, sess.SessionID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after cleanup, got %v", err)
	}
}

func TestRotateSwapsHash(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()
	sess := testSession()

	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save session: %v", err)
	}

	res, err := store.Rotate(ctx, sess.SessionID, "hash-1", "hash-2")
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if res.UserID != sess.UserID {
		t.Fatalf("unexpected rotate user: %q", res.UserID)
	}

	got, err := store.Get(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("get after rotate: %v", err)
	}
	if got.RefreshHash != "hash-2" {
		t.Fatalf("hash not rotated: %q", got.RefreshHash)
	}
}

func TestRotateMismatchRevokesSession(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()
	sess := testSession()

	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save session: %v", err)
	}

	res, err := store.Rotate(ctx, sess.SessionID, "stale-hash", "hash-2")
	if !errors.Is(err, ErrHashMismatch) {
		t.Fatalf("expected ErrHashMismatch, got %v", err)
	}
	if res.UserID != sess.UserID {
		t.Fatalf("mismatch result should carry the owner, got %q", res.UserID)
	}

	// Reuse detection revokes the whole session.
	if _, err := store.Get(ctx, sess.SessionID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected session revoked after mismatch, got %v", err)
	}
}

func TestRotateSingleWinner(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()
	sess := testSession()

	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save session: %v", err)
	}

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.Rotate(ctx, sess.SessionID, "hash-1", "next-hash")
		}(i)
	}
	wg.Wait()

	var winners, mismatches, gone int
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrHashMismatch):
			mismatches++
		case errors.Is(err, ErrNotFound):
			gone++
		default:
			t.Fatalf("unexpected rotate error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one rotation winner, got %d (mismatch=%d gone=%d)", winners, mismatches, gone)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()
	sess := testSession()

	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save session: %v", err)
	}

	existed, err := store.Delete(ctx, sess.UserID, sess.SessionID)
	if err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if !existed {
		t.Fatal("expected first delete to report existence")
	}

	existed, err = store.Delete(ctx, sess.UserID, sess.SessionID)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if existed {
		t.Fatal("expected second delete to be a no-op")
	}
}

func TestDeleteAllForUser(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()

	for _, sid := range []string{"sid-1", "sid-2", "sid-3"} {
		sess := testSession()
		sess.SessionID = sid
		if err := store.Save(ctx, sess, time.Hour); err != nil {
			t.Fatalf("save %s: %v", sid, err)
		}
	}

	n, err := store.DeleteAllForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 deleted, got %d", n)
	}

	sessions, err := store.ListForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions, got %d", len(sessions))
	}
}

func TestListForUserSkipsExpired(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()

	live := testSession()
	if err := store.Save(ctx, live, time.Hour); err != nil {
		t.Fatalf("save live: %v", err)
	}

	stale := testSession()
	stale.SessionID = "sid-stale"
	stale.ExpiresAt = time.Now().Add(-time.Minute)
	if err := store.Save(ctx, stale, time.Hour); err != nil {
		t.Fatalf("save stale: %v", err)
	}

	sessions, err := store.ListForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != "sid-1" {
		t.Fatalf("expected only the live session, got %+v", sessions)
	}
}
