package authcore

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SecretKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.TOTP.SecretEncryptionKey = []byte("fedcba9876543210fedcba9876543210")
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Security.ExposeDebugTokens = true
	return cfg
}

func newTestEngine(t *testing.T, rdb *redis.Client, cfg Config) (*Engine, *mockUserStore) {
	t.Helper()

	store := newMockUserStore()
	engine, err := NewBuilder().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(store).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, store
}

// signupActiveUser creates an account and walks it through verification and
// approval so it can log in.
func signupActiveUser(t *testing.T, e *Engine, store *mockUserStore, email, username, passwd string, role Role) UserRecord {
	t.Helper()
	ctx := context.Background()

	result, err := e.Signup(ctx, SignupRequest{
		Email: email, Username: username, Password: passwd, Role: role,
	})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	if result.DebugToken != "" {
		if _, err := e.ConfirmEmailVerification(ctx, result.DebugToken); err != nil {
			t.Fatalf("ConfirmEmailVerification failed: %v", err)
		}
	}
	store.setApproval(result.UserID, ApprovalApproved)

	user, err := store.GetUserByID(ctx, result.UserID)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	return user
}

// mockUserStore is an in-memory UserStore mirroring the error contract of
// store/postgres.
type mockUserStore struct {
	mu      sync.Mutex
	users   map[string]*UserRecord
	byIdent map[string]string
	totp    map[string]*TOTPRecord
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:   make(map[string]*UserRecord),
		byIdent: make(map[string]string),
		totp:    make(map[string]*TOTPRecord),
	}
}

func (s *mockUserStore) setApproval(userID string, status ApprovalStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.ApprovalStatus = status
	}
}

func (s *mockUserStore) setCreatedAt(userID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.CreatedAt = at
	}
}

func (s *mockUserStore) CreateUser(_ context.Context, input CreateUserInput) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	emailKey := strings.ToLower(input.Email)
	unameKey := strings.ToLower(input.Username)
	if _, ok := s.byIdent[emailKey]; ok {
		return UserRecord{}, ErrDuplicateIdentity
	}
	if _, ok := s.byIdent[unameKey]; ok {
		return UserRecord{}, ErrDuplicateIdentity
	}

	record := UserRecord{
		UserID:         input.UserID,
		Email:          input.Email,
		Username:       input.Username,
		PasswordHash:   input.PasswordHash,
		Role:           input.Role,
		ShopID:         input.ShopID,
		ApprovalStatus: input.ApprovalStatus,
		EmailVerified:  input.EmailVerified,
		CreatedAt:      time.Now().UTC(),
	}
	s.users[input.UserID] = &record
	s.byIdent[emailKey] = input.UserID
	s.byIdent[unameKey] = input.UserID
	s.totp[input.UserID] = &TOTPRecord{}
	return record, nil
}

func (s *mockUserStore) GetUserByID(_ context.Context, userID string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return *u, nil
}

func (s *mockUserStore) GetUserByIdentity(_ context.Context, identity string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.byIdent[strings.ToLower(strings.TrimSpace(identity))]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return *s.users[userID], nil
}

func (s *mockUserStore) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = newHash
	return nil
}

func (s *mockUserStore) SetApprovalStatus(_ context.Context, userID string, from, to ApprovalStatus) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	if u.ApprovalStatus != from {
		return UserRecord{}, ErrInvalidState
	}
	u.ApprovalStatus = to
	return *u, nil
}

func (s *mockUserStore) SetEmailVerified(_ context.Context, userID string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	u.EmailVerified = true
	return *u, nil
}

func (s *mockUserStore) MarkActivated(_ context.Context, userID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return false, ErrUserNotFound
	}
	if u.ActivatedAt != nil {
		return false, nil
	}
	at = at.UTC()
	u.ActivatedAt = &at
	return true, nil
}

func (s *mockUserStore) RecordLogin(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	at = at.UTC()
	u.LastLoginAt = &at
	return nil
}

func (s *mockUserStore) ListPendingUsers(_ context.Context) ([]UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []UserRecord
	for _, u := range s.users {
		if u.ApprovalStatus == ApprovalPending {
			pending = append(pending, *u)
		}
	}
	return pending, nil
}

func (s *mockUserStore) GetTOTP(_ context.Context, userID string) (TOTPRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.totp[userID]
	if !ok {
		return TOTPRecord{}, ErrUserNotFound
	}
	return *rec, nil
}

func (s *mockUserStore) SetPendingTOTPSecret(_ context.Context, userID string, encryptedSecret []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.totp[userID]
	if !ok {
		return ErrUserNotFound
	}
	rec.PendingSecret = append([]byte(nil), encryptedSecret...)
	return nil
}

func (s *mockUserStore) EnableTOTP(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.totp[userID]
	if !ok {
		return ErrUserNotFound
	}
	if len(rec.PendingSecret) == 0 {
		return ErrInvalidState
	}
	rec.Secret = rec.PendingSecret
	rec.PendingSecret = nil
	rec.Enabled = true
	s.users[userID].TOTPEnabled = true
	return nil
}

func (s *mockUserStore) DisableTOTP(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.totp[userID]
	if !ok {
		return ErrUserNotFound
	}
	rec.Secret = nil
	rec.PendingSecret = nil
	rec.Enabled = false
	rec.LastUsedStep = 0
	s.users[userID].TOTPEnabled = false
	return nil
}

func (s *mockUserStore) UpdateTOTPLastUsedStep(_ context.Context, userID string, step int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.totp[userID]
	if !ok {
		return ErrUserNotFound
	}
	if step > rec.LastUsedStep {
		rec.LastUsedStep = step
	}
	return nil
}

func (s *mockUserStore) DeleteStalePendingUsers(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, u := range s.users {
		if u.ApprovalStatus == ApprovalPending && !u.EmailVerified && u.CreatedAt.Before(cutoff) {
			delete(s.users, id)
			delete(s.byIdent, strings.ToLower(u.Email))
			delete(s.byIdent, strings.ToLower(u.Username))
			delete(s.totp, id)
			deleted++
		}
	}
	return deleted, nil
}
