// Package memory is an in-process UserStore for tests and examples. It keeps
// everything in maps behind a mutex and mirrors the error contract of
// store/postgres exactly, so engine tests exercise the same failure paths
// the production store produces.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	authcore "github.com/retailstack/authcore"
)

// Store implements authcore.UserStore in memory. The zero value is not
// usable; construct with [New].
type Store struct {
	mu      sync.Mutex
	users   map[string]*userRow // by user ID
	byEmail map[string]string   // lowercase email -> user ID
	byUname map[string]string   // lowercase username -> user ID
	totp    map[string]*authcore.TOTPRecord
}

type userRow struct {
	record authcore.UserRecord
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:   make(map[string]*userRow),
		byEmail: make(map[string]string),
		byUname: make(map[string]string),
		totp:    make(map[string]*authcore.TOTPRecord),
	}
}

func (s *Store) CreateUser(_ context.Context, input authcore.CreateUserInput) (authcore.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	emailKey := strings.ToLower(input.Email)
	unameKey := strings.ToLower(input.Username)
	if _, ok := s.byEmail[emailKey]; ok {
		return authcore.UserRecord{}, authcore.ErrDuplicateIdentity
	}
	if _, ok := s.byUname[unameKey]; ok {
		return authcore.UserRecord{}, authcore.ErrDuplicateIdentity
	}

	record := authcore.UserRecord{
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
	s.users[input.UserID] = &userRow{record: record}
	s.byEmail[emailKey] = input.UserID
	s.byUname[unameKey] = input.UserID
	s.totp[input.UserID] = &authcore.TOTPRecord{}
	return record, nil
}

func (s *Store) GetUserByID(_ context.Context, userID string) (authcore.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.users[userID]
	if !ok {
		return authcore.UserRecord{}, authcore.ErrUserNotFound
	}
	return row.record, nil
}

func (s *Store) GetUserByIdentity(_ context.Context, identity string) (authcore.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(strings.TrimSpace(identity))
	userID, ok := s.byEmail[key]
	if !ok {
		userID, ok = s.byUname[key]
	}
	if !ok {
		return authcore.UserRecord{}, authcore.ErrUserNotFound
	}
	return s.users[userID].record, nil
}

func (s *Store) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.users[userID]
	if !ok {
		return authcore.ErrUserNotFound
	}
	row.record.PasswordHash = newHash
	return nil
}

func (s *Store) SetApprovalStatus(_ context.Context, userID string, from, to authcore.ApprovalStatus) (authcore.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.users[userID]
	if !ok {
		return authcore.UserRecord{}, authcore.ErrUserNotFound
	}
	if row.record.ApprovalStatus != from {
		return authcore.UserRecord{}, authcore.ErrInvalidState
	}
	row.record.ApprovalStatus = to
	return row.record, nil
}

func (s *Store) SetEmailVerified(_ context.Context, userID string) (authcore.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.users[userID]
	if !ok {
		return authcore.UserRecord{}, authcore.ErrUserNotFound
	}
	row.record.EmailVerified = true
	return row.record, nil
}

func (s *Store) MarkActivated(_ context.Context, userID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.users[userID]
	if !ok {
		return false, authcore.ErrUserNotFound
	}
	if row.record.ActivatedAt != nil {
		return false, nil
	}
	at = at.UTC()
	row.record.ActivatedAt = &at
	return true, nil
}

func (s *Store) RecordLogin(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.users[userID]
	if !ok {
		return authcore.ErrUserNotFound
	}
	at = at.UTC()
	row.record.LastLoginAt = &at
	return nil
}

func (s *Store) ListPendingUsers(_ context.Context) ([]authcore.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []authcore.UserRecord
	for _, row := range s.users {
		if row.record.ApprovalStatus == authcore.ApprovalPending {
			pending = append(pending, row.record)
		}
	}
	return pending, nil
}

func (s *Store) GetTOTP(_ context.Context, userID string) (authcore.TOTPRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.totp[userID]
	if !ok {
		return authcore.TOTPRecord{}, authcore.ErrUserNotFound
	}
	return authcore.TOTPRecord{
		Secret:        append([]byte(nil), rec.Secret...),
		PendingSecret: append([]byte(nil), rec.PendingSecret...),
		Enabled:       rec.Enabled,
		LastUsedStep:  rec.LastUsedStep,
	}, nil
}

func (s *Store) SetPendingTOTPSecret(_ context.Context, userID string, encryptedSecret []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.totp[userID]
	if !ok {
		return authcore.ErrUserNotFound
	}
	rec.PendingSecret = append([]byte(nil), encryptedSecret...)
	return nil
}

func (s *Store) EnableTOTP(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.totp[userID]
	if !ok {
		return authcore.ErrUserNotFound
	}
	if len(rec.PendingSecret) == 0 {
		return authcore.ErrInvalidState
	}
	rec.Secret = rec.PendingSecret
	rec.PendingSecret = nil
	rec.Enabled = true
	s.users[userID].record.TOTPEnabled = true
	return nil
}

func (s *Store) DisableTOTP(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.totp[userID]
	if !ok {
		return authcore.ErrUserNotFound
	}
	rec.Secret = nil
	rec.PendingSecret = nil
	rec.Enabled = false
	rec.LastUsedStep = 0
	s.users[userID].record.TOTPEnabled = false
	return nil
}

func (s *Store) UpdateTOTPLastUsedStep(_ context.Context, userID string, step int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.totp[userID]
	if !ok {
		return authcore.ErrUserNotFound
	}
	if step > rec.LastUsedStep {
		rec.LastUsedStep = step
	}
	return nil
}

func (s *Store) DeleteStalePendingUsers(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, row := range s.users {
		r := row.record
		if r.ApprovalStatus == authcore.ApprovalPending && !r.EmailVerified && r.CreatedAt.Before(cutoff) {
			delete(s.users, id)
			delete(s.byEmail, strings.ToLower(r.Email))
			delete(s.byUname, strings.ToLower(r.Username))
			delete(s.totp, id)
			deleted++
		}
	}
	return deleted, nil
}
