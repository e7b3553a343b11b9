package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	authcore "github.com/retailstack/authcore"
)

const pgUniqueViolation = "23505"

// UserStore implements authcore.UserStore on a users table.
type UserStore struct {
	db *sql.DB
}

// NewUserStore wraps an open connection pool.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `user_id, email, username, password_hash, role, shop_id,
	approval_status, email_verified, totp_enabled, created_at, activated_at, last_login_at`

func scanUser(row *sql.Row) (authcore.UserRecord, error) {
	var (
		u           authcore.UserRecord
		role        string
		status      string
		activatedAt sql.NullTime
		lastLoginAt sql.NullTime
	)
	err := row.Scan(
		&u.UserID, &u.Email, &u.Username, &u.PasswordHash, &role, &u.ShopID,
		&status, &u.EmailVerified, &u.TOTPEnabled, &u.CreatedAt, &activatedAt, &lastLoginAt,
	)
	if err != nil {
		return authcore.UserRecord{}, err
	}
	u.Role = authcore.Role(role)
	u.ApprovalStatus = authcore.ApprovalStatus(status)
	if activatedAt.Valid {
		t := activatedAt.Time
		u.ActivatedAt = &t
	}
	if lastLoginAt.Valid {
		t := lastLoginAt.Time
		u.LastLoginAt = &t
	}
	return u, nil
}

func (s *UserStore) CreateUser(ctx context.Context, input authcore.CreateUserInput) (authcore.UserRecord, error) {
	query := `INSERT INTO users
		(user_id, email, username, password_hash, role, shop_id, approval_status, email_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + userColumns

	row := s.db.QueryRowContext(ctx, query,
		input.UserID, input.Email, input.Username, input.PasswordHash,
		string(input.Role), input.ShopID, string(input.ApprovalStatus), input.EmailVerified,
	)
	user, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return authcore.UserRecord{}, authcore.ErrDuplicateIdentity
		}
		return authcore.UserRecord{}, wrapDB("create user", err)
	}
	return user, nil
}

func (s *UserStore) GetUserByID(ctx context.Context, userID string) (authcore.UserRecord, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authcore.UserRecord{}, authcore.ErrUserNotFound
		}
		return authcore.UserRecord{}, wrapDB("get user", err)
	}
	return user, nil
}

func (s *UserStore) GetUserByIdentity(ctx context.Context, identity string) (authcore.UserRecord, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE lower(email) = lower($1) OR lower(username) = lower($1)`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, identity))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authcore.UserRecord{}, authcore.ErrUserNotFound
		}
		return authcore.UserRecord{}, wrapDB("get user by identity", err)
	}
	return user, nil
}

func (s *UserStore) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2 WHERE user_id = $1`, userID, newHash)
	if err != nil {
		return wrapDB("update password hash", err)
	}
	return requireRow(res)
}

// SetApprovalStatus is a compare-and-set: the UPDATE matches only rows still
// in the from state, so two concurrent decisions cannot both win.
func (s *UserStore) SetApprovalStatus(ctx context.Context, userID string, from, to authcore.ApprovalStatus) (authcore.UserRecord, error) {
	query := `UPDATE users SET approval_status = $3
		WHERE user_id = $1 AND approval_status = $2
		RETURNING ` + userColumns

	row := s.db.QueryRowContext(ctx, query, userID, string(from), string(to))
	user, err := scanUser(row)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return authcore.UserRecord{}, wrapDB("set approval status", err)
	}

	// No row matched: distinguish a missing account from one in the wrong
	// state.
	if _, getErr := s.GetUserByID(ctx, userID); getErr != nil {
		return authcore.UserRecord{}, getErr
	}
	return authcore.UserRecord{}, authcore.ErrInvalidState
}

func (s *UserStore) SetEmailVerified(ctx context.Context, userID string) (authcore.UserRecord, error) {
	query := `UPDATE users SET email_verified = TRUE
		WHERE user_id = $1
		RETURNING ` + userColumns

	user, err := scanUser(s.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authcore.UserRecord{}, authcore.ErrUserNotFound
		}
		return authcore.UserRecord{}, wrapDB("set email verified", err)
	}
	return user, nil
}

func (s *UserStore) MarkActivated(ctx context.Context, userID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET activated_at = $2 WHERE user_id = $1 AND activated_at IS NULL`,
		userID, at.UTC())
	if err != nil {
		return false, wrapDB("mark activated", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapDB("mark activated", err)
	}
	return n == 1, nil
}

func (s *UserStore) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = $2 WHERE user_id = $1`, userID, at.UTC())
	if err != nil {
		return wrapDB("record login", err)
	}
	return requireRow(res)
}

func (s *UserStore) ListPendingUsers(ctx context.Context) ([]authcore.UserRecord, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE approval_status = 'pending'
		ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapDB("list pending users", err)
	}
	defer rows.Close()

	var pending []authcore.UserRecord
	for rows.Next() {
		var (
			u           authcore.UserRecord
			role        string
			status      string
			activatedAt sql.NullTime
			lastLoginAt sql.NullTime
		)
		err := rows.Scan(
			&u.UserID, &u.Email, &u.Username, &u.PasswordHash, &role, &u.ShopID,
			&status, &u.EmailVerified, &u.TOTPEnabled, &u.CreatedAt, &activatedAt, &lastLoginAt,
		)
		if err != nil {
			return nil, wrapDB("list pending users", err)
		}
		u.Role = authcore.Role(role)
		u.ApprovalStatus = authcore.ApprovalStatus(status)
		if activatedAt.Valid {
			t := activatedAt.Time
			u.ActivatedAt = &t
		}
		if lastLoginAt.Valid {
			t := lastLoginAt.Time
			u.LastLoginAt = &t
		}
		pending = append(pending, u)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDB("list pending users", err)
	}
	return pending, nil
}

func (s *UserStore) GetTOTP(ctx context.Context, userID string) (authcore.TOTPRecord, error) {
	query := `SELECT totp_secret, totp_pending_secret, totp_enabled, totp_last_used_step
		FROM users WHERE user_id = $1`

	var rec authcore.TOTPRecord
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&rec.Secret, &rec.PendingSecret, &rec.Enabled, &rec.LastUsedStep)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authcore.TOTPRecord{}, authcore.ErrUserNotFound
		}
		return authcore.TOTPRecord{}, wrapDB("get totp", err)
	}
	return rec, nil
}

func (s *UserStore) SetPendingTOTPSecret(ctx context.Context, userID string, encryptedSecret []byte) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET totp_pending_secret = $2 WHERE user_id = $1`,
		userID, encryptedSecret)
	if err != nil {
		return wrapDB("set pending totp secret", err)
	}
	return requireRow(res)
}

func (s *UserStore) EnableTOTP(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET
			totp_secret = totp_pending_secret,
			totp_pending_secret = NULL,
			totp_enabled = TRUE
		WHERE user_id = $1 AND totp_pending_secret IS NOT NULL`, userID)
	if err != nil {
		return wrapDB("enable totp", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDB("enable totp", err)
	}
	if n == 0 {
		if _, getErr := s.GetUserByID(ctx, userID); getErr != nil {
			return getErr
		}
		return authcore.ErrInvalidState
	}
	return nil
}

func (s *UserStore) DisableTOTP(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET
			totp_secret = NULL,
			totp_pending_secret = NULL,
			totp_enabled = FALSE,
			totp_last_used_step = 0
		WHERE user_id = $1`, userID)
	if err != nil {
		return wrapDB("disable totp", err)
	}
	return requireRow(res)
}

// UpdateTOTPLastUsedStep only moves the replay floor forward.
func (s *UserStore) UpdateTOTPLastUsedStep(ctx context.Context, userID string, step int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET totp_last_used_step = $2
		WHERE user_id = $1 AND totp_last_used_step < $2`, userID, step)
	if err != nil {
		return wrapDB("update totp last used step", err)
	}
	return nil
}

func (s *UserStore) DeleteStalePendingUsers(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM users
		WHERE approval_status = 'pending' AND email_verified = FALSE AND created_at < $1`,
		cutoff.UTC())
	if err != nil {
		return 0, wrapDB("delete stale pending users", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapDB("delete stale pending users", err)
	}
	return n, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDB("rows affected", err)
	}
	if n == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}
