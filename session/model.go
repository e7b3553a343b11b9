package session

import (
	"strconv"
	"time"
)

// Session is one refresh session. RefreshHash is the hex SHA-256 of the
// current refresh secret; the raw secret never touches Redis.
type Session struct {
	SessionID   string
	UserID      string
	RefreshHash string
	IPAddress   string
	UserAgent   string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	LastUsedAt  time.Time
}

// Expired reports whether the session is past its absolute expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// fields maps the session onto the Redis hash layout. Timestamps are stored
// as unix seconds so the rotation script can compare them without parsing.
func (s *Session) fields() map[string]interface{} {
	return map[string]interface{}{
		"user_id":      s.UserID,
		"refresh_hash": s.RefreshHash,
		"ip":           s.IPAddress,
		"ua":           s.UserAgent,
		"created_at":   s.CreatedAt.Unix(),
		"expires_at":   s.ExpiresAt.Unix(),
		"last_used_at": s.LastUsedAt.Unix(),
	}
}

func sessionFromFields(sessionID string, m map[string]string) (*Session, error) {
	if len(m) == 0 {
		return nil, ErrNotFound
	}

	createdAt, err := parseUnix(m["created_at"])
	if err != nil {
		return nil, ErrCorrupt
	}
	expiresAt, err := parseUnix(m["expires_at"])
	if err != nil {
		return nil, ErrCorrupt
	}
	lastUsedAt, err := parseUnix(m["last_used_at"])
	if err != nil {
		return nil, ErrCorrupt
	}
	if m["user_id"] == "" || m["refresh_hash"] == "" {
		return nil, ErrCorrupt
	}

	return &Session{
		SessionID:   sessionID,
		UserID:      m["user_id"],
		RefreshHash: m["refresh_hash"],
		IPAddress:   m["ip"],
		UserAgent:   m["ua"],
		CreatedAt:   createdAt,
		ExpiresAt:   expiresAt,
		LastUsedAt:  lastUsedAt,
	}, nil
}

func parseUnix(s string) (time.Time, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(v, 0), nil
}
