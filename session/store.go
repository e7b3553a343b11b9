package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps Redis transport failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrNotFound is returned when the session does not exist.
var ErrNotFound = errors.New("session not found")

// ErrExpired is returned when the session exists but is past expiry.
var ErrExpired = errors.New("session expired")

// ErrHashMismatch is returned by [Store.Rotate] when the presented refresh
// hash does not match the stored one. The session is revoked as a side
// effect: a mismatch means an already-rotated token was replayed.
var ErrHashMismatch = errors.New("refresh hash mismatch")

// ErrCorrupt is returned when the stored session hash is missing fields.
var ErrCorrupt = errors.New("session record corrupt")

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusMismatch int64 = 2
	rotateStatusRotated  int64 = 3
)

// rotateScript is the compare-and-swap at the heart of refresh rotation.
// Exactly one caller presenting the stored hash wins; everyone else observes
// a mismatch and the session is gone. Expired and mismatched sessions are
// removed inside the script so no separate cleanup round-trip is needed.
const rotateScript = `
local session_key = KEYS[1]
local session_id = ARGV[1]
local user_prefix = ARGV[2]
local provided_hash = ARGV[3]
local next_hash = ARGV[4]
local now_unix = tonumber(ARGV[5])

local fields = redis.call("HMGET", session_key, "refresh_hash", "expires_at", "user_id")
local stored_hash = fields[1]
local expires_at = tonumber(fields[2])
local user_id = fields[3]

if not stored_hash then
  return {0, ""}
end

local user_key = user_prefix .. user_id

if not expires_at or expires_at <= now_unix then
  redis.call("DEL", session_key)
  redis.call("SREM", user_key, session_id)
  return {1, user_id}
end

if stored_hash ~= provided_hash then
  redis.call("DEL", session_key)
  redis.call("SREM", user_key, session_id)
  return {2, user_id}
end

redis.call("HSET", session_key, "refresh_hash", next_hash, "last_used_at", now_unix)
return {3, user_id}
`

var rotateLua = redis.NewScript(rotateScript)

const deleteScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
end
return existed
`

var deleteLua = redis.NewScript(deleteScript)

// Store is a Redis-backed refresh-session registry. Each session is one hash
// keyed by session ID; a per-user set indexes the sessions for listing and
// bulk revocation.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix namespaces all keys.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	return &Store{
		redis:  client,
		prefix: prefix,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

// Save persists sess with the given TTL and indexes it under the owner.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	sessionKey := s.key(sess.SessionID)
	userKey := s.userKey(sess.UserID)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, sessionKey, sess.fields())
		pipe.Expire(ctx, sessionKey, ttl)
		pipe.SAdd(ctx, userKey, sess.SessionID)
		pipe.Expire(ctx, userKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get fetches a session without mutating Redis state. An expired session is
// reported as [ErrExpired] and removed.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	m, err := s.redis.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := sessionFromFields(sessionID, m)
	if err != nil {
		return nil, err
	}

	if sess.Expired(time.Now()) {
		if _, err := s.Delete(ctx, sess.UserID, sessionID); err != nil {
			return nil, err
		}
		return nil, ErrExpired
	}

	return sess, nil
}

// RotateResult reports the outcome of a rotation attempt. UserID is set for
// every outcome that located a session, including the failure paths, so the
// caller can attribute the event.
type RotateResult struct {
	UserID string
}

// Rotate atomically swaps the stored refresh hash for nextHash, but only if
// providedHash matches the stored one. Losers of a concurrent race and
// replayed old tokens both land on [ErrHashMismatch], with the session
// already revoked.
func (s *Store) Rotate(ctx context.Context, sessionID, providedHash, nextHash string) (RotateResult, error) {
	result, err := rotateLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sessionID)},
		sessionID,
		s.prefix+":u:",
		providedHash,
		nextHash,
		time.Now().Unix(),
	).Result()
	if err != nil {
		return RotateResult{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) < 2 {
		return RotateResult{}, fmt.Errorf("%w: invalid rotate script response", ErrRedisUnavailable)
	}

	code, ok := parts[0].(int64)
	if !ok {
		return RotateResult{}, fmt.Errorf("%w: invalid rotate script status", ErrRedisUnavailable)
	}

	userID, _ := parts[1].(string)
	res := RotateResult{UserID: userID}

	switch code {
	case rotateStatusNotFound:
		return res, ErrNotFound
	case rotateStatusExpired:
		return res, ErrExpired
	case rotateStatusMismatch:
		return res, ErrHashMismatch
	case rotateStatusRotated:
		return res, nil
	default:
		return res, fmt.Errorf("%w: unknown rotate script status", ErrRedisUnavailable)
	}
}

// Delete removes one session and its index entry. It reports whether the
// session existed; deleting an absent session is not an error.
func (s *Store) Delete(ctx context.Context, userID, sessionID string) (bool, error) {
	existed, err := deleteLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sessionID), s.userKey(userID)},
		sessionID,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return existed == 1, nil
}

// DeleteAllForUser removes every session indexed under userID and returns
// how many existed.
//
// ATOMICITY NOTE: the set read and the deletes are separate commands. A
// session created between them survives this call; it will expire naturally
// or be caught by the next invocation. Password-reset callers tolerate this
// because the reset also invalidates the credential the stray session was
// minted under.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	userKey := s.userKey(userID)

	sessionIDs, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if len(sessionIDs) == 0 {
		if err := s.redis.Del(ctx, userKey).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return 0, nil
	}

	sessionKeys := make([]string, 0, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		sessionKeys = append(sessionKeys, s.key(sessionID))
	}

	var deleted int64
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKeys...)
		pipe.Del(ctx, userKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	deleted = int64(len(sessionKeys))

	return int(deleted), nil
}

// ListForUser returns the live sessions indexed under userID, skipping any
// that expired since indexing.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]*Session, error) {
	sessionIDs, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Session{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sessions := make([]*Session, 0, len(sessionIDs))
	now := time.Now()
	for _, sessionID := range sessionIDs {
		m, err := s.redis.HGetAll(ctx, s.key(sessionID)).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		sess, err := sessionFromFields(sessionID, m)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Index entry outlived the session hash.
				_ = s.redis.SRem(ctx, s.userKey(userID), sessionID).Err()
				continue
			}
			return nil, err
		}
		if sess.Expired(now) {
			continue
		}
		sessions = append(sessions, sess)
	}

	return sessions, nil
}

// ActiveSessionCount returns the number of tracked session IDs for a user.
func (s *Store) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	count, err := s.redis.SCard(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
