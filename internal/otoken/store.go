package otoken

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "aott"

// tombstoneTTL keeps a consumed marker alive after first use so a replayed
// token can be told apart from one that never existed.
const tombstoneTTL = time.Hour

const tombstoneValue = "consumed"

var (
	// ErrNotFound covers unknown, expired-and-evicted, and superseded tokens.
	ErrNotFound = errors.New("one-time token not found")
	// ErrConsumed is returned when the token was already used once.
	ErrConsumed = errors.New("one-time token already consumed")
	// ErrRedisUnavailable wraps Redis transport failures.
	ErrRedisUnavailable = errors.New("one-time token redis unavailable")
)

// Purpose namespaces token records. A verification token can never be
// replayed against the reset endpoint because the hash lookup is scoped to
// its purpose.
type Purpose string

const (
	PurposeEmailVerification Purpose = "verify"
	PurposePasswordReset     Purpose = "reset"
)

// Record is what Redis stores per token, keyed by the SHA-256 of the raw
// secret. The raw secret itself is never persisted.
type Record struct {
	UserID    string    `json:"user_id"`
	Purpose   Purpose   `json:"purpose"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// consumeScript swaps the record for a tombstone in one execution, so exactly
// one caller obtains the record. The tombstone outlives the record's own TTL
// to distinguish "already used" from "never existed".
const consumeScript = `
local key = KEYS[1]
local tombstone = ARGV[1]
local tombstone_ms = tonumber(ARGV[2])

local value = redis.call("GET", key)
if not value then
  return {0, ""}
end
if value == tombstone then
  return {2, ""}
end

local ttl = redis.call("PTTL", key)
if ttl < tombstone_ms then
  ttl = tombstone_ms
end
redis.call("SET", key, tombstone, "PX", ttl)
return {1, value}
`

var consumeLua = redis.NewScript(consumeScript)

// Store issues and consumes one-time tokens (email verification, password
// reset) with consume-exactly-once semantics.
type Store struct {
	redis redis.UniversalClient
}

// NewStore creates a one-time token [Store].
func NewStore(client redis.UniversalClient) *Store {
	return &Store{redis: client}
}

func key(purpose Purpose, tokenHash string) string {
	return keyPrefix + ":" + string(purpose) + ":" + tokenHash
}

func indexKey(purpose Purpose, userID string) string {
	return keyPrefix + ":" + string(purpose) + ":u:" + userID
}

// Issue stores a record under tokenHash for ttl. Issuing supersedes any
// earlier outstanding token of the same purpose for the same user: the old
// record is deleted, so only the latest token verifies.
func (s *Store) Issue(ctx context.Context, purpose Purpose, userID, tokenHash string, ttl time.Duration) error {
	record := Record{
		UserID:    userID,
		Purpose:   purpose,
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}

	idxKey := indexKey(purpose, userID)
	previousHash, err := s.redis.Get(ctx, idxKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if previousHash != "" && previousHash != tokenHash {
			pipe.Del(ctx, key(purpose, previousHash))
		}
		pipe.Set(ctx, key(purpose, tokenHash), encoded, ttl)
		pipe.Set(ctx, idxKey, tokenHash, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Consume atomically retires the token behind tokenHash and returns its
// record. The first caller wins; later callers get [ErrConsumed] while the
// tombstone lives, [ErrNotFound] after.
func (s *Store) Consume(ctx context.Context, purpose Purpose, tokenHash string) (*Record, error) {
	result, err := consumeLua.Run(
		ctx,
		s.redis,
		[]string{key(purpose, tokenHash)},
		tombstoneValue,
		tombstoneTTL.Milliseconds(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) < 2 {
		return nil, fmt.Errorf("%w: invalid consume script response", ErrRedisUnavailable)
	}

	code, _ := parts[0].(int64)
	switch code {
	case 0:
		return nil, ErrNotFound
	case 2:
		return nil, ErrConsumed
	}

	payload, _ := parts[1].(string)
	var record Record
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, fmt.Errorf("%w: corrupt token record", ErrRedisUnavailable)
	}

	return &record, nil
}
