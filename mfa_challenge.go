package authcore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const mfaChallengeKeyPrefix = "amc:"

// bumpChallengeScript validates and charges one attempt against a login
// challenge in a single execution, so parallel guesses cannot share the
// attempt budget.
const bumpChallengeScript = `
local key = KEYS[1]
local now_unix = tonumber(ARGV[1])
local max_attempts = tonumber(ARGV[2])

local fields = redis.call("HMGET", key, "user_id", "expires_at", "identity", "ip")
local user_id = fields[1]
local expires_at = tonumber(fields[2])

if not user_id then
  return {0, "", "", ""}
end

if not expires_at or expires_at <= now_unix then
  redis.call("DEL", key)
  return {1, "", "", ""}
end

local attempts = redis.call("HINCRBY", key, "attempts", 1)
if attempts > max_attempts then
  redis.call("DEL", key)
  return {2, "", "", ""}
end

return {3, user_id, fields[3] or "", fields[4] or ""}
`

var bumpChallengeLua = redis.NewScript(bumpChallengeScript)

// mfaChallenge is the stored state of a pending login: password verification
// succeeded, the second factor is outstanding. Identity and IP are the values
// the first step was keyed on, so the rate window can be reset with the same
// key once the challenge completes.
type mfaChallenge struct {
	UserID   string
	Identity string
	IP       string
}

// mfaChallengeStore tracks pending login challenges in Redis. A challenge is
// a short-lived opaque handle; it carries no tokens and grants nothing on its
// own.
type mfaChallengeStore struct {
	redis redis.UniversalClient
}

func newMFAChallengeStore(client redis.UniversalClient) *mfaChallengeStore {
	return &mfaChallengeStore{redis: client}
}

func (s *mfaChallengeStore) key(challengeID string) string {
	return mfaChallengeKeyPrefix + challengeID
}

func (s *mfaChallengeStore) Create(ctx context.Context, ch mfaChallenge, ttl time.Duration) (string, error) {
	challengeID := uuid.NewString()
	now := time.Now()

	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, s.key(challengeID), map[string]interface{}{
		"user_id":    ch.UserID,
		"identity":   ch.Identity,
		"ip":         ch.IP,
		"created_at": now.Unix(),
		"expires_at": now.Add(ttl).Unix(),
		"attempts":   0,
	})
	pipe.Expire(ctx, s.key(challengeID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return challengeID, nil
}

// Bump charges one attempt and returns the stored challenge. The challenge is
// destroyed when it expires or when the attempt budget runs out; a destroyed
// challenge forces the caller back to a fresh login.
func (s *mfaChallengeStore) Bump(ctx context.Context, challengeID string, maxAttempts int) (mfaChallenge, error) {
	result, err := bumpChallengeLua.Run(
		ctx,
		s.redis,
		[]string{s.key(challengeID)},
		time.Now().Unix(),
		maxAttempts,
	).Result()
	if err != nil {
		return mfaChallenge{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) < 4 {
		return mfaChallenge{}, fmt.Errorf("%w: invalid challenge script response", ErrUnavailable)
	}

	code, _ := parts[0].(int64)
	switch code {
	case 0:
		return mfaChallenge{}, ErrMFAChallengeInvalid
	case 1:
		return mfaChallenge{}, ErrMFAChallengeExpired
	case 2:
		return mfaChallenge{}, ErrMFAAttemptsExceeded
	}

	ch := mfaChallenge{}
	ch.UserID, _ = parts[1].(string)
	ch.Identity, _ = parts[2].(string)
	ch.IP, _ = parts[3].(string)
	return ch, nil
}

func (s *mfaChallengeStore) Delete(ctx context.Context, challengeID string) error {
	if err := s.redis.Del(ctx, s.key(challengeID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
