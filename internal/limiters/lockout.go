package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockoutUnavailable indicates the lockout backend is unreachable.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
)

// LockoutConfig tunes the per-user failure lockout. The counter lives for
// Window; reaching MaxFailures arms a lock that lasts Cooldown.
type LockoutConfig struct {
	Enabled     bool
	MaxFailures int
	Window      time.Duration
	Cooldown    time.Duration
}

// Lockout tracks failed login attempts per user across all source IPs and
// arms a temporary lock when the threshold is reached. It deliberately keys
// on user ID, not IP: a distributed guessing attack against one account must
// still trip it.
type Lockout struct {
	redis  redis.UniversalClient
	config LockoutConfig
}

// NewLockout creates a lockout limiter.
func NewLockout(redisClient redis.UniversalClient, cfg LockoutConfig) *Lockout {
	return &Lockout{redis: redisClient, config: cfg}
}

func (l *Lockout) counterKey(userID string) string {
	return "alc:" + userID
}

func (l *Lockout) lockKey(userID string) string {
	return "alk:" + userID
}

// armLockScript transitions counter -> lock atomically so two concurrent
// threshold-crossing failures cannot double-arm or lose the lock.
const armLockScript = `
local counter_key = KEYS[1]
local lock_key = KEYS[2]
local window_ms = tonumber(ARGV[1])
local threshold = tonumber(ARGV[2])
local cooldown_ms = tonumber(ARGV[3])

local count = redis.call("INCR", counter_key)
if count == 1 then
  redis.call("PEXPIRE", counter_key, window_ms)
end

if count >= threshold then
  redis.call("SET", lock_key, "1", "PX", cooldown_ms)
  redis.call("DEL", counter_key)
  return 1
end

return 0
`

var armLockLua = redis.NewScript(armLockScript)

// OnFailure records one failed attempt. It reports true when this failure
// crossed the threshold and armed the lock.
func (l *Lockout) OnFailure(ctx context.Context, userID string) (bool, error) {
	if l == nil || !l.config.Enabled || userID == "" {
		return false, nil
	}

	armed, err := armLockLua.Run(
		ctx,
		l.redis,
		[]string{l.counterKey(userID), l.lockKey(userID)},
		l.config.Window.Milliseconds(),
		l.config.MaxFailures,
		l.config.Cooldown.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}

	return armed == 1, nil
}

// Status reports whether the user is locked and how long the cooldown has
// left to run.
func (l *Lockout) Status(ctx context.Context, userID string) (bool, time.Duration, error) {
	if l == nil || !l.config.Enabled || userID == "" {
		return false, 0, nil
	}

	remaining, err := l.redis.PTTL(ctx, l.lockKey(userID)).Result()
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if remaining <= 0 {
		return false, 0, nil
	}
	return true, remaining, nil
}

// Reset clears the failure counter and any active lock, e.g. after a
// successful login or a completed password reset.
func (l *Lockout) Reset(ctx context.Context, userID string) error {
	if l == nil || !l.config.Enabled || userID == "" {
		return nil
	}

	if err := l.redis.Del(ctx, l.counterKey(userID), l.lockKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// FailureCount returns the live failure counter for a user.
func (l *Lockout) FailureCount(ctx context.Context, userID string) (int, error) {
	if l == nil || !l.config.Enabled || userID == "" {
		return 0, nil
	}

	count, err := l.redis.Get(ctx, l.counterKey(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return int(count), nil
}
