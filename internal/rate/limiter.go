package rate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Config holds sliding-window limiter tuning parameters.
type Config struct {
	Enabled     bool
	Window      time.Duration
	MaxAttempts int
}

// slidingWindowScript trims the attempt set, counts what remains, and either
// admits the attempt or reports how long until the oldest one slides out.
// Running it as one script keeps trim+count+record atomic under concurrency.
const slidingWindowScript = `
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local max_attempts = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", key, 0, now_ms - window_ms)

local count = redis.call("ZCARD", key)
if count >= max_attempts then
  local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
  local retry_ms = window_ms
  if oldest[2] then
    retry_ms = tonumber(oldest[2]) + window_ms - now_ms
  end
  if retry_ms < 0 then
    retry_ms = 0
  end
  return {1, retry_ms}
end

redis.call("ZADD", key, now_ms, member)
redis.call("PEXPIRE", key, window_ms)
return {0, 0}
`

var slidingWindowLua = redis.NewScript(slidingWindowScript)

// Limiter enforces a sliding-window attempt budget per (client IP, claimed
// identity) pair, backed by a Redis sorted set of attempt timestamps.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a sliding-window [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

func attemptKey(ip, identity string) string {
	if ip == "" {
		ip = "-"
	}
	return "arl:" + ip + ":" + strings.ToLower(identity)
}

// Allow records one attempt for the pair and admits it if the window budget
// holds. When the budget is exhausted the attempt is NOT recorded and the
// returned duration says when the oldest attempt slides out of the window.
func (l *Limiter) Allow(ctx context.Context, ip, identity string) (time.Duration, error) {
	if !l.config.Enabled {
		return 0, nil
	}

	now := time.Now()
	result, err := slidingWindowLua.Run(
		ctx,
		l.redis,
		[]string{attemptKey(ip, identity)},
		now.UnixMilli(),
		l.config.Window.Milliseconds(),
		l.config.MaxAttempts,
		strconv.FormatInt(now.UnixNano(), 10)+"-"+uuid.NewString(),
	).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) < 2 {
		return 0, fmt.Errorf("%w: invalid limiter script response", ErrRedisUnavailable)
	}

	limited, _ := parts[0].(int64)
	if limited == 0 {
		return 0, nil
	}

	retryMs, _ := parts[1].(int64)
	return time.Duration(retryMs) * time.Millisecond, ErrRateLimited
}

// Reset clears the attempt window for the pair. Called after successful
// authentication so a legitimate user is not penalized for earlier typos.
func (l *Limiter) Reset(ctx context.Context, ip, identity string) error {
	if !l.config.Enabled {
		return nil
	}

	if err := l.redis.Del(ctx, attemptKey(ip, identity)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the live attempt count for the pair. Missing keys return
// zero and do not reveal account existence.
func (l *Limiter) Attempts(ctx context.Context, ip, identity string) (int, error) {
	if !l.config.Enabled {
		return 0, nil
	}

	count, err := l.redis.ZCard(ctx, attemptKey(ip, identity)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}
