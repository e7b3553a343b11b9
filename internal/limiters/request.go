package limiters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRequestRateLimited        = errors.New("request rate limited")
	ErrRequestLimiterUnavailable = errors.New("request limiter unavailable")
)

// RequestThrottleConfig tunes the fixed-window throttle on one-time-token
// request endpoints. Purpose namespaces the keys so verification and reset
// budgets stay independent.
type RequestThrottleConfig struct {
	Purpose     string
	Window      time.Duration
	MaxRequests int
}

// RequestThrottle guards the "send me a token" endpoints per identity and
// per IP. These endpoints answer success-shaped regardless of account
// existence, so the throttle is the only thing standing between them and
// free email bombing.
type RequestThrottle struct {
	redis  redis.UniversalClient
	config RequestThrottleConfig
}

// NewRequestThrottle creates a request throttle.
func NewRequestThrottle(redisClient redis.UniversalClient, cfg RequestThrottleConfig) *RequestThrottle {
	return &RequestThrottle{redis: redisClient, config: cfg}
}

func (l *RequestThrottle) identityKey(identity string) string {
	return "aot:" + l.config.Purpose + ":i:" + strings.ToLower(identity)
}

func (l *RequestThrottle) ipKey(ip string) string {
	return "aot:" + l.config.Purpose + ":ip:" + ip
}

// Check enforces the budget for identity and ip. Either may be empty, in
// which case its half of the check is skipped.
func (l *RequestThrottle) Check(ctx context.Context, identity, ip string) error {
	if l == nil || l.config.MaxRequests <= 0 {
		return nil
	}

	if identity != "" {
		if err := l.enforceFixedWindow(ctx, l.identityKey(identity)); err != nil {
			return err
		}
	}
	if ip != "" {
		if err := l.enforceFixedWindow(ctx, l.ipKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

func (l *RequestThrottle) enforceFixedWindow(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestLimiterUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRequestLimiterUnavailable, err)
		}
	}

	if count > int64(l.config.MaxRequests) {
		return ErrRequestRateLimited
	}

	return nil
}
