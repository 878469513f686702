package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ScopeRemarkCreate limits how many remarks one actor may file per window
const ScopeRemarkCreate = "remarks:create"

const keyPrefix = "ratelimit:"

// RateLimitResult represents the result of a rate limit check
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1 when blocked
func (r *RateLimitResult) RetryAfterSeconds() int {
	if r.Allowed {
		return 0
	}
	secs := int((r.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// RateLimitService counts actions per actor in fixed Redis windows
// (INCRBY + EXPIRE). A nil client or a zero limit allows everything.
type RateLimitService struct {
	client redis.Cmdable
	limit  int
	window time.Duration
	logger *zap.Logger
}

// NewRateLimitService creates a new RateLimitService instance
func NewRateLimitService(client redis.Cmdable, limit int, window time.Duration, logger *zap.Logger) *RateLimitService {
	return &RateLimitService{
		client: client,
		limit:  limit,
		window: window,
		logger: logger,
	}
}

// Enabled reports whether checks hit Redis at all
func (s *RateLimitService) Enabled() bool {
	return s.client != nil && s.limit > 0 && s.window > 0
}

// Allow records one action by actor in scope and reports whether it fits the window
func (s *RateLimitService) Allow(ctx context.Context, scope, actor string) (*RateLimitResult, error) {
	return s.AllowN(ctx, scope, actor, 1)
}

// AllowN records n actions by actor in scope at once, as for a batch. A
// blocked call is not charged against the window. n below 1 counts as 1.
func (s *RateLimitService) AllowN(ctx context.Context, scope, actor string, n int) (*RateLimitResult, error) {
	if !s.Enabled() {
		return &RateLimitResult{Allowed: true, Limit: s.limit, Remaining: s.limit}, nil
	}
	if actor == "" {
		return nil, fmt.Errorf("rate limit actor is required")
	}
	if n < 1 {
		n = 1
	}

	key := keyPrefix + scope + ":" + actor

	count, err := s.client.IncrBy(ctx, key, int64(n)).Result()
	if err != nil {
		return nil, fmt.Errorf("increment rate key: %w", err)
	}

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("read rate key ttl: %w", err)
	}
	// Every window key must carry an expiry.
	if count == int64(n) || ttl < 0 {
		if err := s.client.Expire(ctx, key, s.window).Err(); err != nil {
			return nil, fmt.Errorf("set rate key ttl: %w", err)
		}
		ttl = s.window
	}

	if count > int64(s.limit) {
		if err := s.client.DecrBy(ctx, key, int64(n)).Err(); err != nil {
			s.logger.Warn("failed to refund blocked rate limit charge",
				zap.String("scope", scope),
				zap.String("actor", actor),
				zap.Error(err))
		}
		s.logger.Debug("rate limit exceeded",
			zap.String("scope", scope),
			zap.String("actor", actor),
			zap.Int64("count", count),
			zap.Int("cost", n),
			zap.Duration("retry_after", ttl))
		remaining := s.limit - int(count) + n
		if remaining < 0 {
			remaining = 0
		}
		return &RateLimitResult{
			Allowed:    false,
			Limit:      s.limit,
			Remaining:  remaining,
			RetryAfter: ttl,
		}, nil
	}

	return &RateLimitResult{
		Allowed:   true,
		Limit:     s.limit,
		Remaining: s.limit - int(count),
	}, nil
}
