package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"streamcode/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy decides what happens to a request when Redis cannot be reached.
type FailPolicy int

const (
	// FailOpen lets the request through.
	FailOpen FailPolicy = iota
	// FailClosed answers 503.
	FailClosed
)

var errNoLimiterStore = errors.New("rate limit store unavailable")

// RateLimitConfig configures a fixed-window, per-client-IP limiter.
type RateLimitConfig struct {
	// Name scopes the counters; requests on different names never share a window.
	Name   string
	Limit  int
	Window time.Duration
	Policy FailPolicy
	// Disabled turns the limiter into a pass-through, as in tests and local development.
	Disabled bool
}

// Window is the outcome of one limiter check.
type Window struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// CheckRateLimit counts one hit against key's fixed window and reports
// whether it fits under limit. The window starts with the first hit; its
// expiry is set in the same transaction as the counter.
func CheckRateLimit(ctx context.Context, rdb *redis.Client, key string, limit int, window time.Duration) (Window, error) {
	if rdb == nil {
		return Window{}, errNoLimiterStore
	}

	pipe := rdb.TxPipeline()
	pipe.SetNX(ctx, key, 0, window)
	incr := pipe.Incr(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return Window{}, fmt.Errorf("rate limit %s: %w", key, err)
	}

	count := int(incr.Val())
	reset := ttl.Val()
	if reset < 0 {
		reset = window
	}
	return Window{
		Allowed:   count <= limit,
		Remaining: max(limit-count, 0),
		ResetIn:   reset,
	}, nil
}

// RateLimit returns a Fiber handler enforcing cfg for each client IP. It sets
// X-RateLimit-Limit and X-RateLimit-Remaining, plus Retry-After when a client
// is turned away.
func RateLimit(rdb *redis.Client, cfg RateLimitConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.Disabled || cfg.Limit <= 0 {
			return c.Next()
		}

		key := "rl:" + cfg.Name + ":ip:" + c.IP()
		w, err := CheckRateLimit(c.UserContext(), rdb, key, cfg.Limit, cfg.Window)
		if err != nil {
			if cfg.Policy == FailClosed {
				Logger.WarnContext(c.UserContext(), "rate limiter unavailable, rejecting",
					slog.String("limiter", cfg.Name),
					slog.String("error", err.Error()),
				)
				return models.RespondWithError(c, fiber.StatusServiceUnavailable,
					&models.AppError{Code: "RATE_LIMIT_UNAVAILABLE", Message: "Rate limit unavailable"})
			}
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(w.Remaining))
		if !w.Allowed {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(w.ResetIn.Round(time.Second).Seconds())))
			return models.RespondWithError(c, fiber.StatusTooManyRequests,
				&models.AppError{Code: "RATE_LIMITED", Message: "Rate limit exceeded"})
		}
		return c.Next()
	}
}
