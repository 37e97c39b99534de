// Package bootstrap wires the process-wide runtime: database, Redis and optional seeding.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"streamcode/internal/cache"
	"streamcode/internal/config"
	"streamcode/internal/database"
	"streamcode/internal/middleware"
	"streamcode/internal/repository"
	"streamcode/internal/seed"
	"streamcode/internal/service"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	SeedFixtures bool
}

// InitRuntime connects to DB and Redis and optionally issues the built-in
// fixture codes. A nil Redis client is returned when Redis is unreachable.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()

	if opts.SeedFixtures {
		if cfg.IsProduction() {
			middleware.Logger.Warn("fixture seeding is ignored in production")
		} else if err := seedFixtures(cfg, db); err != nil {
			return nil, nil, fmt.Errorf("failed to seed fixture codes: %w", err)
		}
	}

	return db, r, nil
}

// seedFixtures issues the built-in fixtures through the registry. Fixtures that
// already hold a live code are reused, so restarts do not pile up records.
func seedFixtures(cfg *config.Config, db *gorm.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fixtures, err := seed.BuiltInFixtures()
	if err != nil {
		return err
	}

	registry := service.NewStreamCodeService(repository.NewStreamCodeRepository(db), nil, cfg.CodeTTL, cfg.CodeMaxAttempts)
	codes, err := seed.IssueFixtures(ctx, registry, fixtures)
	if err != nil {
		return err
	}

	for _, code := range codes {
		middleware.Logger.Info("fixture code ready",
			slog.String("code", code),
			slog.String("url", cfg.PublicBaseURL+"/preview?code="+code),
		)
	}
	return nil
}
