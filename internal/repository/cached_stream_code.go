package repository

import (
	"context"
	"time"

	"streamcode/internal/cache"
	"streamcode/internal/models"
	"streamcode/internal/observability"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CachedStreamCodeRepository serves FindByCode from Redis in front of another
// StreamCodeRepository. Only live records are cached, never for longer than
// they have left to live; misses and dead records always reach the store.
type CachedStreamCodeRepository struct {
	StreamCodeRepository
	rdb     *redis.Client
	ttl     time.Duration
	now     func() time.Time
	flights singleflight.Group
}

// NewCachedStreamCodeRepository wraps next. A nil client or a zero ttl disables caching.
func NewCachedStreamCodeRepository(next StreamCodeRepository, rdb *redis.Client, ttl time.Duration) *CachedStreamCodeRepository {
	return &CachedStreamCodeRepository{
		StreamCodeRepository: next,
		rdb:                  rdb,
		ttl:                  ttl,
		now:                  time.Now,
	}
}

// FindByCode returns the cached record when present, otherwise loads it once per
// key across concurrent callers and caches it if it is live.
func (r *CachedStreamCodeRepository) FindByCode(ctx context.Context, code string) (*models.StreamCode, error) {
	if r.rdb == nil || r.ttl <= 0 {
		return r.StreamCodeRepository.FindByCode(ctx, code)
	}

	key := cache.StreamCodeKey(code)

	cctx, span := observability.GetTraceLayer().TraceCacheOperation(ctx, "get", key)
	var cached models.StreamCode
	found, err := cache.GetJSON(cctx, r.rdb, key, &cached)
	span.End()
	switch {
	case err != nil:
		observability.CodeCacheLookups.WithLabelValues("error").Inc()
		observability.RedisErrorRate.WithLabelValues("get").Inc()
	case found:
		observability.CodeCacheLookups.WithLabelValues("hit").Inc()
		return &cached, nil
	default:
		observability.CodeCacheLookups.WithLabelValues("miss").Inc()
	}

	// The shared load outlives any one caller; each caller still stops
	// waiting when its own context ends.
	ch := r.flights.DoChan(key, func() (any, error) {
		return r.load(context.WithoutCancel(ctx), key, code)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		record, _ := res.Val.(*models.StreamCode)
		if record == nil {
			return nil, nil
		}
		return record.Clone(), nil
	}
}

// load reads the record from the store and caches it while live. A record
// deactivated between the read and the cache write is evicted again: the
// second read either sees it inactive or happens before Deactivate commits,
// in which case Deactivate's own eviction runs after the write.
func (r *CachedStreamCodeRepository) load(ctx context.Context, key, code string) (*models.StreamCode, error) {
	record, err := r.StreamCodeRepository.FindByCode(ctx, code)
	if err != nil || record == nil {
		return record, err
	}
	ttl := cache.BoundedTTL(r.ttl, r.now(), record.ExpiresAt)
	if ttl <= 0 || !record.IsActive {
		return record, nil
	}
	if err := cache.SetJSON(ctx, r.rdb, key, record, ttl); err != nil {
		observability.RedisErrorRate.WithLabelValues("set").Inc()
		return record, nil
	}

	current, err := r.StreamCodeRepository.FindByCode(ctx, code)
	if err != nil || current == nil || !current.IsActive {
		cache.Invalidate(ctx, r.rdb, key)
	}
	return record, nil
}

// Deactivate updates the store and then drops any cached copy of the code.
func (r *CachedStreamCodeRepository) Deactivate(ctx context.Context, code string) (bool, error) {
	changed, err := r.StreamCodeRepository.Deactivate(ctx, code)
	if err != nil {
		return false, err
	}
	cache.Invalidate(ctx, r.rdb, cache.StreamCodeKey(code))
	return changed, nil
}
