package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-progress-api/pkg/errors"
)

// cacheStore is the Redis backed payload store behind CacheService.
type cacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService fronts the store for resolved grade scales and class rankings.
// Every failure is logged and returned, but callers treat the cache as best
// effort and fall back to Postgres.
type CacheService struct {
	store       cacheStore
	metrics     *MetricsService
	fallbackTTL time.Duration
	logger      *zap.Logger
	enabled     bool
}

// NewCacheService constructs a cache service. A zero ttl means ten minutes.
func NewCacheService(store cacheStore, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{store: store, metrics: metrics, fallbackTTL: ttl, logger: logger, enabled: enabled}
}

// Enabled reports whether reads and writes reach the store.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.store != nil
}

// Get decodes key into dest. A miss is (false, nil).
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	started := time.Now()
	err := s.store.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(started))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, appErrors.ErrCacheMiss):
		return false, nil
	default:
		s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
}

// Set writes value under key; ttl <= 0 uses the service default.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.fallbackTTL
	}
	started := time.Now()
	err := s.store.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(started))
	if err != nil {
		s.logger.Warn("cache write failed", zap.String("key", key), zap.Duration("ttl", ttl), zap.Error(err))
	}
	return err
}

// Delete drops exact keys, e.g. a default scale after the default changes.
func (s *CacheService) Delete(ctx context.Context, keys ...string) error {
	if !s.Enabled() || len(keys) == 0 {
		return nil
	}
	err := s.store.Delete(ctx, keys...)
	if err != nil {
		s.logger.Warn("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
	}
	return err
}

// Invalidate drops every key matching pattern, e.g. all rankings of a class
// after a regeneration.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	err := s.store.DeleteByPattern(ctx, pattern)
	if err != nil {
		s.logger.Warn("cache invalidation failed", zap.String("pattern", pattern), zap.Error(err))
	}
	return err
}
