package main

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-progress-api/pkg/config"
)

func TestNewProgressServiceSharesRankingCache(t *testing.T) {
	cfg := &config.Config{Cache: config.CacheConfig{Enabled: true}}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	progress, cacheSvc := newProgressService(cfg, nil, client, zap.NewNop())
	require.NotNil(t, progress)
	assert.True(t, cacheSvc.Enabled(), "regeneration invalidates API rankings")

	_, cacheSvc = newProgressService(cfg, nil, nil, zap.NewNop())
	assert.False(t, cacheSvc.Enabled(), "no redis, nothing to invalidate")

	cfg.Cache.Enabled = false
	_, cacheSvc = newProgressService(cfg, nil, client, zap.NewNop())
	assert.False(t, cacheSvc.Enabled())
}
