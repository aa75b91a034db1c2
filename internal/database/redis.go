package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ragcore/ingestion-core/internal/config"
	"github.com/ragcore/ingestion-core/internal/logger"
)

// ResolutionCache is an optional memoization layer the queue dispatcher (C10)
// uses while resolving an object-finalized event to a document row. It is
// non-load-bearing: every method degrades to a cache miss on error, and the
// dispatcher always falls back to resolving against the document store.
type ResolutionCache struct {
	client *redis.Client
	logger *logger.Logger
	ttl    time.Duration
}

// NewResolutionCache creates a new Redis-backed resolution cache.
func NewResolutionCache(cfg config.RedisConfig, log *logger.Logger) (*ResolutionCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.PoolSize / 4,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	rc := &ResolutionCache{
		client: client,
		logger: log.WithService("resolution_cache"),
		ttl:    time.Duration(cfg.ResolutionCacheTTLSeconds) * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	rc.logger.Info("connected to resolution cache",
		zap.String("addr", cfg.Addr),
		zap.Duration("ttl", rc.ttl),
	)
	return rc, nil
}

// Ping tests the connection to Redis.
func (r *ResolutionCache) Ping(ctx context.Context) error {
	start := time.Now()
	err := r.client.Ping(ctx).Err()
	r.logger.LogServiceCall("redis", "ping", time.Since(start).Seconds()*1000, err)
	return err
}

// Close closes the underlying Redis connection.
func (r *ResolutionCache) Close() error {
	return r.client.Close()
}

// GetDocumentID returns the document ID previously resolved for objectKey,
// or "" if absent or on any Redis error — a miss either way routes the
// caller back to the durable document lookup.
func (r *ResolutionCache) GetDocumentID(ctx context.Context, objectKey string) string {
	start := time.Now()
	val, err := r.client.Get(ctx, cacheKey(objectKey)).Result()
	r.logger.LogServiceCall("redis", "get_document_id", time.Since(start).Seconds()*1000, err)
	if err != nil {
		return ""
	}
	return val
}

// PutDocumentID memoizes the resolved document ID for objectKey for the
// configured TTL. Failures are logged and otherwise ignored.
func (r *ResolutionCache) PutDocumentID(ctx context.Context, objectKey, documentID string) {
	start := time.Now()
	err := r.client.Set(ctx, cacheKey(objectKey), documentID, r.ttl).Err()
	r.logger.LogServiceCall("redis", "put_document_id", time.Since(start).Seconds()*1000, err)
}

// HealthCheck performs a health check on the Redis connection.
func (r *ResolutionCache) HealthCheck(ctx context.Context) error {
	return r.Ping(ctx)
}

func cacheKey(objectKey string) string {
	return "ragcore:resolve:" + objectKey
}
