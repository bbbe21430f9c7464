// Package cache provides the 1-second TTL session-config cache that sits
// in front of the pre-trade risk gate. Backed by Redis with graceful
// degradation: when Redis is unavailable, readers fall through to the
// database.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"zeenix-trading-bot/config"

	"github.com/redis/go-redis/v9"
)

// ErrCacheUnavailable is returned when Redis is down and the caller must
// fall back to a direct database read
var ErrCacheUnavailable = errors.New("cache unavailable")

// ErrCacheMiss is returned when the key is absent or expired
var ErrCacheMiss = errors.New("cache miss")

// CacheService wraps the Redis client with a small health circuit
type CacheService struct {
	client *redis.Client
	mu     sync.RWMutex

	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration
}

// NewCacheService connects to Redis. A failed initial connection returns
// the service in degraded mode rather than an error; callers keep working
// against the database.
func NewCacheService(cfg config.RedisConfig) *CacheService {
	cs := &CacheService{
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}
	if !cfg.Enabled {
		return cs
	}

	cs.client = redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cs.client.Ping(ctx).Err(); err == nil {
		cs.healthy = true
		cs.lastCheck = time.Now()
	}
	return cs
}

// IsHealthy reports whether Redis is usable, re-probing periodically
// after failures
func (cs *CacheService) IsHealthy() bool {
	cs.mu.RLock()
	healthy := cs.healthy
	lastCheck := cs.lastCheck
	cs.mu.RUnlock()

	if cs.client == nil {
		return false
	}
	if healthy {
		return true
	}
	if time.Since(lastCheck) < cs.checkInterval {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := cs.client.Ping(ctx).Err()

	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.lastCheck = time.Now()
	if err == nil {
		cs.healthy = true
		cs.failureCount = 0
	}
	return cs.healthy
}

// Get reads a key. ErrCacheMiss on absence, ErrCacheUnavailable when
// Redis is down.
func (cs *CacheService) Get(ctx context.Context, key string) (string, error) {
	if !cs.IsHealthy() {
		return "", ErrCacheUnavailable
	}
	val, err := cs.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		cs.recordFailure()
		return "", ErrCacheUnavailable
	}
	return val, nil
}

// Set writes a key with a TTL
func (cs *CacheService) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if !cs.IsHealthy() {
		return ErrCacheUnavailable
	}
	if err := cs.client.Set(ctx, key, value, ttl).Err(); err != nil {
		cs.recordFailure()
		return ErrCacheUnavailable
	}
	return nil
}

// Delete removes a key
func (cs *CacheService) Delete(ctx context.Context, key string) error {
	if !cs.IsHealthy() {
		return ErrCacheUnavailable
	}
	if err := cs.client.Del(ctx, key).Err(); err != nil {
		cs.recordFailure()
		return ErrCacheUnavailable
	}
	return nil
}

func (cs *CacheService) recordFailure() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.failureCount++
	if cs.failureCount >= cs.maxFailures {
		cs.healthy = false
		cs.lastCheck = time.Now()
	}
}

// Close releases the Redis connection
func (cs *CacheService) Close() error {
	if cs.client != nil {
		return cs.client.Close()
	}
	return nil
}
