package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrCacheMiss is returned by RedisStore.GetRaw for absent keys.
var ErrCacheMiss = errors.New("cache miss")

// RedisConfig configures the optional durable backing store.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DefaultTTL   time.Duration `yaml:"default_ttl"`
	MaxRetries   int           `yaml:"max_retries"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
}

// DefaultRedisConfig returns the local-development defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DefaultTTL:   defaultTTL,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// RedisStore mirrors analysis-cache entries into Redis so parse trees
// survive process restarts. The in-memory Cache consults it on misses
// and writes through on inserts; entries are stored as the caller's
// JSON encoding under a kind/hash-derived key.
type RedisStore struct {
	redis  *redis.Client
	config RedisConfig
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewRedisStore connects to Redis and verifies the connection with a
// ping before returning.
func NewRedisStore(config RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	logger.Info("cache backing store connected", zap.String("addr", config.Addr))
	return &RedisStore{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "cache-backing")),
	}, nil
}

func redisKey(key Key) string {
	return "orchestra:analysis:" + string(key.Kind) + ":" + key.Hash
}

// GetRaw fetches the stored encoding for key, or ErrCacheMiss.
func (s *RedisStore) GetRaw(ctx context.Context, key Key) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.New("backing store is closed")
	}

	val, err := s.redis.Get(ctx, redisKey(key)).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		s.logger.Warn("backing get failed", zap.String("hash", key.Hash), zap.Error(err))
		return nil, err
	}
	return val, nil
}

// SetRaw stores data under key with the given TTL (0 uses the
// configured default).
func (s *RedisStore) SetRaw(ctx context.Context, key Key, data []byte, ttl time.Duration) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("backing store is closed")
	}
	if ttl <= 0 {
		ttl = s.config.DefaultTTL
	}

	if err := s.redis.Set(ctx, redisKey(key), data, ttl).Err(); err != nil {
		s.logger.Warn("backing set failed", zap.String("hash", key.Hash), zap.Error(err))
		return err
	}
	return nil
}

// Delete removes keys from the backing store.
func (s *RedisStore) Delete(ctx context.Context, keys ...Key) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("backing store is closed")
	}
	if len(keys) == 0 {
		return nil
	}

	raw := make([]string, len(keys))
	for i, k := range keys {
		raw[i] = redisKey(k)
	}
	return s.redis.Del(ctx, raw...).Err()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("backing store is closed")
	}
	return s.redis.Ping(ctx).Err()
}

// Close releases the Redis connection. Safe to call twice.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.redis.Close()
}
