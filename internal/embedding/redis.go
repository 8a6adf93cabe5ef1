package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/vector"
)

// fifoSet inserts a field into a bounded hash, evicting the oldest field first.
// KEYS[1] is the hash, KEYS[2] the insertion-order list.
var fifoSet = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 1 then
  redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
  return 0
end
local max = tonumber(ARGV[3])
while redis.call('HLEN', KEYS[1]) >= max do
  local oldest = redis.call('LPOP', KEYS[2])
  if not oldest then break end
  redis.call('HDEL', KEYS[1], oldest)
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('RPUSH', KEYS[2], ARGV[1])
return 1
`)

// RedisCache is a FIFO-bounded cache shared across processes through Redis.
// Entries are scoped per model so switching models never serves stale vectors.
type RedisCache struct {
	client   *redis.Client
	hashKey  string
	orderKey string
	maxSize  int
	logger   *zap.Logger
}

// NewRedisCache connects to the Redis server at url (redis:// or host:port).
func NewRedisCache(ctx context.Context, url, prefix, model string, maxSize int, logger *zap.Logger) (*RedisCache, error) {
	opts, err := parseRedisURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return newRedisCache(client, prefix, model, maxSize, logger), nil
}

func newRedisCache(client *redis.Client, prefix, model string, maxSize int, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := prefix + model
	return &RedisCache{
		client:   client,
		hashKey:  base + ":vec",
		orderKey: base + ":order",
		maxSize:  maxSize,
		logger:   logger,
	}
}

func parseRedisURL(url string) (*redis.Options, error) {
	if strings.HasPrefix(url, "redis://") || strings.HasPrefix(url, "rediss://") {
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("invalid Redis URL: %w", err)
		}
		return opts, nil
	}
	if url == "" {
		url = "localhost:6379"
	}
	return &redis.Options{Addr: url}, nil
}

func fieldFor(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (c *RedisCache) Get(ctx context.Context, text string) ([]float32, bool) {
	data, err := c.client.HGet(ctx, c.hashKey, fieldFor(text)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("redis cache get failed", zap.Error(err))
		return nil, false
	}
	vec, err := vector.Decode(data)
	if err != nil {
		c.logger.Warn("redis cache entry corrupt", zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (c *RedisCache) Set(ctx context.Context, text string, vec []float32) {
	if c.maxSize <= 0 {
		return
	}
	err := fifoSet.Run(ctx, c.client, []string{c.hashKey, c.orderKey},
		fieldFor(text), vector.Encode(vec), c.maxSize).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn("redis cache set failed", zap.Error(err))
	}
}

func (c *RedisCache) Len(ctx context.Context) int {
	n, err := c.client.HLen(ctx, c.hashKey).Result()
	if err != nil {
		c.logger.Warn("redis cache len failed", zap.Error(err))
		return 0
	}
	return int(n)
}

// Close releases the Redis connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
