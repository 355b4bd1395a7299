package seen

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the narrow slice of redis the store needs; tests substitute
// a fake.
type RedisClient interface {
	SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// RedisStore shares processed-coordinate state across worker restarts.
// Errors degrade to "not seen": a redis outage must never block the
// pipeline, it only risks duplicate publishes.
type RedisStore struct {
	client RedisClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisStore(client RedisClient, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, logger: slog.Default()}
}

func (r *RedisStore) Seen(ctx context.Context, key string) bool {
	if key == "" {
		return false
	}
	exists, err := r.client.Exists(ctx, r.prefix+key)
	if err != nil {
		r.logger.Warn("seen store exists failed", "key", key, "error", err)
		return false
	}
	return exists
}

func (r *RedisStore) Mark(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if _, err := r.client.SetNX(ctx, r.prefix+key, r.ttl); err != nil {
		r.logger.Warn("seen store mark failed", "key", key, "error", err)
	}
}

type goRedisClient struct {
	rdb *redis.Client
}

// newGoRedisClient accepts a redis:// URL or a bare host:port address.
func newGoRedisClient(url string) *goRedisClient {
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}
	return &goRedisClient{rdb: redis.NewClient(opts)}
}

func (c *goRedisClient) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, "1", ttl).Result()
}

func (c *goRedisClient) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
