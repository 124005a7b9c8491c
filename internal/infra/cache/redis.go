package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/NewsPager/internal/domain"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "news:page:"

// RedisPageCache keeps backend responses in Redis so that several server
// instances share one cache. Each query is one hash with a field per page;
// the TTL applies to the whole hash and restarts on every write.
type RedisPageCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisPageCache connects to redisURL (redis://:pass@host:6379/0) and fails
// fast when the server does not answer.
func NewRedisPageCache(ctx context.Context, redisURL, prefix string, ttl time.Duration) (*RedisPageCache, error) {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisPageCache{rdb: rdb, prefix: prefix, ttl: ttl}, nil
}

func (c *RedisPageCache) key(query string) string {
	return c.prefix + query
}

func field(page domain.PageKey) string {
	return strconv.FormatInt(int64(page), 10)
}

func (c *RedisPageCache) GetPage(ctx context.Context, query string, page domain.PageKey) (*domain.FeedResponse, bool, error) {
	data, err := c.rdb.HGet(ctx, c.key(query), field(page)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached page: %w", err)
	}

	var resp domain.FeedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached page: %w", err)
	}
	return &resp, true, nil
}

func (c *RedisPageCache) PutPage(ctx context.Context, query string, page domain.PageKey, resp *domain.FeedResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode page: %w", err)
	}
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, c.key(query), field(page), data)
		if c.ttl > 0 {
			pipe.Expire(ctx, c.key(query), c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write cached page: %w", err)
	}
	return nil
}

func (c *RedisPageCache) DropQuery(ctx context.Context, query string) error {
	if err := c.rdb.Del(ctx, c.key(query)).Err(); err != nil {
		return fmt.Errorf("failed to drop cached pages: %w", err)
	}
	return nil
}

func (c *RedisPageCache) Close() error {
	return c.rdb.Close()
}
