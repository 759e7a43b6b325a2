package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares pages between instances. Each post keeps a set of its
// page keys so invalidation can delete them together.
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisCache(url string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisCache{Client: redis.NewClient(opt), TTL: ttl}, nil
}

func (c *RedisCache) Get(ctx context.Context, postID string, page int, dest any) (bool, error) {
	val, err := c.Client.Get(ctx, pageKey(postID, page)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, postID string, page int, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	key := pageKey(postID, page)
	_, err = c.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, b, c.TTL)
		p.SAdd(ctx, pagesKey(postID), key)
		p.Expire(ctx, pagesKey(postID), c.TTL)
		return nil
	})
	return err
}

func (c *RedisCache) InvalidatePost(ctx context.Context, postID string) error {
	set := pagesKey(postID)
	keys, err := c.Client.SMembers(ctx, set).Result()
	if err != nil {
		return err
	}
	return c.Client.Del(ctx, append(keys, set)...).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}
