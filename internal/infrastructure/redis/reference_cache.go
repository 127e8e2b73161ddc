package redisstore

import (
	"context"

	"price-aggregator/internal/application"

	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "aggregator:ref:"

// ReferenceCache keeps each reference list in one hash.
type ReferenceCache struct {
	Client *redis.Client
	Prefix string
}

var _ application.ReferenceCache = (*ReferenceCache)(nil)

func New(client *redis.Client) *ReferenceCache {
	return &ReferenceCache{Client: client, Prefix: DefaultPrefix}
}

func (c *ReferenceCache) GetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.Client.HGetAll(ctx, c.Prefix+key).Result()
}

func (c *ReferenceCache) SetAll(ctx context.Context, key string, entries map[string]string, overwrite bool) error {
	k := c.Prefix + key
	_, err := c.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if overwrite {
			p.Del(ctx, k)
		}
		if len(entries) > 0 {
			p.HSet(ctx, k, entries)
		}
		return nil
	})
	return err
}
