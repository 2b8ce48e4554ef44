package data

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sober-studio/asset-vault-go-kratos/internal/biz"
)

const urlCachePrefix = "asset:url:"

type redisURLCache struct {
	data *Data
}

func NewRedisURLCache(data *Data) biz.URLCache {
	return &redisURLCache{data: data}
}

func (r *redisURLCache) Set(ctx context.Context, k, v string, exp time.Duration) error {
	return r.data.RDB().Set(ctx, urlCachePrefix+k, v, exp).Err()
}

func (r *redisURLCache) Get(ctx context.Context, k string) (string, error) {
	res, err := r.data.RDB().Get(ctx, urlCachePrefix+k).Result()
	if errors.Is(err, redis.Nil) {
		return "", biz.ErrURLCacheMiss
	}
	if err != nil {
		return "", err
	}
	return res, nil
}

func (r *redisURLCache) Del(ctx context.Context, k string) error {
	return r.data.RDB().Del(ctx, urlCachePrefix+k).Err()
}
