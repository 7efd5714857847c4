// Package cache Redis 缓存封装
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache 键值缓存
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// GetJSON 命中时解码到 dest 并返回 true
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Key(parts ...string) string
}

// redisCache 基于 go-redis 的实现
type redisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache 创建缓存，所有键以 prefix 开头
func NewRedisCache(client *redis.Client, prefix string) Cache {
	return &redisCache{client: client, prefix: prefix}
}

// Get 未命中返回空串
func (c *redisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *redisCache) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, fmt.Errorf("decode cache %s: %w", key, err)
	}
	return true, nil
}

func (c *redisCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Key 生成 prefix:part1:part2 形式的键
func (c *redisCache) Key(parts ...string) string {
	key := c.prefix
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

// TokenStore 把缓存适配为 access token 存储
type TokenStore struct {
	Cache Cache
}

func (s TokenStore) GetToken(ctx context.Context, key string) (string, error) {
	return s.Cache.Get(ctx, s.Cache.Key(key))
}

func (s TokenStore) SetToken(ctx context.Context, key, token string, ttl time.Duration) error {
	return s.Cache.Set(ctx, s.Cache.Key(key), token, ttl)
}

func (s TokenStore) DeleteToken(ctx context.Context, key string) error {
	return s.Cache.Delete(ctx, s.Cache.Key(key))
}
