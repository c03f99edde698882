package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// setScript CAS 写入: HASH 内 ver 字段与期望版本一致才更新。
// 返回新版本号，版本不匹配返回 -1。
var setScript = redis.NewScript(`
local ver = redis.call('HGET', KEYS[1], 'ver')
if not ver then ver = '0' end
if ver ~= ARGV[1] then return -1 end
local newver = tonumber(ver) + 1
redis.call('HSET', KEYS[1], 'ver', newver, 'val', ARGV[2])
return newver
`)

var delScript = redis.NewScript(`
local ver = redis.call('HGET', KEYS[1], 'ver')
if not ver then return -2 end
if ver ~= ARGV[1] then return -1 end
redis.call('DEL', KEYS[1])
return 0
`)

// RedisStore KVStore 的 Redis 实现
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "payments:kv:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, uint64, error) {
	res, err := s.client.HMGet(ctx, s.key(key), "val", "ver").Result()
	if err != nil {
		return nil, 0, fmt.Errorf("redis hmget: %w", err)
	}
	if res[0] == nil || res[1] == nil {
		return nil, 0, ErrNotFound
	}

	val, ok := res[0].(string)
	if !ok {
		return nil, 0, fmt.Errorf("redis: 非法的 val 类型")
	}
	var ver uint64
	if _, err := fmt.Sscanf(res[1].(string), "%d", &ver); err != nil {
		return nil, 0, fmt.Errorf("redis: 非法的 ver 值: %w", err)
	}
	return []byte(val), ver, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, version uint64) (uint64, error) {
	res, err := setScript.Run(ctx, s.client,
		[]string{s.key(key)},
		fmt.Sprintf("%d", version), string(value),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis cas set: %w", err)
	}
	if res < 0 {
		return 0, ErrConflict
	}
	return uint64(res), nil
}

func (s *RedisStore) Delete(ctx context.Context, key string, version uint64) error {
	res, err := delScript.Run(ctx, s.client,
		[]string{s.key(key)},
		fmt.Sprintf("%d", version),
	).Int64()
	if err != nil {
		return fmt.Errorf("redis cas del: %w", err)
	}
	switch res {
	case -2:
		return ErrNotFound
	case -1:
		return ErrConflict
	default:
		return nil
	}
}
