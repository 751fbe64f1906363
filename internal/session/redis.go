package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "admin:session:"

// RedisStorage はクライアントごとのハッシュに保存する Storage です。
// トークンとユーザーは同じハッシュのフィールドなので、HSET 一回で組として書き込まれます。
type RedisStorage struct {
	rdb      redis.Cmdable
	clientID string
	ttl      time.Duration
	timeout  time.Duration
}

// NewRedisStorage は RedisStorage を作成します。ttl が 0 以下の場合は期限を設定しません。
func NewRedisStorage(rdb redis.Cmdable, clientID string, ttl time.Duration) *RedisStorage {
	return &RedisStorage{
		rdb:      rdb,
		clientID: clientID,
		ttl:      ttl,
		timeout:  3 * time.Second,
	}
}

func (r *RedisStorage) key() string {
	return redisKeyPrefix + r.clientID
}

func (r *RedisStorage) GetItem(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	v, err := r.rdb.HGet(ctx, r.key(), key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisStorage) SetItems(items map[string]string) error {
	if len(items) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	values := make([]any, 0, len(items)*2)
	for k, v := range items {
		values = append(values, k, v)
	}

	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, r.key(), values...)
	if r.ttl > 0 {
		pipe.Expire(ctx, r.key(), r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStorage) RemoveItems(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	pipe := r.rdb.TxPipeline()
	pipe.HDel(ctx, r.key(), keys...)
	_, err := pipe.Exec(ctx)
	return err
}
