package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// popScript atomically returns and deletes a key, giving CompareAndDelete the
// same single-redemption guarantee the in-memory store gets from its mutex.
var popScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if v then
	redis.call("DEL", KEYS[1])
end
return v
`)

// RedisStore is the pluggable, horizontally-scalable KVStore (spec §9:
// "production implementations MUST substitute a TTL-capable KV store behind
// the same small interface").
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an existing go-redis client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisStore) CompareAndDelete(ctx context.Context, key string) ([]byte, bool, error) {
	res, err := popScript.Run(ctx, r.client, []string{key}).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if res == nil {
		return nil, false, nil
	}
	s, ok := res.(string)
	if !ok {
		return nil, false, nil
	}
	return []byte(s), true, nil
}
