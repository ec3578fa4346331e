package statestore

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// compareAndSwapScript implements an atomic get-and-conditionally-set: it
// reads the current value, compares it against ARGV[1] (empty string
// standing in for "key must be absent"), and only then writes ARGV[2] with
// the TTL in ARGV[3] seconds (0 meaning no expiry). Returns 1 on success, 0
// on mismatch. Redis executes Lua scripts atomically, so this gives the
// store's CompareAndSwap operation the single round-trip atomicity the
// interface promises without requiring Redis transactions (WATCH/MULTI)
// from the caller.
const compareAndSwapScript = `
local current = redis.call('GET', KEYS[1])
local expectAbsent = ARGV[1] == ''
if expectAbsent then
  if current then
    return 0
  end
else
  if current ~= ARGV[1] then
    return 0
  end
end
if tonumber(ARGV[3]) > 0 then
  redis.call('SET', KEYS[1], ARGV[2], 'EX', ARGV[3])
else
  redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`

// RedisStore is the production Shared State Store backend (§4.A): a
// process-external, HA-assumed key/value store reached over the network,
// grounded on github.com/go-redis/redis/v8 as named in the domain stack.
type RedisStore struct {
	client *redis.Client
	script *redis.Script
}

// NewRedisStore connects to the given Redis hosts. Only the first host is
// used directly; a sentinel/cluster-aware client is a deployment concern
// left to the operator via REDIS_HOSTS's ordering.
func NewRedisStore(hosts []string) *RedisStore {
	addr := "localhost:6379"
	if len(hosts) > 0 {
		addr = hosts[0]
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisStore{client: client, script: redis.NewScript(compareAndSwapScript)}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	return val, err
}

func (r *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, key, value, 0).Err()
}

func (r *RedisStore) PutWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisStore) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyExists
	}
	return nil
}

func (r *RedisStore) CompareAndSwap(ctx context.Context, key string, oldValue, newValue []byte, ttl time.Duration) error {
	expect := ""
	if oldValue != nil {
		expect = string(oldValue)
	}
	ttlSeconds := int64(0)
	if ttl > 0 {
		ttlSeconds = int64(ttl.Seconds())
		if ttlSeconds < 1 {
			ttlSeconds = 1
		}
	}

	result, err := r.script.Run(ctx, r.client, []string{key}, expect, string(newValue), ttlSeconds).Int()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrCASMismatch
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisStore) ListByPrefix(ctx context.Context, prefix string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			val, err := r.client.Get(ctx, k).Bytes()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return nil, err
			}
			out[k] = val
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

func (r *RedisStore) RemainingTTL(ctx context.Context, key string) (time.Duration, error) {
	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, ErrNotFound
	}

	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return -1, nil
	}
	return ttl, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
