package ratelimit

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisConfig mirrors the teacher's config.RedisConfig shape.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// RedisStore backs Store with Redis INCRBY/EXPIRE, for deployments
// running more than one instance of the engine behind a load balancer,
// the same role the teacher's RedisStorage plays for Fiber's limiter
// middleware.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore builds the client without dialing: go-redis connects
// lazily on the first command, so construction never touches the
// network and never errors, and New can stay a simple constructor.
func NewRedisStore(cfg RedisConfig) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (r *RedisStore) Increment(ctx context.Context, key string, delta int, ttl time.Duration) (int, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.IncrBy(ctx, key, int64(delta))
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	total := incr.Val()
	if total < 0 {
		if err := r.client.Set(ctx, key, 0, ttl).Err(); err != nil {
			return 0, err
		}
		return 0, nil
	}
	return int(total), nil
}

// tryReserveScript runs the cap check and the grant as one atomic
// server-side step — Lua scripts execute to completion without
// interleaving with any other client's commands, so two concurrent
// callers near the cap can't both read the same stale remaining value.
var tryReserveScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
local requested = tonumber(ARGV[2])
local remaining = limit - current
if remaining <= 0 then
  return {0, 0}
end
local grant = requested
if grant > remaining then
  grant = remaining
end
redis.call('INCRBY', KEYS[1], grant)
redis.call('EXPIRE', KEYS[1], ARGV[3])
return {grant, 1}
`)

func (r *RedisStore) TryReserve(ctx context.Context, key string, limit, requested int, ttl time.Duration) (int, bool) {
	res, err := tryReserveScript.Run(ctx, r.client, []string{key}, limit, requested, int(ttl.Seconds())).Result()
	if err != nil {
		return 0, false
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return 0, false
	}
	grant, _ := vals[0].(int64)
	granted, _ := vals[1].(int64)
	return int(grant), granted == 1
}

func (r *RedisStore) Get(ctx context.Context, key string) (int, error) {
	v, err := r.client.Get(ctx, key).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
