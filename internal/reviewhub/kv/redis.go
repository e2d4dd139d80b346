// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package kv

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Redis is the production Store backed by github.com/redis/go-redis/v9.
// Use NewRedis to construct it with an address like "127.0.0.1:6379".
type Redis struct {
	c *redis.Client
}

// NewRedis dials the given address and returns a ready Store.
// The underlying client manages its own connection pool.
func NewRedis(addr string) *Redis {
	return &Redis{c: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewRedisFromClient wraps an already-configured client (e.g. with custom
// pool sizing or TLS) without taking ownership of its lifecycle.
func NewRedisFromClient(c *redis.Client) *Redis {
	return &Redis{c: c}
}

// Close releases the underlying client's connections.
func (r *Redis) Close() error { return r.c.Close() }

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.c.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.c.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := r.c.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

func (r *Redis) Del(ctx context.Context, key string) error {
	if err := r.c.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// compareAndDelScript deletes the key only when its value still equals the
// expected token. A plain GET followed by DEL would race with another writer
// that set the key between the two commands.
const compareAndDelScript = `
if redis.call('get', KEYS[1]) == ARGV[1] then
  return redis.call('del', KEYS[1])
end
return 0
`

func (r *Redis) CompareAndDel(ctx context.Context, key, expected string) (bool, error) {
	res, err := r.c.Eval(ctx, compareAndDelScript, []string{key}, expected).Result()
	if err != nil {
		return false, fmt.Errorf("redis compare-and-del %s: %w", key, err)
	}
	n, _ := res.(int64)
	return n == 1, nil
}

func (r *Redis) Incr(ctx context.Context, key string) (int64, error) {
	n, err := r.c.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	return n, nil
}

func (r *Redis) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return r.c.Eval(ctx, script, keys, args...).Result()
}

func (r *Redis) ZAdd(ctx context.Context, key, member string, score int64) error {
	if err := r.c.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: member}).Err(); err != nil {
		return fmt.Errorf("redis zadd %s: %w", key, err)
	}
	return nil
}

func (r *Redis) ZRem(ctx context.Context, key, member string) error {
	if err := r.c.ZRem(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("redis zrem %s: %w", key, err)
	}
	return nil
}

func (r *Redis) ZScore(ctx context.Context, key, member string) (int64, bool, error) {
	score, err := r.c.ZScore(ctx, key, member).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis zscore %s: %w", key, err)
	}
	return int64(score), true, nil
}

func (r *Redis) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	members, err := r.c.ZRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange %s: %w", key, err)
	}
	return members, nil
}

func (r *Redis) ZRevRangeByScore(ctx context.Context, key string, max int64, offset, count int64) ([]Z, error) {
	zs, err := r.c.ZRevRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min:    "0",
		Max:    strconv.FormatInt(max, 10),
		Offset: offset,
		Count:  count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrevrangebyscore %s: %w", key, err)
	}
	out := make([]Z, 0, len(zs))
	for _, z := range zs {
		m, ok := z.Member.(string)
		if !ok {
			m = fmt.Sprint(z.Member)
		}
		out = append(out, Z{Member: m, Score: int64(z.Score)})
	}
	return out, nil
}
