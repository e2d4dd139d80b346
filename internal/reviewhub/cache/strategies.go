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

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"reviewhub/internal/reviewhub/telemetry"
)

// PassThrough reads key, serving hits (including the confirmed-absent
// marker) without touching the backing store. On a true miss it loads,
// writes back the entity with jittered TTL or the empty marker with the
// short negative TTL, and returns the result.
func PassThrough[T any](ctx context.Context, c *Client, key string, load Loader[T]) (T, bool, error) {
	var zero T
	raw, present, err := c.store.Get(ctx, key)
	if err != nil {
		return zero, false, err
	}
	if present {
		return recordHit[T]("pass_through", raw)
	}
	telemetry.CacheMiss("pass_through")

	v, found, err := load(ctx)
	if err != nil {
		return zero, false, err
	}
	if err := writeEntry(ctx, c, key, v, found); err != nil {
		return zero, false, err
	}
	return v, found, nil
}

// WithMutex is PassThrough with a per-key rebuild lock on the miss path: all
// concurrent readers of a cold key serialize on the lock, so the backing
// store is loaded at most once and everyone else picks the value up from the
// cache on a later attempt. The loop is bounded; when the retry budget runs
// out (a holder stuck past its TTL, or pathological contention) the caller
// gets ErrContention rather than an unbounded wait.
func WithMutex[T any](ctx context.Context, c *Client, key, lockName string, load Loader[T]) (T, bool, error) {
	var zero T
	for attempt := 0; attempt < c.opts.RetryAttempts; attempt++ {
		raw, present, err := c.store.Get(ctx, key)
		if err != nil {
			return zero, false, err
		}
		if present {
			return recordHit[T]("mutex", raw)
		}

		tok, acquired, err := c.locks.TryAcquire(ctx, lockName, c.opts.LockTTL)
		if err != nil {
			return zero, false, err
		}
		if !acquired {
			// The holder is populating the cache; back off and re-read.
			telemetry.LockContention()
			select {
			case <-ctx.Done():
				return zero, false, ctx.Err()
			case <-time.After(c.opts.RetryDelay):
			}
			continue
		}

		v, found, err := func() (T, bool, error) {
			defer tok.Release(context.WithoutCancel(ctx))

			// Another holder may have populated the cache between our read
			// and the acquisition; don't load twice.
			raw, present, err := c.store.Get(ctx, key)
			if err != nil {
				return zero, false, err
			}
			if present {
				return recordHit[T]("mutex", raw)
			}
			telemetry.CacheMiss("mutex")

			v, found, err := load(ctx)
			if err != nil {
				return zero, false, err
			}
			if err := writeEntry(ctx, c, key, v, found); err != nil {
				return zero, false, err
			}
			return v, found, nil
		}()
		return v, found, err
	}
	return zero, false, ErrContention
}

// envelope wraps a logically-expiring entry. It is stored with no physical
// TTL; ExpireAt alone decides staleness.
type envelope struct {
	ExpireAt int64           `json:"expire_at"` // unix milliseconds
	Data     json.RawMessage `json:"data"`
}

// SetLogical warms (or rewrites) a logically-expiring entry. Keys in this
// namespace must be pre-warmed: WithLogicalExpire treats a missing key as
// not-found rather than loading synchronously.
func SetLogical[T any](ctx context.Context, c *Client, key string, v T, lifetime time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode logical entry: %w", err)
	}
	raw, err := json.Marshal(envelope{
		ExpireAt: c.now().Add(lifetime).UnixMilli(),
		Data:     data,
	})
	if err != nil {
		return fmt.Errorf("cache: encode logical envelope: %w", err)
	}
	return c.store.Set(ctx, key, string(raw), 0)
}

// WithLogicalExpire returns the current value without ever blocking on a
// rebuild. A fresh entry is returned as-is. A stale entry is still returned
// immediately; if the rebuild lock is free, a refresh is handed to the
// bounded worker pool, and otherwise a rebuild is already in flight and
// nothing more is needed. A missing key means the entry was never warmed.
func WithLogicalExpire[T any](ctx context.Context, c *Client, key, lockName string, lifetime time.Duration, load Loader[T]) (T, bool, error) {
	var zero T
	raw, present, err := c.store.Get(ctx, key)
	if err != nil {
		return zero, false, err
	}
	if !present {
		telemetry.CacheMiss("logical")
		return zero, false, nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return zero, false, fmt.Errorf("cache: decode logical envelope: %w", err)
	}
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return zero, false, fmt.Errorf("cache: decode logical entry: %w", err)
	}
	telemetry.CacheHit("logical")

	if env.ExpireAt > c.now().UnixMilli() {
		return v, true, nil
	}

	// Stale: kick off at most one background rebuild, then serve the stale
	// value anyway. Losing the lock race means a rebuild is already running.
	tok, acquired, err := c.locks.TryAcquire(ctx, lockName, c.opts.LockTTL)
	if err == nil && acquired {
		submitted := c.rebuilds.Submit(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			defer tok.Release(ctx)

			fresh, found, err := load(ctx)
			if err != nil {
				fmt.Printf("cache: rebuild of %s failed: %v\n", key, err)
				return
			}
			if !found {
				// The entity vanished from the backing store; drop the entry
				// so readers stop seeing the stale ghost.
				if err := c.store.Del(ctx, key); err != nil {
					fmt.Printf("cache: drop of %s failed: %v\n", key, err)
				}
				return
			}
			if err := SetLogical(ctx, c, key, fresh, lifetime); err != nil {
				fmt.Printf("cache: rewrite of %s failed: %v\n", key, err)
				return
			}
			telemetry.CacheRebuild()
		})
		if !submitted {
			// Pool saturated; release so a later reader can try again.
			tok.Release(context.WithoutCancel(ctx))
		}
	}
	return v, true, nil
}

// recordHit decodes a present value and counts it against the strategy.
func recordHit[T any](strategy, raw string) (T, bool, error) {
	v, found, err := decode[T](raw)
	if err != nil {
		return v, false, err
	}
	if found {
		telemetry.CacheHit(strategy)
	} else {
		telemetry.CacheNegativeHit(strategy)
	}
	return v, found, nil
}
