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

// Package cache implements the read path between request handlers and the
// backing store. Three strategies share one key namespace and one loader
// shape; a given key must only ever be served by one strategy:
//
//   - PassThrough: plain cache-aside with negative caching and TTL jitter.
//   - WithMutex: per-key rebuild lock so a cold key loads from the backing
//     store at most once across all concurrent readers.
//   - WithLogicalExpire: values never physically expire; staleness is an
//     embedded timestamp and refresh happens off the read path on a bounded
//     worker pool. Readers are never blocked on a rebuild.
//
// Writers invalidate (delete) the key after updating the backing store so
// the next read observes fresh data.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"reviewhub/internal/reviewhub/keys"
	"reviewhub/internal/reviewhub/kv"
	"reviewhub/internal/reviewhub/lock"
)

// ErrContention is returned by WithMutex when the rebuild lock could not be
// acquired within the configured retry budget. It signals sustained
// contention, not a store failure; callers may retry the whole request.
var ErrContention = errors.New("cache: rebuild lock contention, retries exhausted")

// Loader fetches the entity from the backing store. The boolean reports
// whether the entity exists; absence is not an error.
type Loader[T any] func(ctx context.Context) (T, bool, error)

// Options tunes the strategies. Zero values fall back to the package
// defaults from the keys package.
type Options struct {
	// TTL is the base physical lifetime for PassThrough/WithMutex entries.
	TTL time.Duration
	// TTLJitter is the maximum random addition to TTL, staggering expiry
	// across keys written around the same time.
	TTLJitter time.Duration
	// NegativeTTL bounds how long a confirmed-absent marker is served.
	NegativeTTL time.Duration
	// LockTTL is the rebuild-lock safety net.
	LockTTL time.Duration
	// RetryAttempts bounds the WithMutex wait-for-holder loop.
	RetryAttempts int
	// RetryDelay is the sleep between WithMutex attempts.
	RetryDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = keys.CacheTTL
	}
	if o.TTLJitter < 0 {
		o.TTLJitter = 0
	}
	if o.NegativeTTL <= 0 {
		o.NegativeTTL = keys.NegativeTTL
	}
	if o.LockTTL <= 0 {
		o.LockTTL = keys.LockTTL
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 20
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 50 * time.Millisecond
	}
	return o
}

// Client owns the store handle, the rebuild lock manager, and the async
// rebuild pool. Construct once at process start and share.
type Client struct {
	store    kv.Store
	locks    *lock.Manager
	rebuilds *RebuildPool
	opts     Options

	// now is the clock; tests substitute it to control logical expiry.
	now func() time.Time
}

// New returns a Client. rebuilds may be nil when the logical-expiration
// strategy is unused; the other strategies never touch it.
func New(store kv.Store, locks *lock.Manager, rebuilds *RebuildPool, opts Options) *Client {
	return &Client{
		store:    store,
		locks:    locks,
		rebuilds: rebuilds,
		opts:     opts.withDefaults(),
		now:      time.Now,
	}
}

// Invalidate deletes the key so the next read rebuilds from the backing
// store. Every write path calls this after its durable update, under all
// strategies; the logical-expiration namespace is then re-warmed by the
// async rebuild rather than eagerly repopulated here.
func (c *Client) Invalidate(ctx context.Context, key string) error {
	return c.store.Del(ctx, key)
}

// entryTTL is the physical lifetime for one written entry: base plus an
// independent random jitter per key.
func (c *Client) entryTTL() time.Duration {
	ttl := c.opts.TTL
	if c.opts.TTLJitter > 0 {
		ttl += time.Duration(rand.Int64N(int64(c.opts.TTLJitter)))
	}
	return ttl
}

// decode interprets a present cache value: the empty marker means the
// entity is confirmed absent.
func decode[T any](raw string) (T, bool, error) {
	var v T
	if raw == "" {
		return v, false, nil
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return v, false, fmt.Errorf("cache: decode entry: %w", err)
	}
	return v, true, nil
}

// writeEntry stores either the entity or the empty marker, as the
// pass-through and mutex strategies both require after a load.
func writeEntry[T any](ctx context.Context, c *Client, key string, v T, found bool) error {
	if !found {
		return c.store.Set(ctx, key, "", c.opts.NegativeTTL)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode entry: %w", err)
	}
	return c.store.Set(ctx, key, string(data), c.entryTTL())
}
