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

// Package kv abstracts the minimal key-value store surface the service needs:
// strings with TTL, atomic conditional set/delete, counters, sorted sets, and
// server-side scripting. Implementations may wrap github.com/redis/go-redis/v9
// (the production path) or the in-process Memory store (demos and tests).
package kv

import (
	"context"
	"time"
)

// Z is a sorted-set member with its score. Scores are unix-millisecond
// timestamps throughout this codebase, so they are carried as int64.
type Z struct {
	Member string
	Score  int64
}

// Store is the narrow contract every component is written against.
//
// Get distinguishes a present-but-empty value from an absent key: the second
// return is false only when the key does not exist. Collapsing the two would
// reintroduce the cache-penetration problem the empty marker exists to solve.
//
// Set with ttl == 0 stores the value without any store-level expiry.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error

	// CompareAndDel deletes key only if its current value equals expected,
	// as one atomic operation. Returns whether the deletion happened.
	CompareAndDel(ctx context.Context, key, expected string) (bool, error)

	Incr(ctx context.Context, key string) (int64, error)

	// Eval runs a server-side script. The script is the unit of atomicity:
	// all reads and writes it performs are indivisible with respect to every
	// other command against the store.
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)

	ZAdd(ctx context.Context, key, member string, score int64) error
	ZRem(ctx context.Context, key, member string) error
	ZScore(ctx context.Context, key, member string) (int64, bool, error)
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// ZRevRangeByScore returns up to count members with score <= max in
	// descending score order, skipping the first offset matches.
	ZRevRangeByScore(ctx context.Context, key string, max int64, offset, count int64) ([]Z, error)
}
