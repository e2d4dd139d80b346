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

// Package keys centralizes the key-value store namespace and TTL conventions.
// Format: {concern}:{entity}:{id}. Every component builds its keys through
// these helpers so a namespace is never owned by two call sites.
package keys

import (
	"strconv"
	"time"
)

const (
	// Cached entities (value, empty marker, or logical-expire envelope).
	cachePrefix = "cache:"
	// Mutual-exclusion and cache-rebuild locks.
	lockPrefix = "lock:"
	// Flash-sale stock counters and per-voucher ordered-user sets.
	seckillStockPrefix  = "seckill:stock:"
	seckillOrdersPrefix = "seckill:orders:"
	// Per-user feed inboxes and per-post like sets (sorted by timestamp).
	feedPrefix = "feed:"
	likePrefix = "like:"
	// Date-qualified id-generator sequences.
	seqPrefix = "seq:"
)

const (
	// CacheTTL is the base physical TTL for cached entities.
	CacheTTL = 30 * time.Minute
	// CacheTTLJitter is the maximum random addition to CacheTTL. Staggering
	// expiry across keys avoids a synchronized mass-expiry stampede.
	CacheTTLJitter = 20 * time.Minute
	// NegativeTTL bounds how long a confirmed-absent marker is served.
	NegativeTTL = 2 * time.Minute
	// LockTTL is the safety-net expiry for locks whose holder crashed.
	// It must sit well above the expected critical-section duration.
	LockTTL = 10 * time.Second
	// LogicalTTL is the default logical lifetime for pre-warmed entries.
	LogicalTTL = 20 * time.Minute
)

// Cache returns the cache key for an entity instance, e.g. "cache:shop:7".
func Cache(entity string, id int64) string {
	return cachePrefix + entity + ":" + strconv.FormatInt(id, 10)
}

// Lock returns the lock name guarding an entity instance, e.g. "shop:7".
// The lock manager adds the "lock:" prefix itself.
func Lock(entity string, id int64) string {
	return entity + ":" + strconv.FormatInt(id, 10)
}

// LockPrefix is the namespace the lock manager prepends to lock names.
const LockPrefix = lockPrefix

// SeckillStock returns the stock-counter key for a voucher.
func SeckillStock(voucherID int64) string {
	return seckillStockPrefix + strconv.FormatInt(voucherID, 10)
}

// SeckillOrders returns the ordered-users set key for a voucher.
func SeckillOrders(voucherID int64) string {
	return seckillOrdersPrefix + strconv.FormatInt(voucherID, 10)
}

// Feed returns the inbox key for a user.
func Feed(userID int64) string {
	return feedPrefix + strconv.FormatInt(userID, 10)
}

// Like returns the like-set key for a post.
func Like(postID int64) string {
	return likePrefix + strconv.FormatInt(postID, 10)
}

// Seq returns the date-qualified sequence key for an id kind. Qualifying by
// date resets the counter implicitly and keeps per-day issuance countable.
func Seq(kind string, day time.Time) string {
	return seqPrefix + kind + ":" + day.UTC().Format("2006:01:02")
}
