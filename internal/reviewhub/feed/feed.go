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

// Package feed implements a push-model timeline: publishing a post writes it
// into every current follower's sorted inbox (fan-out-on-write), and reading
// pages through the inbox newest-first with a cursor that stays stable when
// several entries share one timestamp.
package feed

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"reviewhub/internal/reviewhub/keys"
	"reviewhub/internal/reviewhub/kv"
	"reviewhub/internal/reviewhub/store"
	"reviewhub/internal/reviewhub/telemetry"
)

// DefaultPageSize matches the product's feed page of two entries.
const DefaultPageSize = 2

// Timeline fans posts out to follower inboxes and paginates them.
type Timeline struct {
	kvs      kv.Store
	backing  store.Store
	pageSize int64
}

// New returns a Timeline. pageSize <= 0 selects DefaultPageSize.
func New(kvs kv.Store, backing store.Store, pageSize int64) *Timeline {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Timeline{kvs: kvs, backing: backing, pageSize: pageSize}
}

// Publish appends postID to the inbox of every user following authorID right
// now, scored by the publish timestamp in milliseconds. Followers gained
// later do not receive the post retroactively.
func (t *Timeline) Publish(ctx context.Context, authorID, postID int64, at time.Time) error {
	followers, err := t.backing.FollowerIDs(ctx, authorID)
	if err != nil {
		return fmt.Errorf("feed: list followers of %d: %w", authorID, err)
	}
	member := strconv.FormatInt(postID, 10)
	score := at.UnixMilli()
	for _, f := range followers {
		if err := t.kvs.ZAdd(ctx, keys.Feed(f), member, score); err != nil {
			return fmt.Errorf("feed: fan out post %d to %d: %w", postID, f, err)
		}
	}
	telemetry.FeedFanout(len(followers))
	return nil
}

// Page is one inbox slice plus the cursor for the next call: pass MinTime as
// the next max and Offset as the next offset. A zero MinTime means the inbox
// is exhausted.
type Page struct {
	PostIDs []int64 `json:"post_ids"`
	MinTime int64   `json:"min_time"`
	Offset  int64   `json:"offset"`
}

// Pull reads the inbox of userID in descending score order, bounded above by
// max (unix ms) and skipping offset entries at that bound.
//
// The cursor is (MinTime, Offset) rather than a running skip count: Offset
// counts how many returned entries sit exactly at MinTime, so the next page
// skips precisely those ties even when they straddle the page boundary.
func (t *Timeline) Pull(ctx context.Context, userID, max, offset int64) (Page, error) {
	entries, err := t.kvs.ZRevRangeByScore(ctx, keys.Feed(userID), max, offset, t.pageSize)
	if err != nil {
		return Page{}, fmt.Errorf("feed: read inbox of %d: %w", userID, err)
	}
	if len(entries) == 0 {
		return Page{}, nil
	}

	page := Page{PostIDs: make([]int64, 0, len(entries))}
	var minTime int64
	var ties int64
	for _, e := range entries {
		id, err := strconv.ParseInt(e.Member, 10, 64)
		if err != nil {
			return Page{}, fmt.Errorf("feed: corrupt inbox member %q: %w", e.Member, err)
		}
		page.PostIDs = append(page.PostIDs, id)
		if e.Score == minTime {
			ties++
		} else {
			minTime = e.Score
			ties = 1
		}
	}
	page.MinTime = minTime
	page.Offset = ties
	if minTime == max {
		// Still on the same timestamp as the previous page: the already
		// skipped ties stay skipped.
		page.Offset += offset
	}
	return page, nil
}
