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

// Package like keeps per-post like state in a sorted set keyed by liker,
// scored by like time, so membership checks and the "earliest likers"
// leaderboard both come from the same structure. The relational counter on
// the post is the source of truth and is adjusted before the set, so a
// failed adjustment never leaves a phantom membership.
package like

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"reviewhub/internal/reviewhub/keys"
	"reviewhub/internal/reviewhub/kv"
	"reviewhub/internal/reviewhub/store"
)

// ErrPostNotFound reports a like against a post the backing store does not have.
var ErrPostNotFound = errors.New("like: post not found")

// Registry toggles and queries per-post likes.
type Registry struct {
	kvs     kv.Store
	backing store.Store

	now func() time.Time
}

// New returns a Registry over the given key-value and backing stores.
func New(kvs kv.Store, backing store.Store) *Registry {
	return &Registry{kvs: kvs, backing: backing, now: time.Now}
}

// Toggle flips the like of userID on postID and reports the resulting state:
// true when the call added a like, false when it removed one.
func (r *Registry) Toggle(ctx context.Context, postID, userID int64) (bool, error) {
	if _, ok, err := r.backing.GetBlog(ctx, postID); err != nil {
		return false, fmt.Errorf("like: load post %d: %w", postID, err)
	} else if !ok {
		return false, ErrPostNotFound
	}

	key := keys.Like(postID)
	member := strconv.FormatInt(userID, 10)
	_, liked, err := r.kvs.ZScore(ctx, key, member)
	if err != nil {
		return false, fmt.Errorf("like: check membership: %w", err)
	}

	if liked {
		changed, err := r.backing.AdjustBlogLiked(ctx, postID, -1)
		if err != nil {
			return false, fmt.Errorf("like: decrement post %d: %w", postID, err)
		}
		if changed {
			if err := r.kvs.ZRem(ctx, key, member); err != nil {
				return false, fmt.Errorf("like: remove member: %w", err)
			}
		}
		return false, nil
	}

	changed, err := r.backing.AdjustBlogLiked(ctx, postID, 1)
	if err != nil {
		return false, fmt.Errorf("like: increment post %d: %w", postID, err)
	}
	if changed {
		if err := r.kvs.ZAdd(ctx, key, member, r.now().UnixMilli()); err != nil {
			return false, fmt.Errorf("like: add member: %w", err)
		}
	}
	return true, nil
}

// IsLiked reports whether userID currently likes postID.
func (r *Registry) IsLiked(ctx context.Context, postID, userID int64) (bool, error) {
	_, ok, err := r.kvs.ZScore(ctx, keys.Like(postID), strconv.FormatInt(userID, 10))
	if err != nil {
		return false, fmt.Errorf("like: check membership: %w", err)
	}
	return ok, nil
}

// TopLikers returns the profiles of the first k users to like postID, in
// like order. The profile lookup preserves that order even though the
// backing store resolves the ids in a single batch.
func (r *Registry) TopLikers(ctx context.Context, postID int64, k int64) ([]store.User, error) {
	if k <= 0 {
		return nil, nil
	}
	members, err := r.kvs.ZRange(ctx, keys.Like(postID), 0, k-1)
	if err != nil {
		return nil, fmt.Errorf("like: read earliest likers: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("like: corrupt member %q: %w", m, err)
		}
		ids = append(ids, id)
	}
	users, err := r.backing.ListUsersByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("like: resolve likers: %w", err)
	}
	return users, nil
}
