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

package like

import (
	"context"
	"errors"
	"testing"
	"time"

	"reviewhub/internal/reviewhub/kv"
	"reviewhub/internal/reviewhub/store"
)

func newTestRegistry(t *testing.T) (*Registry, *store.Memory, *time.Time) {
	t.Helper()
	m := kv.NewMemory()
	backing := store.NewMemory()
	backing.AddBlog(store.Blog{ID: 1, UserID: 100, Title: "post"})
	reg := New(m, backing)
	now := time.UnixMilli(1000)
	reg.now = func() time.Time { return now }
	return reg, backing, &now
}

func TestToggleFlipsStateAndCounter(t *testing.T) {
	reg, backing, _ := newTestRegistry(t)
	ctx := context.Background()

	liked, err := reg.Toggle(ctx, 1, 7)
	if err != nil || !liked {
		t.Fatalf("first toggle: liked=%v err=%v", liked, err)
	}
	if ok, _ := reg.IsLiked(ctx, 1, 7); !ok {
		t.Fatal("IsLiked should report true after liking")
	}
	if b, _, _ := backing.GetBlog(ctx, 1); b.Liked != 1 {
		t.Fatalf("counter = %d after like, want 1", b.Liked)
	}

	liked, err = reg.Toggle(ctx, 1, 7)
	if err != nil || liked {
		t.Fatalf("second toggle: liked=%v err=%v", liked, err)
	}
	if ok, _ := reg.IsLiked(ctx, 1, 7); ok {
		t.Fatal("IsLiked should report false after unliking")
	}
	if b, _, _ := backing.GetBlog(ctx, 1); b.Liked != 0 {
		t.Fatalf("counter = %d after unlike, want 0", b.Liked)
	}
}

func TestToggleDistinctUsersAccumulate(t *testing.T) {
	reg, backing, _ := newTestRegistry(t)
	ctx := context.Background()

	for userID := int64(1); userID <= 3; userID++ {
		if _, err := reg.Toggle(ctx, 1, userID); err != nil {
			t.Fatalf("toggle user %d: %v", userID, err)
		}
	}
	if b, _, _ := backing.GetBlog(ctx, 1); b.Liked != 3 {
		t.Fatalf("counter = %d, want 3", b.Liked)
	}
}

func TestToggleUnknownPost(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	if _, err := reg.Toggle(context.Background(), 99, 7); !errors.Is(err, ErrPostNotFound) {
		t.Fatalf("err = %v, want ErrPostNotFound", err)
	}
}

func TestTopLikersOrderedByLikeTime(t *testing.T) {
	reg, backing, now := newTestRegistry(t)
	ctx := context.Background()
	backing.AddUser(store.User{ID: 3, Name: "third"})
	backing.AddUser(store.User{ID: 1, Name: "first"})
	backing.AddUser(store.User{ID: 2, Name: "second"})

	// Like in the order 1, 2, 3 with advancing timestamps.
	for _, userID := range []int64{1, 2, 3} {
		if _, err := reg.Toggle(ctx, 1, userID); err != nil {
			t.Fatalf("toggle user %d: %v", userID, err)
		}
		*now = now.Add(time.Second)
	}

	users, err := reg.TopLikers(ctx, 1, 2)
	if err != nil {
		t.Fatalf("TopLikers: %v", err)
	}
	if len(users) != 2 || users[0].Name != "first" || users[1].Name != "second" {
		t.Fatalf("top likers = %+v, want first then second", users)
	}

	// Unliking removes the user from the leaderboard.
	if _, err := reg.Toggle(ctx, 1, 1); err != nil {
		t.Fatalf("unlike: %v", err)
	}
	users, err = reg.TopLikers(ctx, 1, 5)
	if err != nil {
		t.Fatalf("TopLikers: %v", err)
	}
	if len(users) != 2 || users[0].Name != "second" || users[1].Name != "third" {
		t.Fatalf("top likers after unlike = %+v", users)
	}
}

func TestTopLikersEmpty(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	users, err := reg.TopLikers(context.Background(), 1, 5)
	if err != nil {
		t.Fatalf("TopLikers: %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("expected no likers, got %+v", users)
	}
}
