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

package store

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemory_DecrementStockStopsAtZero(t *testing.T) {
	m := NewMemory()
	m.AddVoucher(Voucher{ID: 1, Stock: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := m.DecrementStock(ctx, 1)
		if err != nil || !ok {
			t.Fatalf("decrement %d should succeed: ok=%v err=%v", i, ok, err)
		}
	}
	ok, err := m.DecrementStock(ctx, 1)
	if err != nil || ok {
		t.Fatalf("decrement past zero must fail the predicate: ok=%v err=%v", ok, err)
	}
	v, _, _ := m.GetVoucher(ctx, 1)
	if v.Stock != 0 {
		t.Fatalf("stock should rest at 0, got %d", v.Stock)
	}
}

func TestMemory_ConcurrentDecrementNeverOversells(t *testing.T) {
	m := NewMemory()
	m.AddVoucher(Voucher{ID: 1, Stock: 5})
	ctx := context.Background()

	const attempts = 50
	var wg sync.WaitGroup
	wg.Add(attempts)
	var mu sync.Mutex
	oks := 0
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			if ok, _ := m.DecrementStock(ctx, 1); ok {
				mu.Lock()
				oks++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if oks != 5 {
		t.Fatalf("expected exactly 5 successful decrements, got %d", oks)
	}
}

func TestMemory_CreateOrderRejectsUserVoucherDuplicate(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	first := Order{ID: 10, UserID: 1, VoucherID: 2, CreatedAt: time.Now()}
	if err := m.CreateOrder(ctx, first); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	dup := Order{ID: 11, UserID: 1, VoucherID: 2, CreatedAt: time.Now()}
	if err := m.CreateOrder(ctx, dup); err == nil {
		t.Fatalf("duplicate (user, voucher) insert must fail")
	}
	if n, _ := m.CountOrders(ctx, 1, 2); n != 1 {
		t.Fatalf("expected 1 order, got %d", n)
	}
}

func TestMemory_ListUsersByIDsPreservesOrder(t *testing.T) {
	m := NewMemory()
	m.AddUser(User{ID: 1, Name: "ann"})
	m.AddUser(User{ID: 2, Name: "bea"})
	m.AddUser(User{ID: 3, Name: "cal"})

	users, err := m.ListUsersByIDs(context.Background(), []int64{3, 1, 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 3 || users[0].ID != 3 || users[1].ID != 1 || users[2].ID != 2 {
		t.Fatalf("order not preserved: %+v", users)
	}
}

func TestMemory_AdjustBlogLikedRefusesNegative(t *testing.T) {
	m := NewMemory()
	m.AddBlog(Blog{ID: 1, Liked: 0})
	ctx := context.Background()

	if ok, _ := m.AdjustBlogLiked(ctx, 1, -1); ok {
		t.Fatalf("decrement below zero must fail the predicate")
	}
	if ok, _ := m.AdjustBlogLiked(ctx, 1, 1); !ok {
		t.Fatalf("increment should succeed")
	}
	b, _, _ := m.GetBlog(ctx, 1)
	if b.Liked != 1 {
		t.Fatalf("liked should be 1, got %d", b.Liked)
	}
}
