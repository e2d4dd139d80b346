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
	"fmt"
	"sync"
)

// Memory is an in-process Store for demos and tests. Seed it through the
// Add* helpers before use.
type Memory struct {
	mu       sync.Mutex
	shops    map[int64]Shop
	vouchers map[int64]Voucher
	orders   []Order
	blogs    map[int64]Blog
	users    map[int64]User
	// follows maps a user to the set of users following them.
	follows map[int64][]int64

	// LoadDelay, when set, is invoked before every read so tests can widen
	// race windows or count backing-store loads.
	LoadDelay func()
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		shops:    make(map[int64]Shop),
		vouchers: make(map[int64]Voucher),
		blogs:    make(map[int64]Blog),
		users:    make(map[int64]User),
		follows:  make(map[int64][]int64),
	}
}

// AddShop seeds a shop.
func (m *Memory) AddShop(s Shop) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shops[s.ID] = s
}

// AddVoucher seeds a voucher.
func (m *Memory) AddVoucher(v Voucher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vouchers[v.ID] = v
}

// AddBlog seeds a blog post.
func (m *Memory) AddBlog(b Blog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blogs[b.ID] = b
}

// AddUser seeds a user profile.
func (m *Memory) AddUser(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// AddFollower records that follower follows followee.
func (m *Memory) AddFollower(followee, follower int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.follows[followee] = append(m.follows[followee], follower)
}

// Orders returns a snapshot of all persisted orders.
func (m *Memory) Orders() []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Order, len(m.orders))
	copy(out, m.orders)
	return out
}

func (m *Memory) delay() {
	if m.LoadDelay != nil {
		m.LoadDelay()
	}
}

func (m *Memory) GetShop(ctx context.Context, id int64) (Shop, bool, error) {
	if err := ctx.Err(); err != nil {
		return Shop{}, false, err
	}
	m.delay()
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shops[id]
	return s, ok, nil
}

func (m *Memory) UpdateShop(ctx context.Context, s Shop) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.shops[s.ID]; !ok {
		return fmt.Errorf("store: shop %d not found", s.ID)
	}
	m.shops[s.ID] = s
	return nil
}

func (m *Memory) GetVoucher(ctx context.Context, id int64) (Voucher, bool, error) {
	if err := ctx.Err(); err != nil {
		return Voucher{}, false, err
	}
	m.delay()
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vouchers[id]
	return v, ok, nil
}

func (m *Memory) DecrementStock(ctx context.Context, voucherID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vouchers[voucherID]
	if !ok || v.Stock <= 0 {
		return false, nil
	}
	v.Stock--
	m.vouchers[voucherID] = v
	return true, nil
}

func (m *Memory) CreateOrder(ctx context.Context, o Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.orders {
		if existing.UserID == o.UserID && existing.VoucherID == o.VoucherID {
			return fmt.Errorf("store: duplicate order for user %d voucher %d", o.UserID, o.VoucherID)
		}
	}
	m.orders = append(m.orders, o)
	return nil
}

func (m *Memory) CountOrders(ctx context.Context, userID, voucherID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, o := range m.orders {
		if o.UserID == userID && o.VoucherID == voucherID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) GetBlog(ctx context.Context, id int64) (Blog, bool, error) {
	if err := ctx.Err(); err != nil {
		return Blog{}, false, err
	}
	m.delay()
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blogs[id]
	return b, ok, nil
}

func (m *Memory) CreateBlog(ctx context.Context, b Blog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blogs[b.ID]; ok {
		return fmt.Errorf("store: blog %d already exists", b.ID)
	}
	m.blogs[b.ID] = b
	return nil
}

func (m *Memory) AdjustBlogLiked(ctx context.Context, id int64, delta int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blogs[id]
	if !ok || b.Liked+delta < 0 {
		return false, nil
	}
	b.Liked += delta
	m.blogs[id] = b
	return true, nil
}

func (m *Memory) GetUser(ctx context.Context, id int64) (User, bool, error) {
	if err := ctx.Err(); err != nil {
		return User{}, false, err
	}
	m.delay()
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *Memory) ListUsersByIDs(ctx context.Context, ids []int64) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]User, 0, len(ids))
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *Memory) FollowerIDs(ctx context.Context, userID int64) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, len(m.follows[userID]))
	copy(out, m.follows[userID])
	return out, nil
}
