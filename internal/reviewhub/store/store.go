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

// Package store is the durable relational source of truth. The interface is
// deliberately narrow: lookups by primary key, conditional mutations, and an
// order-preserving multi-get. All contention control lives in front of it —
// the conditional updates here are defense in depth, not the primary gate.
package store

import (
	"context"
	"time"
)

// Shop is a cached, read-mostly entity.
type Shop struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Voucher is a limited-inventory flash-sale item. Stock is decremented only
// through DecrementStock's conditional update.
type Voucher struct {
	ID        int64     `json:"id"`
	ShopID    int64     `json:"shop_id"`
	Title     string    `json:"title"`
	Stock     int64     `json:"stock"`
	BeginTime time.Time `json:"begin_time"`
	EndTime   time.Time `json:"end_time"`
}

// Order records one admitted purchase. (UserID, VoucherID) is unique for
// one-per-user vouchers; the admission script is the authoritative enforcer
// and the database constraint is the backstop.
type Order struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	VoucherID int64     `json:"voucher_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Blog is a user post. Liked is a denormalized counter kept in step with the
// like set in the key-value store.
type Blog struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Liked     int64     `json:"liked"`
	CreatedAt time.Time `json:"created_at"`
}

// User is the profile shape resolved for like rankings.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// Store is the backing-store surface the concurrency layer consumes.
//
// The boolean returns on Get* distinguish absence from failure; the boolean
// returns on conditional mutations report whether the predicate held.
type Store interface {
	GetShop(ctx context.Context, id int64) (Shop, bool, error)
	UpdateShop(ctx context.Context, s Shop) error

	GetVoucher(ctx context.Context, id int64) (Voucher, bool, error)
	// DecrementStock performs UPDATE ... SET stock = stock - 1
	// WHERE id = $1 AND stock > 0 and reports whether a row changed.
	DecrementStock(ctx context.Context, voucherID int64) (bool, error)

	CreateOrder(ctx context.Context, o Order) error
	CountOrders(ctx context.Context, userID, voucherID int64) (int64, error)

	GetBlog(ctx context.Context, id int64) (Blog, bool, error)
	CreateBlog(ctx context.Context, b Blog) error
	// AdjustBlogLiked applies liked = liked + delta, refusing to take the
	// counter negative. Reports whether a row changed.
	AdjustBlogLiked(ctx context.Context, id int64, delta int64) (bool, error)

	GetUser(ctx context.Context, id int64) (User, bool, error)
	// ListUsersByIDs resolves profiles in exactly the order of ids.
	ListUsersByIDs(ctx context.Context, ids []int64) ([]User, error)

	// FollowerIDs lists the users following userID at call time.
	FollowerIDs(ctx context.Context, userID int64) ([]int64, error)
}
