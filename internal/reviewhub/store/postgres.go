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
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Postgres schema (reference):
//
// CREATE TABLE IF NOT EXISTS shops (
//   id      BIGINT PRIMARY KEY,
//   name    TEXT NOT NULL,
//   address TEXT NOT NULL DEFAULT ''
// );
//
// CREATE TABLE IF NOT EXISTS vouchers (
//   id         BIGINT PRIMARY KEY,
//   shop_id    BIGINT NOT NULL,
//   title      TEXT NOT NULL,
//   stock      BIGINT NOT NULL CHECK (stock >= 0),
//   begin_time TIMESTAMPTZ NOT NULL,
//   end_time   TIMESTAMPTZ NOT NULL
// );
//
// CREATE TABLE IF NOT EXISTS orders (
//   id         BIGINT PRIMARY KEY,
//   user_id    BIGINT NOT NULL,
//   voucher_id BIGINT NOT NULL,
//   created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//   UNIQUE (user_id, voucher_id)
// );
//
// CREATE TABLE IF NOT EXISTS blogs (
//   id         BIGINT PRIMARY KEY,
//   user_id    BIGINT NOT NULL,
//   title      TEXT NOT NULL,
//   content    TEXT NOT NULL DEFAULT '',
//   liked      BIGINT NOT NULL DEFAULT 0 CHECK (liked >= 0),
//   created_at TIMESTAMPTZ NOT NULL DEFAULT now()
// );
//
// CREATE TABLE IF NOT EXISTS users (
//   id   BIGINT PRIMARY KEY,
//   name TEXT NOT NULL,
//   icon TEXT NOT NULL DEFAULT ''
// );
//
// CREATE TABLE IF NOT EXISTS follows (
//   follower_id BIGINT NOT NULL,
//   followee_id BIGINT NOT NULL,
//   PRIMARY KEY (follower_id, followee_id)
// );
// CREATE INDEX IF NOT EXISTS idx_follows_followee ON follows(followee_id);

// Postgres implements Store over database/sql. The driver (github.com/lib/pq)
// is registered by the importing binary; this type only depends on *sql.DB.
type Postgres struct {
	db *sql.DB
	// defaultTimeout bounds calls whose context carries no deadline.
	defaultTimeout time.Duration
}

// NewPostgres wraps an open connection pool. The caller owns db's lifecycle
// and pool sizing (SetMaxOpenConns and friends).
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, defaultTimeout: 10 * time.Second}
}

func (p *Postgres) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); !ok && p.defaultTimeout > 0 {
		return context.WithTimeout(ctx, p.defaultTimeout)
	}
	return ctx, func() {}
}

func (p *Postgres) GetShop(ctx context.Context, id int64) (Shop, bool, error) {
	ctx, cancel := p.withDeadline(ctx)
	defer cancel()
	var s Shop
	err := p.db.QueryRowContext(ctx,
		`SELECT id, name, address FROM shops WHERE id = $1`, id,
	).Scan(&s.ID, &s.Name, &s.Address)
	if err == sql.ErrNoRows {
		return Shop{}, false, nil
	}
	if err != nil {
		return Shop{}, false, fmt.Errorf("select shop %d: %w", id, err)
	}
	return s, true, nil
}

func (p *Postgres) UpdateShop(ctx context.Context, s Shop) error {
	ctx, cancel := p.withDeadline(ctx)
	defer cancel()
	res, err := p.db.ExecContext(ctx,
		`UPDATE shops SET name = $2, address = $3 WHERE id = $1`,
		s.ID, s.Name, s.Address)
	if err != nil {
		return fmt.Errorf("update shop %d: %w", s.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update shop %d: no such shop", s.ID)
	}
	return nil
}

func (p *Postgres) GetVoucher(ctx context.Context, id int64) (Voucher, bool, error) {
	ctx, cancel := p.withDeadline(ctx)
	defer cancel()
	var v Voucher
	err := p.db.QueryRowContext(ctx,
		`SELECT id, shop_id, title, stock, begin_time, end_time FROM vouchers WHERE id = $1`, id,
	).Scan(&v.ID, &v.ShopID, &v.Title, &v.Stock, &v.BeginTime, &v.EndTime)
	if err == sql.ErrNoRows {
		return Voucher{}, false, nil
	}
	if err != nil {
		return Voucher{}, false, fmt.Errorf("select voucher %d: %w", id, err)
	}
	return v, true, nil
}

func (p *Postgres) DecrementStock(ctx context.Context, voucherID int64) (bool, error) {
	ctx, cancel := p.withDeadline(ctx)
	defer cancel()
	// Optimistic guard: the predicate carries the invariant, no row lock held
	// across a read-modify-write.
	res, err := p.db.ExecContext(ctx,
		`UPDATE vouchers SET stock = stock - 1 WHERE id = $1 AND stock > 0`, voucherID)
	if err != nil {
		return false, fmt.Errorf("decrement stock %d: %w", voucherID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decrement stock %d: %w", voucherID, err)
	}
	return n > 0, nil
}

func (p *Postgres) CreateOrder(ctx context.Context, o Order) error {
	ctx, cancel := p.withDeadline(ctx)
	defer cancel()
	if _, err := p.db.ExecContext(ctx,
		`INSERT INTO orders(id, user_id, voucher_id, created_at) VALUES ($1, $2, $3, $4)`,
		o.ID, o.UserID, o.VoucherID, o.CreatedAt); err != nil {
		return fmt.Errorf("insert order %d: %w", o.ID, err)
	}
	return nil
}

func (p *Postgres) CountOrders(ctx context.Context, userID, voucherID int64) (int64, error) {
	ctx, cancel := p.withDeadline(ctx)
	defer cancel()
	var n int64
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE user_id = $1 AND voucher_id = $2`,
		userID, voucherID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count orders user=%d voucher=%d: %w", userID, voucherID, err)
	}
	return n, nil
}

func (p *Postgres) GetBlog(ctx context.Context, id int64) (Blog, bool, error) {
	ctx, cancel := p.withDeadline(ctx)
	defer cancel()
	var b Blog
	err := p.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, content, liked, created_at FROM blogs WHERE id = $1`, id,
	).Scan(&b.ID, &b.UserID, &b.Title, &b.Content, &b.Liked, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return Blog{}, false, nil
	}
	if err != nil {
		return Blog{}, false, fmt.Errorf("select blog %d: %w", id, err)
	}
	return b, true, nil
}

func (p *Postgres) CreateBlog(ctx context.Context, b Blog) error {
	ctx, cancel := p.withDeadline(ctx)
	defer cancel()
	if _, err := p.db.ExecContext(ctx,
		`INSERT INTO blogs(id, user_id, title, content, liked, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		b.ID, b.UserID, b.Title, b.Content, b.Liked, b.CreatedAt); err != nil {
		return fmt.Errorf("insert blog %d: %w", b.ID, err)
	}
	return nil
}

func (p *Postgres) AdjustBlogLiked(ctx context.Context, id int64, delta int64) (bool, error) {
	ctx, cancel := p.withDeadline(ctx)
	defer cancel()
	res, err := p.db.ExecContext(ctx,
		`UPDATE blogs SET liked = liked + $2 WHERE id = $1 AND liked + $2 >= 0`, id, delta)
	if err != nil {
		return false, fmt.Errorf("adjust blog liked %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("adjust blog liked %d: %w", id, err)
	}
	return n > 0, nil
}

func (p *Postgres) GetUser(ctx context.Context, id int64) (User, bool, error) {
	ctx, cancel := p.withDeadline(ctx)
	defer cancel()
	var u User
	err := p.db.QueryRowContext(ctx,
		`SELECT id, name, icon FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Icon)
	if err == sql.ErrNoRows {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, fmt.Errorf("select user %d: %w", id, err)
	}
	return u, true, nil
}

func (p *Postgres) ListUsersByIDs(ctx context.Context, ids []int64) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, cancel := p.withDeadline(ctx)
	defer cancel()
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, name, icon FROM users WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()
	byID := make(map[int64]User, len(ids))
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Icon); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		byID[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	return reorderUsers(ids, byID), nil
}

// reorderUsers restores the caller's id order, which ANY($1) does not
// guarantee. Ids with no matching row are dropped.
func reorderUsers(ids []int64, byID map[int64]User) []User {
	out := make([]User, 0, len(ids))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			out = append(out, u)
		}
	}
	return out
}

func (p *Postgres) FollowerIDs(ctx context.Context, userID int64) ([]int64, error) {
	ctx, cancel := p.withDeadline(ctx)
	defer cancel()
	rows, err := p.db.QueryContext(ctx,
		`SELECT follower_id FROM follows WHERE followee_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("select followers of %d: %w", userID, err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan follower: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select followers of %d: %w", userID, err)
	}
	return out, nil
}
