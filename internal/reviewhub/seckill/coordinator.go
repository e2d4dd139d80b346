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

// Package seckill converts a flash-sale purchase request into at most one
// persisted order. The authoritative oversell/duplicate decision is a single
// atomic script at the key-value store; the relational write happens later,
// off the request path, and never sees the contention.
//
// Request state machine: RECEIVED -> ADMITTED -> RESERVED -> PERSISTED, or
// REJECTED at any gate.
package seckill

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"reviewhub/internal/reviewhub/idgen"
	"reviewhub/internal/reviewhub/keys"
	"reviewhub/internal/reviewhub/kv"
	"reviewhub/internal/reviewhub/store"
	"reviewhub/internal/reviewhub/telemetry"
)

// Business rejections, surfaced to the caller verbatim and never retried.
var (
	ErrVoucherNotFound   = errors.New("seckill: voucher not found")
	ErrNotStarted        = errors.New("seckill: sale has not started")
	ErrEnded             = errors.New("seckill: sale has ended")
	ErrInsufficientStock = errors.New("seckill: insufficient stock")
	ErrDuplicateOrder    = errors.New("seckill: user already ordered this voucher")
)

// pendingOrder is one admitted purchase awaiting durable persistence.
type pendingOrder struct {
	orderID   int64
	userID    int64
	voucherID int64
	createdAt time.Time
}

// Coordinator owns the admission script handle and the persistence queue.
// Construct one per process and share it across handlers.
type Coordinator struct {
	kvs     kv.Store
	backing store.Store
	ids     *idgen.Generator

	queue    chan pendingOrder
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  uint32

	// now is the clock; tests substitute it to position the sale window.
	now func() time.Time
}

// New sizes the persistence queue and returns a Coordinator. Call Start to
// launch the background consumer.
func New(kvs kv.Store, backing store.Store, ids *idgen.Generator, queueSize int) *Coordinator {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Coordinator{
		kvs:      kvs,
		backing:  backing,
		ids:      ids,
		queue:    make(chan pendingOrder, queueSize),
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
}

// SeedStock publishes a voucher's stock counter to the key-value store.
// Run it when the voucher goes on sale; admission reads only this counter,
// never the relational row.
func (c *Coordinator) SeedStock(ctx context.Context, voucherID, stock int64) error {
	return c.kvs.Set(ctx, keys.SeckillStock(voucherID), strconv.FormatInt(stock, 10), 0)
}

// Purchase runs the full request path: sale-window pre-checks, id
// reservation, atomic admission, and enqueue for async persistence. On
// success the caller gets the order id immediately; the durable write
// completes later.
func (c *Coordinator) Purchase(ctx context.Context, voucherID, userID int64) (int64, error) {
	v, ok, err := c.backing.GetVoucher(ctx, voucherID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrVoucherNotFound
	}
	now := c.now()
	if now.Before(v.BeginTime) {
		return 0, ErrNotStarted
	}
	if now.After(v.EndTime) {
		return 0, ErrEnded
	}

	orderID, err := c.ids.Next(ctx, "order")
	if err != nil {
		return 0, err
	}

	res, err := c.kvs.Eval(ctx, admissionScript,
		[]string{keys.SeckillStock(voucherID), keys.SeckillOrders(voucherID)},
		strconv.FormatInt(userID, 10), strconv.FormatInt(orderID, 10))
	if err != nil {
		return 0, fmt.Errorf("seckill: admission script: %w", err)
	}
	code, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("seckill: admission script returned %T", res)
	}

	switch code {
	case codeInsufficientStock:
		telemetry.SeckillAdmission("sold_out")
		return 0, ErrInsufficientStock
	case codeDuplicateOrder:
		telemetry.SeckillAdmission("duplicate")
		return 0, ErrDuplicateOrder
	case codeAdmitted:
		telemetry.SeckillAdmission("ok")
	default:
		return 0, fmt.Errorf("seckill: admission script returned unknown code %d", code)
	}

	po := pendingOrder{orderID: orderID, userID: userID, voucherID: voucherID, createdAt: now}
	select {
	case c.queue <- po:
	case <-ctx.Done():
		// Admission already happened at the store; dropping the order here
		// would leak the reservation. Hand it over regardless.
		c.queue <- po
	}
	return orderID, nil
}

// Start launches the background persistence consumer.
func (c *Coordinator) Start() {
	fmt.Println("Starting seckill order consumer...")
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.consumeLoop()
	}()
}

// Stop drains every admitted order still queued, then stops the consumer.
func (c *Coordinator) Stop() {
	if !atomic.CompareAndSwapUint32(&c.stopped, 0, 1) {
		return
	}
	fmt.Println("Stopping seckill order consumer...")
	close(c.stopChan)
	c.wg.Wait()
}

func (c *Coordinator) consumeLoop() {
	for {
		select {
		case po := <-c.queue:
			c.persist(po)
		case <-c.stopChan:
			// Final drain so admitted orders survive shutdown.
			for {
				select {
				case po := <-c.queue:
					c.persist(po)
				default:
					return
				}
			}
		}
	}
}

// persist performs the durable write for one admitted order. The admission
// decision is already final; failures here are operational alerts for
// reconciliation, never surfaced to the purchaser.
func (c *Coordinator) persist(po pendingOrder) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Redundant guarded decrement: the script already reserved the unit, so
	// this is expected to succeed and exists to catch cache/store divergence.
	ok, err := c.backing.DecrementStock(ctx, po.voucherID)
	if err != nil {
		c.alert(po, err)
		return
	}
	if !ok {
		c.alert(po, errors.New("stock row exhausted after admission"))
		return
	}

	if err := c.backing.CreateOrder(ctx, store.Order{
		ID:        po.orderID,
		UserID:    po.userID,
		VoucherID: po.voucherID,
		CreatedAt: po.createdAt,
	}); err != nil {
		c.alert(po, err)
		return
	}
	telemetry.OrderPersisted()
}

func (c *Coordinator) alert(po pendingOrder, err error) {
	telemetry.OrderPersistFailure()
	fmt.Printf("ERROR: persisting order %d (user %d, voucher %d): %v\n",
		po.orderID, po.userID, po.voucherID, err)
}
