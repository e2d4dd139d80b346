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

// Package idgen issues globally unique, time-ordered 64-bit ids without a
// central sequence table. Layout, high to low: 1 reserved sign bit (0),
// 31 bits of seconds since the epoch, 32 bits of a per-day sequence drawn
// from an atomic counter in the key-value store. Ids of one kind are
// non-decreasing in issuance order while the clock moves forward; there is
// no ordering guarantee across kinds.
package idgen

import (
	"context"
	"time"

	"reviewhub/internal/reviewhub/keys"
	"reviewhub/internal/reviewhub/kv"
)

// epoch is 2022-01-01T00:00:00Z. 31 bits of seconds reach into the 2090s.
const epoch int64 = 1640995200

// sequenceBits is the width of the per-day counter field.
const sequenceBits = 32

// Generator issues ids for named kinds ("order", "blog", ...). The counter
// lives in the shared store, so every process in the fleet draws from the
// same sequence.
type Generator struct {
	store kv.Store

	// now is the clock; tests substitute it.
	now func() time.Time
}

// New returns a Generator over the given store.
func New(store kv.Store) *Generator {
	return &Generator{store: store, now: time.Now}
}

// Next issues the next id for kind. The date-qualified counter key resets
// the sequence daily, which also keeps any single counter far from the
// 32-bit field width.
func (g *Generator) Next(ctx context.Context, kind string) (int64, error) {
	now := g.now()
	seq, err := g.store.Incr(ctx, keys.Seq(kind, now))
	if err != nil {
		return 0, err
	}
	ts := now.Unix() - epoch
	return ts<<sequenceBits | seq, nil
}
