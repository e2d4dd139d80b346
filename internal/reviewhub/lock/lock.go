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

// Package lock implements a distributed mutual-exclusion primitive over the
// key-value store. Acquisition is a single conditional set and never blocks;
// contention is a normal negative result, not an error. Release is an atomic
// check-and-delete keyed on a per-acquisition owner token, so a holder whose
// TTL lapsed can never delete a lock someone else has since acquired.
//
// Known gap: a TTL that expires while the critical section is still running
// ends mutual exclusion early. There is no fencing token beyond the owner
// check; callers bound the risk by choosing TTL well above the expected
// critical-section duration.
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"

	"reviewhub/internal/reviewhub/keys"
	"reviewhub/internal/reviewhub/kv"
)

// Manager acquires and releases named locks in the store's lock namespace.
type Manager struct {
	store kv.Store
}

// NewManager returns a Manager over the given store.
func NewManager(store kv.Store) *Manager {
	return &Manager{store: store}
}

// Token is the handle for one successful acquisition. It must be released by
// the goroutine that acquired it (or abandoned to the TTL safety net).
type Token struct {
	m     *Manager
	key   string
	owner string
}

// TryAcquire attempts to take the named lock for at most ttl. It returns
// (token, true) on success and (nil, false) when the lock is held elsewhere.
// An error is returned only when the store itself fails.
func (m *Manager) TryAcquire(ctx context.Context, name string, ttl time.Duration) (*Token, bool, error) {
	key := keys.LockPrefix + name
	owner := uuid.NewString()
	ok, err := m.store.SetNX(ctx, key, owner, ttl)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &Token{m: m, key: key, owner: owner}, true, nil
}

// Release frees the lock if this token still owns it. Returning false means
// the TTL already expired and another holder (or nobody) owns the key now;
// that is reported, not treated as an error.
func (t *Token) Release(ctx context.Context) (bool, error) {
	return t.m.store.CompareAndDel(ctx, t.key, t.owner)
}
