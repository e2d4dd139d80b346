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

package kv

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ScriptFunc is an in-process emulation of a server-side script. It runs
// under the Memory store's lock, so everything it does through Tx is atomic
// with respect to all other operations, matching the Redis EVAL guarantee.
type ScriptFunc func(tx Tx, keys []string, args []interface{}) (interface{}, error)

// Memory is an in-process Store for demos and tests. It is not a Redis
// re-implementation; it supports exactly the surface the components use,
// with lazy TTL expiry driven by an injectable clock.
//
// Lua scripts obviously cannot run here. Packages that own a script register
// a behavior-equivalent ScriptFunc keyed by the script source (see
// RegisterScript), the same way the demo adapters stand in for real
// infrastructure elsewhere in this repository.
type Memory struct {
	// Clock supplies the current time. Tests override it to control TTL
	// expiry deterministically. Set before first use; not synchronized.
	Clock func() time.Time

	mu      sync.Mutex
	strings map[string]memString
	sets    map[string]map[string]struct{}
	zsets   map[string]map[string]int64
	scripts map[string]ScriptFunc
}

type memString struct {
	value    string
	expireAt time.Time // zero means no expiry
}

// NewMemory returns an empty Memory store using the wall clock.
func NewMemory() *Memory {
	return &Memory{
		Clock:   time.Now,
		strings: make(map[string]memString),
		sets:    make(map[string]map[string]struct{}),
		zsets:   make(map[string]map[string]int64),
		scripts: make(map[string]ScriptFunc),
	}
}

// RegisterScript installs an emulation for the given script source.
// Eval fails for scripts without a registered emulation.
func (m *Memory) RegisterScript(script string, fn ScriptFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[script] = fn
}

// live returns the entry for key if it exists and has not expired.
// Expired entries are removed on sight. Caller must hold m.mu.
func (m *Memory) live(key string) (memString, bool) {
	e, ok := m.strings[key]
	if !ok {
		return memString{}, false
	}
	if !e.expireAt.IsZero() && !m.Clock().Before(e.expireAt) {
		delete(m.strings, key)
		return memString{}, false
	}
	return e, true
}

func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok {
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(key, value, ttl)
	return nil
}

func (m *Memory) setLocked(key, value string, ttl time.Duration) {
	e := memString{value: value}
	if ttl > 0 {
		e.expireAt = m.Clock().Add(ttl)
	}
	m.strings[key] = e
}

func (m *Memory) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live(key); ok {
		return false, nil
	}
	m.setLocked(key, value, ttl)
	return true, nil
}

func (m *Memory) Del(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.strings, key)
	return nil
}

func (m *Memory) CompareAndDel(ctx context.Context, key, expected string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok || e.value != expected {
		return false, nil
	}
	delete(m.strings, key)
	return true, nil
}

func (m *Memory) Incr(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return Tx{m: m}.IncrBy(key, 1)
}

func (m *Memory) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	fn, ok := m.scripts[script]
	if !ok {
		return nil, fmt.Errorf("kv: no emulation registered for script (len=%d)", len(script))
	}
	return fn(Tx{m: m}, keys, args)
}

func (m *Memory) ZAdd(ctx context.Context, key, member string, score int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	zs, ok := m.zsets[key]
	if !ok {
		zs = make(map[string]int64)
		m.zsets[key] = zs
	}
	zs[member] = score
	return nil
}

func (m *Memory) ZRem(ctx context.Context, key, member string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if zs, ok := m.zsets[key]; ok {
		delete(zs, member)
	}
	return nil
}

func (m *Memory) ZScore(ctx context.Context, key, member string) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	zs, ok := m.zsets[key]
	if !ok {
		return 0, false, nil
	}
	score, ok := zs[member]
	return score, ok, nil
}

// sortedMembers returns the members of a zset ordered by ascending score,
// ties broken lexicographically by member, matching Redis ordering.
// Caller must hold m.mu.
func (m *Memory) sortedMembers(key string) []Z {
	zs := m.zsets[key]
	out := make([]Z, 0, len(zs))
	for member, score := range zs {
		out = append(out, Z{Member: member, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Member < out[j].Member
	})
	return out
}

func (m *Memory) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sortedMembers(key)
	n := int64(len(all))
	if start < 0 {
		start = n + start
	}
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return nil, nil
	}
	members := make([]string, 0, stop-start+1)
	for _, z := range all[start : stop+1] {
		members = append(members, z.Member)
	}
	return members, nil
}

func (m *Memory) ZRevRangeByScore(ctx context.Context, key string, max int64, offset, count int64) ([]Z, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	asc := m.sortedMembers(key)
	var out []Z
	skipped := int64(0)
	for i := len(asc) - 1; i >= 0; i-- {
		z := asc[i]
		if z.Score > max {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, z)
		if count > 0 && int64(len(out)) >= count {
			break
		}
	}
	return out, nil
}

// Tx exposes the store internals to script emulations while the store lock is
// held. Methods must only be called from inside a ScriptFunc.
type Tx struct {
	m *Memory
}

// Get returns the live string value for key.
func (t Tx) Get(key string) (string, bool) {
	e, ok := t.m.live(key)
	if !ok {
		return "", false
	}
	return e.value, true
}

// Set stores a string value without expiry.
func (t Tx) Set(key, value string) {
	t.m.setLocked(key, value, 0)
}

// IncrBy adjusts an integer-valued key, creating it at zero if absent.
func (t Tx) IncrBy(key string, delta int64) (int64, error) {
	var cur int64
	if e, ok := t.m.live(key); ok {
		if _, err := fmt.Sscan(e.value, &cur); err != nil {
			return 0, fmt.Errorf("kv: value at %s is not an integer", key)
		}
	}
	cur += delta
	prev := t.m.strings[key]
	t.m.strings[key] = memString{value: fmt.Sprint(cur), expireAt: prev.expireAt}
	return cur, nil
}

// SAdd inserts member into the set at key, reporting whether it was new.
func (t Tx) SAdd(key, member string) bool {
	s, ok := t.m.sets[key]
	if !ok {
		s = make(map[string]struct{})
		t.m.sets[key] = s
	}
	if _, exists := s[member]; exists {
		return false
	}
	s[member] = struct{}{}
	return true
}

// SIsMember reports set membership.
func (t Tx) SIsMember(key, member string) bool {
	s, ok := t.m.sets[key]
	if !ok {
		return false
	}
	_, exists := s[member]
	return exists
}
