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

package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reviewhub/internal/reviewhub/kv"
	"reviewhub/internal/reviewhub/lock"
)

type shop struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func newTestClient(opts Options) (*Client, *kv.Memory, *RebuildPool) {
	store := kv.NewMemory()
	pool := NewRebuildPool(2, 8)
	pool.Start()
	c := New(store, lock.NewManager(store), pool, opts)
	return c, store, pool
}

func TestPassThrough_CachesEntityAndServesHits(t *testing.T) {
	c, _, pool := newTestClient(Options{})
	defer pool.Stop()
	ctx := context.Background()

	var loads atomic.Int64
	load := func(ctx context.Context) (shop, bool, error) {
		loads.Add(1)
		return shop{ID: 1, Name: "noodle bar"}, true, nil
	}

	for i := 0; i < 5; i++ {
		v, found, err := PassThrough(ctx, c, "cache:shop:1", load)
		if err != nil || !found {
			t.Fatalf("read %d: found=%v err=%v", i, found, err)
		}
		if v.Name != "noodle bar" {
			t.Fatalf("read %d: wrong value %+v", i, v)
		}
	}
	if n := loads.Load(); n != 1 {
		t.Fatalf("backing store should be loaded once, got %d", n)
	}
}

func TestPassThrough_NegativeCacheAbsorbsRepeatedMisses(t *testing.T) {
	c, _, pool := newTestClient(Options{})
	defer pool.Stop()
	ctx := context.Background()

	var loads atomic.Int64
	load := func(ctx context.Context) (shop, bool, error) {
		loads.Add(1)
		return shop{}, false, nil
	}

	for i := 0; i < 10; i++ {
		_, found, err := PassThrough(ctx, c, "cache:shop:404", load)
		if err != nil || found {
			t.Fatalf("read %d: found=%v err=%v", i, found, err)
		}
	}
	if n := loads.Load(); n != 1 {
		t.Fatalf("repeated lookups of a nonexistent id must hit the marker, loads=%d", n)
	}
}

func TestPassThrough_NegativeCacheExpires(t *testing.T) {
	store := kv.NewMemory()
	now := time.Unix(1_700_000_000, 0)
	store.Clock = func() time.Time { return now }
	pool := NewRebuildPool(1, 1)
	pool.Start()
	defer pool.Stop()
	c := New(store, lock.NewManager(store), pool, Options{NegativeTTL: time.Minute})
	ctx := context.Background()

	var loads atomic.Int64
	load := func(ctx context.Context) (shop, bool, error) {
		loads.Add(1)
		return shop{}, false, nil
	}
	_, _, _ = PassThrough(ctx, c, "cache:shop:404", load)
	_, _, _ = PassThrough(ctx, c, "cache:shop:404", load)
	now = now.Add(2 * time.Minute)
	_, _, _ = PassThrough(ctx, c, "cache:shop:404", load)
	if n := loads.Load(); n != 2 {
		t.Fatalf("marker expiry should allow one more load, got %d", n)
	}
}

func TestInvalidate_ForcesReload(t *testing.T) {
	c, _, pool := newTestClient(Options{})
	defer pool.Stop()
	ctx := context.Background()

	name := "before"
	var loads atomic.Int64
	load := func(ctx context.Context) (shop, bool, error) {
		loads.Add(1)
		return shop{ID: 1, Name: name}, true, nil
	}

	v, _, _ := PassThrough(ctx, c, "cache:shop:1", load)
	if v.Name != "before" {
		t.Fatalf("unexpected initial value: %+v", v)
	}

	name = "after"
	if err := c.Invalidate(ctx, "cache:shop:1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	v, _, _ = PassThrough(ctx, c, "cache:shop:1", load)
	if v.Name != "after" {
		t.Fatalf("stale value survived invalidation: %+v", v)
	}
	if n := loads.Load(); n != 2 {
		t.Fatalf("expected exactly 2 loads, got %d", n)
	}
}

func TestWithMutex_ColdKeyLoadsOnceAcrossReaders(t *testing.T) {
	c, _, pool := newTestClient(Options{RetryDelay: 5 * time.Millisecond, RetryAttempts: 100})
	defer pool.Stop()
	ctx := context.Background()

	var loads atomic.Int64
	load := func(ctx context.Context) (shop, bool, error) {
		loads.Add(1)
		time.Sleep(30 * time.Millisecond) // widen the race window
		return shop{ID: 7, Name: "tea house"}, true, nil
	}

	const readers = 16
	var wg sync.WaitGroup
	wg.Add(readers)
	values := make([]shop, readers)
	errs := make([]error, readers)
	for i := 0; i < readers; i++ {
		go func(i int) {
			defer wg.Done()
			v, found, err := WithMutex(ctx, c, "cache:shop:7", "shop:7", load)
			if err == nil && !found {
				err = ErrContention
			}
			values[i], errs[i] = v, err
		}(i)
	}
	wg.Wait()

	for i := range errs {
		if errs[i] != nil {
			t.Fatalf("reader %d failed: %v", i, errs[i])
		}
		if values[i].Name != "tea house" {
			t.Fatalf("reader %d observed wrong value: %+v", i, values[i])
		}
	}
	if n := loads.Load(); n != 1 {
		t.Fatalf("cold key must load exactly once, got %d", n)
	}
}

func TestWithMutex_RetriesExhaustedReturnErrContention(t *testing.T) {
	store := kv.NewMemory()
	locks := lock.NewManager(store)
	c := New(store, locks, nil, Options{RetryAttempts: 3, RetryDelay: time.Millisecond})
	ctx := context.Background()

	// Park a foreign holder on the rebuild lock.
	if _, ok, _ := locks.TryAcquire(ctx, "shop:9", time.Minute); !ok {
		t.Fatalf("setup acquire failed")
	}

	_, _, err := WithMutex(ctx, c, "cache:shop:9", "shop:9", func(ctx context.Context) (shop, bool, error) {
		t.Fatalf("loader must not run while the lock is held elsewhere")
		return shop{}, false, nil
	})
	if err != ErrContention {
		t.Fatalf("expected ErrContention, got %v", err)
	}
}

func TestWithLogicalExpire_MissMeansNotWarmed(t *testing.T) {
	c, _, pool := newTestClient(Options{})
	defer pool.Stop()

	_, found, err := WithLogicalExpire(context.Background(), c, "cache:shop:1", "shop:1", time.Minute,
		func(ctx context.Context) (shop, bool, error) {
			t.Fatalf("loader must not run for an unwarmed key")
			return shop{}, false, nil
		})
	if err != nil || found {
		t.Fatalf("unwarmed key: found=%v err=%v", found, err)
	}
}

func TestWithLogicalExpire_StaleServesImmediatelyAndRebuildsOnce(t *testing.T) {
	c, _, pool := newTestClient(Options{})
	ctx := context.Background()

	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	if err := SetLogical(ctx, c, "cache:shop:1", shop{ID: 1, Name: "v1"}, time.Minute); err != nil {
		t.Fatalf("warm: %v", err)
	}

	// Fresh read: no loader involvement.
	v, found, err := WithLogicalExpire(ctx, c, "cache:shop:1", "shop:1", time.Minute,
		func(ctx context.Context) (shop, bool, error) {
			t.Fatalf("loader must not run while fresh")
			return shop{}, false, nil
		})
	if err != nil || !found || v.Name != "v1" {
		t.Fatalf("fresh read: v=%+v found=%v err=%v", v, found, err)
	}

	// Make it stale and hold the single rebuild in the loader.
	now = now.Add(2 * time.Minute)
	release := make(chan struct{})
	var loads atomic.Int64
	load := func(ctx context.Context) (shop, bool, error) {
		loads.Add(1)
		<-release
		return shop{ID: 1, Name: "v2"}, true, nil
	}

	const readers = 12
	var wg sync.WaitGroup
	wg.Add(readers)
	for i := 0; i < readers; i++ {
		go func() {
			defer wg.Done()
			v, found, err := WithLogicalExpire(ctx, c, "cache:shop:1", "shop:1", time.Minute, load)
			if err != nil || !found || v.Name != "v1" {
				t.Errorf("stale read must return the old value immediately: v=%+v found=%v err=%v", v, found, err)
			}
		}()
	}
	wg.Wait()

	close(release)
	pool.Stop() // drain the rebuild

	if n := loads.Load(); n != 1 {
		t.Fatalf("exactly one rebuild may run per key, got %d", n)
	}
	v, found, err = WithLogicalExpire(ctx, c, "cache:shop:1", "shop:1", time.Minute,
		func(ctx context.Context) (shop, bool, error) {
			t.Fatalf("loader must not run after the rebuild")
			return shop{}, false, nil
		})
	if err != nil || !found || v.Name != "v2" {
		t.Fatalf("rebuilt value not visible: v=%+v found=%v err=%v", v, found, err)
	}
}
