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

package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"reviewhub/internal/reviewhub/kv"
)

func TestManager_MutualExclusion(t *testing.T) {
	m := NewManager(kv.NewMemory())
	ctx := context.Background()

	tok, ok, err := m.TryAcquire(ctx, "shop:1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire should succeed: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := m.TryAcquire(ctx, "shop:1", time.Minute); ok {
		t.Fatalf("second acquire should fail while held")
	}
	// A different name is independent.
	if _, ok, _ := m.TryAcquire(ctx, "shop:2", time.Minute); !ok {
		t.Fatalf("unrelated lock should be acquirable")
	}

	released, err := tok.Release(ctx)
	if err != nil || !released {
		t.Fatalf("release by owner should succeed: released=%v err=%v", released, err)
	}
	if _, ok, _ := m.TryAcquire(ctx, "shop:1", time.Minute); !ok {
		t.Fatalf("lock should be acquirable after release")
	}
}

func TestToken_ReleaseAfterExpiryDoesNotStealLock(t *testing.T) {
	store := kv.NewMemory()
	now := time.Unix(1_700_000_000, 0)
	store.Clock = func() time.Time { return now }
	m := NewManager(store)
	ctx := context.Background()

	stale, ok, _ := m.TryAcquire(ctx, "order:9", time.Second)
	if !ok {
		t.Fatalf("acquire failed")
	}

	// TTL lapses while the first holder is still inside its critical section.
	now = now.Add(2 * time.Second)
	fresh, ok, _ := m.TryAcquire(ctx, "order:9", time.Minute)
	if !ok {
		t.Fatalf("expired lock should be acquirable")
	}

	// The stale holder's release must be a no-op against the new owner.
	if released, _ := stale.Release(ctx); released {
		t.Fatalf("stale token must not release the new holder's lock")
	}
	if _, ok, _ := m.TryAcquire(ctx, "order:9", time.Minute); ok {
		t.Fatalf("fresh lock should still be held")
	}
	if released, _ := fresh.Release(ctx); !released {
		t.Fatalf("fresh owner should release its own lock")
	}
}

func TestManager_ConcurrentAcquire_ExactlyOneWinner(t *testing.T) {
	m := NewManager(kv.NewMemory())
	ctx := context.Background()

	const goroutines = 32
	var wg sync.WaitGroup
	wg.Add(goroutines)
	wins := make(chan *Token, goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			if tok, ok, _ := m.TryAcquire(ctx, "hot", time.Minute); ok {
				wins <- tok
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []*Token
	for tok := range wins {
		winners = append(winners, tok)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %d", len(winners))
	}
}
