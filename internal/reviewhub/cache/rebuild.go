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
	"fmt"
	"sync"
)

// RebuildPool runs logical-expiration rebuilds on a fixed number of worker
// goroutines with a bounded queue. It is constructed once at process start
// and passed to the Client; rebuild work never runs on a reader's goroutine.
type RebuildPool struct {
	workers int
	mu      sync.Mutex
	tasks   chan func()
	wg      sync.WaitGroup
	started bool
	stopped bool
}

// NewRebuildPool sizes the pool. workers and queue must be positive.
func NewRebuildPool(workers, queue int) *RebuildPool {
	if workers <= 0 {
		workers = 4
	}
	if queue <= 0 {
		queue = 64
	}
	return &RebuildPool{workers: workers, tasks: make(chan func(), queue)}
}

// Start launches the worker goroutines. Calling Start twice is a no-op.
func (p *RebuildPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	fmt.Printf("Starting %d cache rebuild workers...\n", p.workers)
	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}
}

// Submit enqueues a rebuild without blocking. It reports false when the
// queue is full or the pool is stopped; the caller must then undo any state
// it reserved for the task (e.g. release the rebuild lock).
func (p *RebuildPool) Submit(task func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || !p.started {
		return false
	}
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// Stop drains queued rebuilds and waits for the workers to exit.
func (p *RebuildPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	if !p.started {
		p.mu.Unlock()
		return
	}
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
