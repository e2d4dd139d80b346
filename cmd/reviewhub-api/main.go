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

// Package main provides the entry point for the reviewhub API service.
//
// This file is responsible for orchestrating the entire service:
// 1. Parsing configuration and selecting the Redis/Postgres or in-memory backends.
// 2. Constructing the cache client, rebuild pool, seckill coordinator, feed
//    timeline and like registry.
// 3. Starting the background consumers and the API server.
// 4. Managing graceful shutdown so queued orders are drained, not dropped.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"reviewhub/internal/reviewhub/api"
	"reviewhub/internal/reviewhub/cache"
	"reviewhub/internal/reviewhub/feed"
	"reviewhub/internal/reviewhub/idgen"
	"reviewhub/internal/reviewhub/keys"
	"reviewhub/internal/reviewhub/kv"
	"reviewhub/internal/reviewhub/like"
	"reviewhub/internal/reviewhub/lock"
	"reviewhub/internal/reviewhub/seckill"
	"reviewhub/internal/reviewhub/store"
	"reviewhub/internal/reviewhub/telemetry"
)

func main() {
	// 1. Parse configuration flags (these double as production-ready knobs).
	// - redis_addr / pg_dsn: empty selects the in-memory backend, handy for
	//   local runs and demos; both set selects the production pair.
	// - cache TTLs mirror the defaults in the keys package.
	// - rebuild_workers / rebuild_queue size the async logical-expire pool.
	// - seckill_queue bounds how many admitted orders may await persistence.
	redisAddr := flag.String("redis_addr", "", "Redis address (e.g., localhost:6379). Empty runs an in-memory key-value store.")
	pgDSN := flag.String("pg_dsn", "", "Postgres DSN. Empty runs an in-memory backing store.")
	httpAddr := flag.String("http_addr", ":8080", "HTTP listen address (e.g., :8080)")
	metricsAddr := flag.String("metrics_addr", "", "If non-empty, expose Prometheus /metrics on this address (e.g., :9090)")
	cacheTTL := flag.Duration("cache_ttl", keys.CacheTTL, "Base physical TTL for cached entities")
	cacheJitter := flag.Duration("cache_ttl_jitter", keys.CacheTTLJitter, "Random TTL spread added per entry to avoid synchronized expiry")
	negativeTTL := flag.Duration("negative_ttl", keys.NegativeTTL, "TTL for confirmed-absent markers")
	lockTTL := flag.Duration("lock_ttl", keys.LockTTL, "TTL on per-key rebuild locks")
	rebuildWorkers := flag.Int("rebuild_workers", 4, "Workers in the async cache-rebuild pool")
	rebuildQueue := flag.Int("rebuild_queue", 64, "Queued rebuilds before submissions are rejected")
	seckillQueue := flag.Int("seckill_queue", 1024, "Admitted orders that may await database persistence")
	feedPageSize := flag.Int64("feed_page_size", feed.DefaultPageSize, "Entries per feed page")
	flag.Parse()

	// Capture configuration for the final metrics snapshot.
	telemetry.SetThreshold("redis_addr", *redisAddr)
	telemetry.SetThreshold("http_addr", *httpAddr)
	telemetry.SetThreshold("metrics_addr", *metricsAddr)
	telemetry.SetThresholdDuration("cache_ttl", *cacheTTL)
	telemetry.SetThresholdDuration("cache_ttl_jitter", *cacheJitter)
	telemetry.SetThresholdDuration("negative_ttl", *negativeTTL)
	telemetry.SetThresholdDuration("lock_ttl", *lockTTL)
	telemetry.SetThresholdInt64("rebuild_workers", int64(*rebuildWorkers))
	telemetry.SetThresholdInt64("rebuild_queue", int64(*rebuildQueue))
	telemetry.SetThresholdInt64("seckill_queue", int64(*seckillQueue))
	telemetry.SetThresholdInt64("feed_page_size", *feedPageSize)

	if *metricsAddr != "" {
		telemetry.ServeMetrics(*metricsAddr)
	}

	// 2. Select the key-value store. The in-memory store needs the admission
	// script emulation installed before any purchase runs.
	var kvs kv.Store
	if *redisAddr != "" {
		kvs = kv.NewRedis(*redisAddr)
		fmt.Printf("Using Redis at %s\n", *redisAddr)
	} else {
		mem := kv.NewMemory()
		seckill.InstallMemoryScripts(mem)
		kvs = mem
		fmt.Println("Using in-memory key-value store")
	}

	// 3. Select the backing store.
	var backing store.Store
	if *pgDSN != "" {
		db, err := sql.Open("postgres", *pgDSN)
		if err != nil {
			log.Fatalf("Could not open Postgres: %v", err)
		}
		if err := db.PingContext(context.Background()); err != nil {
			log.Fatalf("Could not reach Postgres: %v", err)
		}
		backing = store.NewPostgres(db)
		fmt.Println("Using Postgres backing store")
	} else {
		backing = store.NewMemory()
		fmt.Println("Using in-memory backing store")
	}

	// 4. Construct the components.
	pool := cache.NewRebuildPool(*rebuildWorkers, *rebuildQueue)
	pool.Start()

	cacheClient := cache.New(kvs, lock.NewManager(kvs), pool, cache.Options{
		TTL:         *cacheTTL,
		TTLJitter:   *cacheJitter,
		NegativeTTL: *negativeTTL,
		LockTTL:     *lockTTL,
	})
	ids := idgen.New(kvs)
	deals := seckill.New(kvs, backing, ids, *seckillQueue)
	deals.Start()
	timeline := feed.New(kvs, backing, *feedPageSize)
	likes := like.New(kvs, backing)

	apiServer := api.NewServer(cacheClient, backing, deals, timeline, likes, ids)

	// 5. Configure the HTTP server here in main so shutdown stays graceful.
	mux := http.NewServeMux()
	apiServer.RegisterRoutes(mux)
	httpServer := &http.Server{
		Addr:         *httpAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		fmt.Printf("reviewhub API server listening on %s\n", *httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", *httpAddr, err)
		}
	}()

	// 6. Wait for an OS signal.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	fmt.Println("\nShutting down server...")

	// 7. Stop accepting requests first, then drain the order queue and the
	// rebuild pool so nothing admitted is lost.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown failed: %v", err)
	}
	deals.Stop()
	pool.Stop()

	fmt.Println("Final configuration snapshot:")
	for name, value := range telemetry.ThresholdSnapshot() {
		fmt.Printf("  %s = %s\n", name, value)
	}
	fmt.Println("Server gracefully stopped.")
}
