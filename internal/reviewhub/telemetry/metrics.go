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

// Package telemetry holds the process-wide Prometheus metrics and the
// optional standalone /metrics listener. Label cardinality is kept bounded:
// strategies and outcomes only, never entity ids.
package telemetry

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewhub_cache_hits_total",
		Help: "Cache reads served from the key-value store, by strategy",
	}, []string{"strategy"})
	cacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewhub_cache_misses_total",
		Help: "Cache reads that fell through to the backing store, by strategy",
	}, []string{"strategy"})
	cacheNegativeHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewhub_cache_negative_hits_total",
		Help: "Cache reads answered by the confirmed-absent marker, by strategy",
	}, []string{"strategy"})
	cacheRebuildsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reviewhub_cache_rebuilds_total",
		Help: "Asynchronous logical-expiration rebuilds executed",
	})
	lockContentionTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reviewhub_lock_contention_total",
		Help: "Lock acquisitions that failed because another holder was active",
	})
	seckillAdmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewhub_seckill_admissions_total",
		Help: "Seckill admission decisions by outcome (ok, sold_out, duplicate)",
	}, []string{"outcome"})
	ordersPersistedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reviewhub_orders_persisted_total",
		Help: "Admitted orders durably written by the background consumer",
	})
	orderPersistFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reviewhub_order_persist_failures_total",
		Help: "Durable order writes that failed after admission (operational alert)",
	})
	feedFanoutEntries = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reviewhub_feed_fanout_entries",
		Help:    "Follower inboxes written per published post",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024},
	})
)

func init() {
	// Register eagerly; harmless when no /metrics endpoint is exposed.
	prometheus.MustRegister(
		cacheHitsTotal, cacheMissesTotal, cacheNegativeHitsTotal, cacheRebuildsTotal,
		lockContentionTotal, seckillAdmissionsTotal,
		ordersPersistedTotal, orderPersistFailuresTotal, feedFanoutEntries,
	)
}

// CacheHit records a read served from the store under the given strategy.
func CacheHit(strategy string) { cacheHitsTotal.WithLabelValues(strategy).Inc() }

// CacheMiss records a read that had to load from the backing store.
func CacheMiss(strategy string) { cacheMissesTotal.WithLabelValues(strategy).Inc() }

// CacheNegativeHit records a read answered by the empty marker.
func CacheNegativeHit(strategy string) { cacheNegativeHitsTotal.WithLabelValues(strategy).Inc() }

// CacheRebuild records one asynchronous rebuild execution.
func CacheRebuild() { cacheRebuildsTotal.Inc() }

// LockContention records a failed TryAcquire.
func LockContention() { lockContentionTotal.Inc() }

// SeckillAdmission records an admission decision outcome.
func SeckillAdmission(outcome string) { seckillAdmissionsTotal.WithLabelValues(outcome).Inc() }

// OrderPersisted records a successful durable order write.
func OrderPersisted() { ordersPersistedTotal.Inc() }

// OrderPersistFailure records a failed durable order write.
func OrderPersistFailure() { orderPersistFailuresTotal.Inc() }

// FeedFanout records the inbox count one publish wrote to.
func FeedFanout(entries int) { feedFanoutEntries.Observe(float64(entries)) }

var (
	// thresholds captures human-readable configuration knobs at startup for
	// the end-of-process summary.
	thresholdsMu sync.RWMutex
	thresholds   = make(map[string]string)
)

// SetThreshold records a named configuration value for later printing.
func SetThreshold(name, value string) {
	thresholdsMu.Lock()
	thresholds[name] = value
	thresholdsMu.Unlock()
}

// SetThresholdInt64 records an integer knob.
func SetThresholdInt64(name string, v int64) { SetThreshold(name, fmt.Sprintf("%d", v)) }

// SetThresholdDuration records a duration knob.
func SetThresholdDuration(name string, d time.Duration) { SetThreshold(name, d.String()) }

// ThresholdSnapshot returns a copy of the recorded knobs for stable iteration.
func ThresholdSnapshot() map[string]string {
	thresholdsMu.RLock()
	defer thresholdsMu.RUnlock()
	out := make(map[string]string, len(thresholds))
	for k, v := range thresholds {
		out[k] = v
	}
	return out
}

// ServeMetrics exposes /metrics on its own listener when addr is non-empty.
// If the main server already mounts promhttp, leave addr empty.
func ServeMetrics(addr string) {
	if addr == "" {
		return
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics listener on %s stopped: %v\n", addr, err)
		}
	}()
}
