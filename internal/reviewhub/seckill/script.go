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

package seckill

import (
	"fmt"
	"strconv"

	"reviewhub/internal/reviewhub/kv"
)

// Admission result codes shared between the script and the coordinator.
const (
	codeAdmitted          = 0
	codeInsufficientStock = 1
	codeDuplicateOrder    = 2
)

// admissionScript is the whole hot-path decision: stock check, duplicate
// check, stock decrement, and duplicate-set insert execute as one indivisible
// unit at the store, so admissions for a voucher are totally ordered and no
// interleaving can oversell or double-admit.
//
// KEYS[1] = stock counter, KEYS[2] = ordered-users set.
// ARGV[1] = user id, ARGV[2] = reserved order id.
const admissionScript = `
local stock = tonumber(redis.call('get', KEYS[1]))
if (stock == nil or stock <= 0) then
  return 1
end
if (redis.call('sismember', KEYS[2], ARGV[1]) == 1) then
  return 2
end
redis.call('incrby', KEYS[1], -1)
redis.call('sadd', KEYS[2], ARGV[1])
return 0
`

// InstallMemoryScripts registers a behavior-equivalent emulation of the
// admission script on an in-process store, for demo runs and tests. The
// emulation executes under the store lock, preserving the script's
// atomicity guarantee.
func InstallMemoryScripts(m *kv.Memory) {
	m.RegisterScript(admissionScript, func(tx kv.Tx, scriptKeys []string, args []interface{}) (interface{}, error) {
		if len(scriptKeys) != 2 || len(args) < 1 {
			return nil, fmt.Errorf("seckill: admission script wants 2 keys and a user id")
		}
		stockKey, ordersKey := scriptKeys[0], scriptKeys[1]
		user := fmt.Sprint(args[0])

		raw, ok := tx.Get(stockKey)
		if !ok {
			return int64(codeInsufficientStock), nil
		}
		stock, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("seckill: stock at %s is not an integer", stockKey)
		}
		if stock <= 0 {
			return int64(codeInsufficientStock), nil
		}
		if tx.SIsMember(ordersKey, user) {
			return int64(codeDuplicateOrder), nil
		}
		if _, err := tx.IncrBy(stockKey, -1); err != nil {
			return nil, err
		}
		tx.SAdd(ordersKey, user)
		return int64(codeAdmitted), nil
	})
}
