// Copyright (c) 2026 John Earle
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

// Package dedup provides trigger deduplication using a Redis SET with TTL.
// This suppresses duplicate workflow triggers for the same email (overlapping
// enqueues, manual re-runs) before they reach the engine. It is advisory —
// the execution ledger's unique constraint is the authoritative guard.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long we remember a seen trigger. Re-runs after a
	// rule change arrive well past this window.
	DefaultTTL = 24 * time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "workflow:seen:"
)

// Filter tracks which event IDs have already been processed.
type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFilter creates a dedup filter backed by Redis.
func NewFilter(rdb *redis.Client) *Filter {
	return &Filter{
		rdb: rdb,
		ttl: DefaultTTL,
	}
}

// IsNew returns true if the event ID has NOT been seen before.
// If true, the event is marked as seen atomically (SETNX).
func (f *Filter) IsNew(ctx context.Context, eventID string) (bool, error) {
	key := fmt.Sprintf("%s%s", keyPrefix, eventID)

	// SET NX = set only if key does not exist. Returns true if the key was set.
	set, err := f.rdb.SetNX(ctx, key, 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}

	return set, nil
}

// Forget clears the seen record for an event ID so a deliberate re-run is
// processed again rather than discarded as a duplicate. Used when failed
// emails are re-enqueued inside the TTL window.
func (f *Filter) Forget(ctx context.Context, eventID string) error {
	key := fmt.Sprintf("%s%s", keyPrefix, eventID)
	if err := f.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("dedup DEL: %w", err)
	}
	return nil
}
