// Copyright 2024 LatentFS Authors
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
	"sync/atomic"
	"time"

	"metabridge/internal/codec"
)

// InfoCache caches the metadata record of one file node together with its
// change number.
//
// Not internally locked: the owning node's general-metadata lock must be
// held shared for TryRead and exclusive for the mutating methods. Counters
// are atomic because many shared holders may read at once.
type InfoCache struct {
	rec     codec.Record
	valid   bool
	expires time.Time
	change  uint64
	ttl     time.Duration

	clock func() time.Time

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewInfoCache creates an empty cache.
// ttl: how long a record stays valid (use 0 for no expiration)
func NewInfoCache(ttl time.Duration) *InfoCache {
	return &InfoCache{ttl: ttl, clock: time.Now}
}

// ChangeNumber returns the current version token.
func (c *InfoCache) ChangeNumber() uint64 {
	return c.change
}

// TryRead returns the cached record and the token it was stored under.
// Misses when nothing is cached, the record expired, or caching is disabled.
func (c *InfoCache) TryRead() (codec.Record, uint64, bool) {
	if Disabled || !c.valid || c.expired() {
		c.misses.Add(1)
		return codec.Record{}, c.change, false
	}
	c.hits.Add(1)
	return c.rec, c.change, true
}

// Current returns the cached record regardless of expiry. Completions use
// it when their own answer was superseded by a newer local mutation.
func (c *InfoCache) Current() (codec.Record, bool) {
	return c.rec, c.valid
}

// TryCompareAndSet stores rec only if no mutation happened since expected
// was captured. On success the change number is bumped.
func (c *InfoCache) TryCompareAndSet(rec codec.Record, expected uint64) bool {
	if c.change != expected {
		return false
	}
	c.store(rec)
	return true
}

// Set stores rec unconditionally and bumps the change number.
func (c *InfoCache) Set(rec codec.Record) {
	c.store(rec)
}

func (c *InfoCache) store(rec codec.Record) {
	c.rec = rec
	c.valid = true
	c.change++
	if c.ttl > 0 {
		c.expires = c.clock().Add(c.ttl)
	}
}

func (c *InfoCache) expired() bool {
	return c.ttl > 0 && !c.clock().Before(c.expires)
}

// Invalidate drops the record. The change number is kept so responses
// already in flight still compare against the right token.
func (c *InfoCache) Invalidate() {
	c.valid = false
	c.rec = codec.Record{}
}

// InfoCacheStats reports cache activity.
type InfoCacheStats struct {
	Hits         uint64
	Misses       uint64
	ChangeNumber uint64
	TTL          time.Duration
}

// Stats returns current cache statistics.
func (c *InfoCache) Stats() InfoCacheStats {
	return InfoCacheStats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		ChangeNumber: c.change,
		TTL:          c.ttl,
	}
}
