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

// Package cache provides the per-node metadata cache used by the vfs layer.
//
// Design Principles:
// 1. Optimistic concurrency - every confirmed mutation bumps a change number;
//    a provider answer computed against an older change number is discarded
// 2. Single layer ownership - the cache lives in its node and is guarded by
//    the node's general-metadata lock, never by a lock of its own
//
// Currently provides:
// - InfoCache: versioned, TTL-aware metadata record cache
package cache

import "os"

// Disabled controls whether metadata caching is disabled.
// Set via METABRIDGE_CACHE=0 environment variable.
// When true:
// - InfoCache.TryRead() always misses
// - InfoCache.Set() and TryCompareAndSet() still bump the change number so
//   stale provider answers are detected the same way
//
// This is useful for testing and debugging to verify logic works correctly
// without caching, and to isolate cache-related bugs.
var Disabled = os.Getenv("METABRIDGE_CACHE") == "0"
