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

package vfs

import (
	"sync/atomic"
	"time"

	"github.com/google/btree"

	"metabridge/internal/cache"
	"metabridge/internal/codec"
)

// FileNode is the shared state of one file identity open on the volume.
type FileNode struct {
	IndexNumber uint64
	FileName    string
	IsDirectory bool
	// UserContext is the provider's opaque per-node context.
	UserContext uint64

	locks LockSet
	info  *cache.InfoCache

	// guarded by locks.main
	deletePending bool

	// guarded by Volume.mu
	refs int

	valid atomic.Bool
}

func newFileNode(p OpenParams, ttl time.Duration) *FileNode {
	n := &FileNode{
		IndexNumber: p.IndexNumber,
		FileName:    p.FileName,
		IsDirectory: p.IsDirectory,
		UserContext: p.UserContext,
		info:        cache.NewInfoCache(ttl),
	}
	if p.Info != nil {
		n.info.Set(*p.Info)
	}
	n.valid.Store(true)
	return n
}

// Less orders nodes by index number in the volume's node table.
func (n *FileNode) Less(than btree.Item) bool {
	return n.IndexNumber < than.(*FileNode).IndexNumber
}

// IsValid reports whether the node is still attached to its volume.
func (n *FileNode) IsValid() bool {
	return n.valid.Load()
}

// Locks exposes the node's lock domains.
func (n *FileNode) Locks() *LockSet {
	return &n.locks
}

// DeletePending returns the node-level delete flag.
func (n *FileNode) DeletePending() bool {
	n.locks.AcquireShared(DomainMain)
	defer n.locks.ReleaseShared(DomainMain)
	return n.deletePending
}

// CachedInfo returns the cached record and its change number.
func (n *FileNode) CachedInfo() (codec.Record, uint64, bool) {
	n.locks.AcquireShared(DomainMain)
	defer n.locks.ReleaseShared(DomainMain)
	return n.info.TryRead()
}

// NodeSnapshot is a point-in-time copy of a node for diagnostics.
type NodeSnapshot struct {
	IndexNumber   uint64
	FileName      string
	IsDirectory   bool
	DeletePending bool
	Handles       int
	Owned         bool
	Cache         cache.InfoCacheStats
}
