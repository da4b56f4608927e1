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

// Package vfs implements the file-metadata query and set pipelines of a
// volume: node and handle bookkeeping, per-node lock domains, the metadata
// cache protocol and the asynchronous round trip to the provider.
package vfs

import (
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"metabridge/internal/codec"
	"metabridge/internal/common"
	"metabridge/internal/status"
	"metabridge/internal/transport"
)

// nodeTableDegree is the btree degree of the node table.
const nodeTableDegree = 16

// VolumeParams are the read-only volume settings the pipelines consume.
type VolumeParams struct {
	// Prefix is reported ahead of every file name (e.g. \server\share).
	Prefix string
	// FileNameRequired makes every request carry the node's file name.
	FileNameRequired bool
	// FileInfoTimeout bounds how long a cached record answers queries
	// (0 for no expiration).
	FileInfoTimeout time.Duration
}

// OpenParams describes the identity a handle is opened on.
type OpenParams struct {
	IndexNumber  uint64
	FileName     string
	IsDirectory  bool
	UserContext  uint64
	UserContext2 uint64
	// Info optionally seeds the node cache with the record returned by the
	// provider's open.
	Info *codec.Record
}

// Volume is the front door for metadata calls on one mounted volume.
type Volume struct {
	params    VolumeParams
	transport transport.Transport
	oracle    MappingOracle

	mu    sync.Mutex
	nodes *btree.BTree

	handles *HandleManager
}

// NewVolume creates a volume. A nil oracle allows every truncate and delete.
func NewVolume(params VolumeParams, t transport.Transport, oracle MappingOracle) *Volume {
	if oracle == nil {
		oracle = AllowAll{}
	}
	return &Volume{
		params:    params,
		transport: t,
		oracle:    oracle,
		nodes:     btree.New(nodeTableDegree),
		handles:   NewHandleManager(),
	}
}

// Params returns the volume settings.
func (v *Volume) Params() VolumeParams {
	return v.params
}

// Open finds or creates the node for p.IndexNumber and allocates a handle.
func (v *Volume) Open(p OpenParams) HandleID {
	v.mu.Lock()
	var node *FileNode
	if item := v.nodes.Get(&FileNode{IndexNumber: p.IndexNumber}); item != nil {
		node = item.(*FileNode)
	} else {
		node = newFileNode(p, v.params.FileInfoTimeout)
		v.nodes.ReplaceOrInsert(node)
	}
	node.refs++
	v.mu.Unlock()

	h := v.handles.Allocate(node, p.UserContext2, node.DeletePending())
	log.Debugf("[Volume] open index=%d name=%q handle=%d", p.IndexNumber, p.FileName, h)
	return h
}

// Close releases a handle. The node is detached once its last handle is
// closed, after any request owning it has completed.
func (v *Volume) Close(h HandleID) error {
	fh, ok := v.handles.Release(h)
	if !ok {
		return status.Wrap(common.ErrInvalidHandle, status.InvalidHandle)
	}
	node := fh.node

	v.mu.Lock()
	node.refs--
	last := node.refs == 0
	if last {
		v.nodes.Delete(node)
	}
	v.mu.Unlock()

	if last {
		node.locks.AcquireExclusive(DomainFull)
		node.valid.Store(false)
		node.locks.ReleaseExclusive(DomainFull)
		log.Debugf("[Volume] node index=%d detached", node.IndexNumber)
	}
	return nil
}

// Handle returns the open handle h.
func (v *Volume) Handle(h HandleID) (*FileHandle, bool) {
	return v.handles.Get(h)
}

// Nodes returns a snapshot of every attached node in index order.
func (v *Volume) Nodes() []NodeSnapshot {
	v.mu.Lock()
	var nodes []*FileNode
	refs := map[*FileNode]int{}
	v.nodes.Ascend(func(item btree.Item) bool {
		n := item.(*FileNode)
		nodes = append(nodes, n)
		refs[n] = n.refs
		return true
	})
	v.mu.Unlock()

	out := make([]NodeSnapshot, 0, len(nodes))
	for _, n := range nodes {
		_, owned := n.locks.Owner()
		n.locks.AcquireShared(DomainMain)
		out = append(out, NodeSnapshot{
			IndexNumber:   n.IndexNumber,
			FileName:      n.FileName,
			IsDirectory:   n.IsDirectory,
			DeletePending: n.deletePending,
			Handles:       refs[n],
			Owned:         owned,
			Cache:         n.info.Stats(),
		})
		n.locks.ReleaseShared(DomainMain)
	}
	return out
}

// Invalidate drops every cached record so the next query of each node
// goes to the provider. Change numbers are kept.
func (v *Volume) Invalidate() {
	v.mu.Lock()
	var nodes []*FileNode
	v.nodes.Ascend(func(item btree.Item) bool {
		nodes = append(nodes, item.(*FileNode))
		return true
	})
	v.mu.Unlock()

	for _, n := range nodes {
		n.locks.AcquireExclusive(DomainMain)
		n.info.Invalidate()
		n.locks.ReleaseExclusive(DomainMain)
	}
}

// Shutdown detaches every node and drops the handles still open, returning
// how many were dropped. Calls on a dropped handle fail with InvalidHandle.
func (v *Volume) Shutdown() int {
	if n := v.handles.Len(); n > 0 {
		log.Warnf("[Volume] shutdown with %d open handles", n)
	}

	v.mu.Lock()
	var nodes []*FileNode
	v.nodes.Ascend(func(item btree.Item) bool {
		n := item.(*FileNode)
		n.refs = 0
		nodes = append(nodes, n)
		return true
	})
	v.nodes.Clear(false)
	v.mu.Unlock()

	for _, n := range nodes {
		n.locks.AcquireExclusive(DomainFull)
		n.valid.Store(false)
		n.locks.ReleaseExclusive(DomainFull)
	}
	return v.handles.Clear()
}

// UpdateFileInfo records a metadata change confirmed outside this pipeline,
// such as a completed write. It bumps the node's change number, so any
// query answer computed earlier is discarded.
func (v *Volume) UpdateFileInfo(h HandleID, rec codec.Record) error {
	fh, ok := v.handles.Get(h)
	if !ok {
		return status.Wrap(common.ErrInvalidHandle, status.InvalidHandle)
	}
	node := fh.node
	node.locks.AcquireExclusive(DomainMain)
	node.info.Set(rec)
	node.locks.ReleaseExclusive(DomainMain)
	return nil
}

// subject snapshots the encoder inputs. Caller holds main.
func (v *Volume) subject(fh *FileHandle) *codec.Subject {
	return &codec.Subject{
		IndexNumber:       fh.node.IndexNumber,
		IsDirectory:       fh.node.IsDirectory,
		DeletePending:     fh.deletePending,
		CurrentByteOffset: fh.currentByteOffset,
		VolumePrefix:      v.params.Prefix,
		FileName:          fh.node.FileName,
	}
}

// newRequest builds a pending request carrying both provider contexts.
func (v *Volume) newRequest(kind transport.Kind, fh *FileHandle, class codec.Class) *transport.Request {
	req := &transport.Request{
		ID:           uuid.New(),
		Kind:         kind,
		UserContext:  fh.node.UserContext,
		UserContext2: fh.userContext2,
		Class:        class,
	}
	if v.params.FileNameRequired {
		req.FileName = fh.node.FileName
	}
	return req
}

// Result is the outcome of one metadata call.
type Result struct {
	Status status.Status
	// Information is the number of bytes produced in the caller's buffer.
	Information int
	// Required is the full size of the layout when Status is BufferOverflow.
	Required int
}
