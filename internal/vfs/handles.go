package vfs

import "sync"

// HandleID is the type for VFS handles
type HandleID uint64

// FileHandle is one open instance of a node.
type FileHandle struct {
	node *FileNode
	// userContext2 is the provider's opaque per-handle context.
	userContext2 uint64

	// guarded by node.locks.main
	currentByteOffset uint64
	deletePending     bool
}

// Node returns the node the handle refers to.
func (fh *FileHandle) Node() *FileNode { return fh.node }

// UserContext2 returns the provider's per-handle context.
func (fh *FileHandle) UserContext2() uint64 { return fh.userContext2 }

// CurrentByteOffset reads the offset under shared main.
func (fh *FileHandle) CurrentByteOffset() uint64 {
	fh.node.locks.AcquireShared(DomainMain)
	defer fh.node.locks.ReleaseShared(DomainMain)
	return fh.currentByteOffset
}

// DeletePending reads the caller-visible delete flag under shared main.
func (fh *FileHandle) DeletePending() bool {
	fh.node.locks.AcquireShared(DomainMain)
	defer fh.node.locks.ReleaseShared(DomainMain)
	return fh.deletePending
}

// HandleManager manages VFS handles
type HandleManager struct {
	mu         sync.RWMutex
	handles    map[HandleID]*FileHandle
	nextHandle HandleID
}

// NewHandleManager creates a new handle manager
func NewHandleManager() *HandleManager {
	return &HandleManager{
		handles:    make(map[HandleID]*FileHandle),
		nextHandle: 1,
	}
}

// Allocate creates a new handle for node. The handle starts with the
// node's delete-pending state.
func (hm *HandleManager) Allocate(node *FileNode, userContext2 uint64, deletePending bool) HandleID {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	handle := hm.nextHandle
	hm.nextHandle++

	hm.handles[handle] = &FileHandle{
		node:          node,
		userContext2:  userContext2,
		deletePending: deletePending,
	}

	return handle
}

// Get retrieves a handle
func (hm *HandleManager) Get(h HandleID) (*FileHandle, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	fh, ok := hm.handles[h]
	return fh, ok
}

// Release frees a handle and returns it
func (hm *HandleManager) Release(h HandleID) (*FileHandle, bool) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	fh, ok := hm.handles[h]
	delete(hm.handles, h)
	return fh, ok
}

// Len returns the number of open handles
func (hm *HandleManager) Len() int {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	return len(hm.handles)
}

// Clear removes all handles, returning the count of handles cleared
func (hm *HandleManager) Clear() int {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	count := len(hm.handles)
	hm.handles = make(map[HandleID]*FileHandle)
	// Don't reset nextHandle to avoid handle ID reuse issues
	return count
}
