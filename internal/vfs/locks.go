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
	"fmt"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Domain names one of a node's three reader/writer locks.
//
// Lock ordering: when more than one is needed they are taken
//
//	DomainFull
//	  DomainPgio
//	    DomainMain
//
// DomainFull is held by the request that owns the node; DomainPgio orders
// against paging I/O; DomainMain guards the cached record, delete-pending
// flags and handle offsets.
type Domain int

const (
	DomainMain Domain = iota
	DomainPgio
	DomainFull
)

func (d Domain) String() string {
	switch d {
	case DomainMain:
		return "main"
	case DomainPgio:
		return "pgio"
	case DomainFull:
		return "full"
	}
	return fmt.Sprintf("Domain(%d)", int(d))
}

// Mode is how a domain is held.
type Mode int

const (
	Shared Mode = iota + 1
	Exclusive
)

// Hold is one domain held in one mode.
type Hold struct {
	Domain Domain
	Mode   Mode
}

type ownerPhase int

const (
	ownerIdle ownerPhase = iota
	ownerAwaitingResponse
)

// LockSet is the per-node lock domain manager.
//
// sync.RWMutex is not bound to a goroutine, so the holds recorded by
// SetOwner may be released by the completion running on a transport
// worker.
type LockSet struct {
	main sync.RWMutex
	pgio sync.RWMutex
	full sync.RWMutex

	mu      sync.Mutex // guards the fields below
	phase   ownerPhase
	request uuid.UUID
	holds   []Hold
}

func (l *LockSet) lock(d Domain) *sync.RWMutex {
	switch d {
	case DomainMain:
		return &l.main
	case DomainPgio:
		return &l.pgio
	case DomainFull:
		return &l.full
	}
	panic(fmt.Sprintf("vfs: unknown lock domain %d", int(d)))
}

func (l *LockSet) AcquireShared(d Domain)    { l.lock(d).RLock() }
func (l *LockSet) AcquireExclusive(d Domain) { l.lock(d).Lock() }
func (l *LockSet) ReleaseShared(d Domain)    { l.lock(d).RUnlock() }
func (l *LockSet) ReleaseExclusive(d Domain) { l.lock(d).Unlock() }

// TryAcquireExclusive never blocks.
func (l *LockSet) TryAcquireExclusive(d Domain) bool { return l.lock(d).TryLock() }

// Acquire takes every hold in order.
func (l *LockSet) Acquire(holds ...Hold) {
	for _, h := range holds {
		if h.Mode == Exclusive {
			l.AcquireExclusive(h.Domain)
		} else {
			l.AcquireShared(h.Domain)
		}
	}
}

// Release drops holds in reverse order.
func (l *LockSet) Release(holds ...Hold) {
	for i := len(holds) - 1; i >= 0; i-- {
		h := holds[i]
		if h.Mode == Exclusive {
			l.ReleaseExclusive(h.Domain)
		} else {
			l.ReleaseShared(h.Domain)
		}
	}
}

// SetOwner records that request owns the holds the caller has already
// acquired. The holds then belong to the request until ReleaseOwner.
func (l *LockSet) SetOwner(request uuid.UUID, holds ...Hold) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase != ownerIdle {
		panic(fmt.Sprintf("vfs: node already owned by %s", l.request))
	}
	l.phase = ownerAwaitingResponse
	l.request = request
	l.holds = holds
}

// ReleaseOwner releases the holds recorded for request. It is idempotent
// and ignores requests that are not the current owner, so both the failure
// path and the completion path may call it. Reports whether anything was
// released.
func (l *LockSet) ReleaseOwner(request uuid.UUID) bool {
	l.mu.Lock()
	if l.phase != ownerAwaitingResponse || l.request != request {
		l.mu.Unlock()
		return false
	}
	holds := l.holds
	l.phase = ownerIdle
	l.request = uuid.Nil
	l.holds = nil
	l.mu.Unlock()

	l.Release(holds...)
	log.Tracef("[Locks] released owner %s", request)
	return true
}

// Owner returns the request currently holding full ownership.
func (l *LockSet) Owner() (uuid.UUID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.request, l.phase == ownerAwaitingResponse
}
