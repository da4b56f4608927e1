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
	"context"

	log "github.com/sirupsen/logrus"

	"metabridge/internal/codec"
	"metabridge/internal/status"
	"metabridge/internal/transport"
)

// SetCall is a "set attributes" call on an open handle.
type SetCall struct {
	Handle HandleID
	Class  codec.Class
	Buffer []byte
	// AdvanceOnly restricts an end-of-file set to growing the file.
	AdvanceOnly bool
}

type setState int

const (
	setValidate setState = iota
	setDecode
	setGuard
	setLocal
	setPost
	setRespond
)

type setOp struct {
	v     *Volume
	call  SetCall
	state setState

	fh   *FileHandle
	node *FileNode
	desc *codec.Descriptor
	m    codec.Mutation

	req  *transport.Request
	done chan status.Status

	result Result
}

// SetInformation applies a metadata mutation. Everything the provider does
// not need to see is checked before any lock is taken.
func (v *Volume) SetInformation(ctx context.Context, call SetCall) Result {
	op := &setOp{v: v, call: call, state: setValidate}
	for {
		switch op.state {
		case setValidate:
			op.validate()
		case setDecode:
			op.decode()
		case setGuard:
			op.guard()
		case setLocal:
			op.local()
		case setPost:
			op.post(ctx)
		case setRespond:
			log.Debugf("[Set] handle=%d class=%s status=%s", call.Handle, call.Class, op.result.Status)
			return op.result
		}
	}
}

// respond finishes the call. Set never produces output bytes.
func (op *setOp) respond(s status.Status) {
	op.result = Result{Status: s}
	op.state = setRespond
}

func (op *setOp) validate() {
	fh, ok := op.v.handles.Get(op.call.Handle)
	if !ok {
		op.respond(status.InvalidHandle)
		return
	}
	if !fh.node.IsValid() {
		op.respond(status.InvalidDeviceRequest)
		return
	}
	op.fh, op.node = fh, fh.node
	op.state = setDecode
}

func (op *setOp) decode() {
	op.desc = codec.Lookup(op.call.Class)
	m, err := op.desc.Decode(op.call.Buffer, op.call.AdvanceOnly)
	if err != nil {
		op.respond(status.Of(err))
		return
	}
	op.m = m
	if op.desc.SetLocal {
		op.state = setLocal
		return
	}
	op.state = setGuard
}

// guard runs the mapping checks and prepares the outgoing payload.
func (op *setOp) guard() {
	switch op.m.Class {
	case codec.ClassAllocation:
		if !op.v.oracle.CanTruncate(op.node, op.m.AllocationSize) {
			op.respond(status.UserMappedFile)
			return
		}
	case codec.ClassEndOfFile:
		if !op.v.oracle.CanTruncate(op.node, op.m.EndOfFile) {
			op.respond(status.UserMappedFile)
			return
		}
	case codec.ClassDisposition:
		if !op.v.oracle.FlushImageForDelete(op.node) {
			op.respond(status.CannotDelete)
			return
		}
	case codec.ClassBasic:
		op.m.FileAttributes = codec.NormalizeSetAttributes(op.m.FileAttributes, op.node.IsDirectory)
	}
	op.state = setPost
}

// local handles classes that never reach the provider.
func (op *setOp) local() {
	switch op.m.Class {
	case codec.ClassPosition:
		op.node.locks.AcquireExclusive(DomainMain)
		op.fh.currentByteOffset = op.m.CurrentByteOffset
		op.node.locks.ReleaseExclusive(DomainMain)
		op.respond(status.Success)
	default:
		op.respond(status.InvalidParameter)
	}
}

func (op *setOp) post(ctx context.Context) {
	locks := &op.node.locks
	holds := []Hold{{DomainFull, Exclusive}, {DomainPgio, Exclusive}}
	locks.Acquire(holds...)

	if !op.node.IsValid() {
		locks.Release(holds...)
		op.respond(status.InvalidDeviceRequest)
		return
	}

	op.req = op.v.newRequest(transport.KindSetInformation, op.fh, op.m.Class)
	op.req.Set = op.m
	op.done = make(chan status.Status, 1)
	locks.SetOwner(op.req.ID, holds...)

	log.Debugf("[Set] index=%d class=%s request=%s", op.node.IndexNumber, op.m.Class, op.req.ID)
	if err := op.v.transport.Post(ctx, op.req, op.complete); err != nil {
		locks.ReleaseOwner(op.req.ID)
		log.Debugf("[Set] post request=%s failed: %v", op.req.ID, err)
		op.respond(status.Of(err))
		return
	}
	op.respond(<-op.done)
}

// complete runs on a transport goroutine. Ownership is held until the
// confirmed record and the phase-two state are in place.
func (op *setOp) complete(resp *transport.Response) error {
	locks := &op.node.locks
	if !resp.Status.IsSuccess() {
		locks.ReleaseOwner(op.req.ID)
		op.done <- resp.Status
		return nil
	}

	if !locks.TryAcquireExclusive(DomainMain) {
		return transport.ErrRetryCompletion
	}
	op.node.info.Set(resp.Record)
	if op.m.Class == codec.ClassDisposition {
		op.node.deletePending = op.m.DeleteFile
		op.fh.deletePending = op.m.DeleteFile
	}
	locks.ReleaseExclusive(DomainMain)

	locks.ReleaseOwner(op.req.ID)
	op.done <- status.Success
	return nil
}
