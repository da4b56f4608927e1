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

// QueryCall is a "get attributes" call on an open handle.
type QueryCall struct {
	Handle HandleID
	Class  codec.Class
	Buffer []byte
}

type queryState int

const (
	queryValidate queryState = iota
	queryDecode
	queryFastPath
	querySlowPath
	queryRespond
)

// queryOp carries one query through its states. The fields after req are
// the correlation slots the completion reads back.
type queryOp struct {
	v     *Volume
	call  QueryCall
	state queryState

	fh   *FileHandle
	node *FileNode
	desc *codec.Descriptor
	w    *codec.Window

	req   *transport.Request
	token uint64
	done  chan Result

	result Result
}

// QueryInformation answers a metadata query. It blocks while a provider
// round trip is outstanding; ctx bounds only the post itself.
func (v *Volume) QueryInformation(ctx context.Context, call QueryCall) Result {
	op := &queryOp{v: v, call: call, state: queryValidate}
	for {
		switch op.state {
		case queryValidate:
			op.validate()
		case queryDecode:
			op.decode()
		case queryFastPath:
			op.fastPath()
		case querySlowPath:
			op.slowPath(ctx)
		case queryRespond:
			log.Debugf("[Query] handle=%d class=%s status=%s bytes=%d",
				call.Handle, call.Class, op.result.Status, op.result.Information)
			return op.result
		}
	}
}

func (op *queryOp) respond(s status.Status, res codec.Result) {
	op.result = Result{Status: s, Information: res.Written}
	if s == status.BufferOverflow {
		op.result.Required = res.Required
	}
	op.state = queryRespond
}

func (op *queryOp) fail(s status.Status) {
	op.respond(s, codec.Result{})
}

func (op *queryOp) validate() {
	fh, ok := op.v.handles.Get(op.call.Handle)
	if !ok {
		op.fail(status.InvalidHandle)
		return
	}
	if !fh.node.IsValid() {
		op.fail(status.InvalidDeviceRequest)
		return
	}
	op.fh, op.node = fh, fh.node
	op.state = queryDecode
}

func (op *queryOp) decode() {
	op.desc = codec.Lookup(op.call.Class)
	op.w = codec.NewWindow(op.call.Buffer)

	if op.desc.QueryStatus != status.Success {
		op.fail(op.desc.QueryStatus)
		return
	}

	if op.desc.Source == codec.SourceNode {
		op.node.locks.AcquireShared(DomainMain)
		subj := op.v.subject(op.fh)
		op.node.locks.ReleaseShared(DomainMain)
		op.encode(nil, subj)
		return
	}

	if err := op.desc.Probe(op.w); err != nil {
		op.fail(status.Of(err))
		return
	}
	op.state = queryFastPath
}

func (op *queryOp) encode(rec *codec.Record, subj *codec.Subject) {
	res, err := op.desc.Encode(op.w, rec, subj)
	op.respond(status.Of(err), res)
}

func (op *queryOp) fastPath() {
	op.node.locks.AcquireShared(DomainMain)
	rec, _, ok := op.node.info.TryRead()
	if !ok {
		op.node.locks.ReleaseShared(DomainMain)
		op.state = querySlowPath
		return
	}
	subj := op.v.subject(op.fh)
	op.node.locks.ReleaseShared(DomainMain)

	log.Tracef("[Query] index=%d fast path hit", op.node.IndexNumber)
	op.encode(&rec, subj)
}

func (op *queryOp) slowPath(ctx context.Context) {
	locks := &op.node.locks
	holds := []Hold{{DomainFull, Exclusive}, {DomainPgio, Shared}}
	locks.Acquire(holds...)

	// A request that completed while we waited may have filled the cache.
	locks.AcquireShared(DomainMain)
	if rec, _, ok := op.node.info.TryRead(); ok {
		subj := op.v.subject(op.fh)
		locks.ReleaseShared(DomainMain)
		locks.Release(holds...)
		op.encode(&rec, subj)
		return
	}
	op.token = op.node.info.ChangeNumber()
	locks.ReleaseShared(DomainMain)

	if !op.node.IsValid() {
		locks.Release(holds...)
		op.fail(status.InvalidDeviceRequest)
		return
	}

	op.req = op.v.newRequest(transport.KindQueryInformation, op.fh, op.call.Class)
	op.done = make(chan Result, 1)
	locks.SetOwner(op.req.ID, holds...)

	log.Debugf("[Query] index=%d slow path request=%s token=%d", op.node.IndexNumber, op.req.ID, op.token)
	if err := op.v.transport.Post(ctx, op.req, op.complete); err != nil {
		locks.ReleaseOwner(op.req.ID)
		log.Debugf("[Query] post request=%s failed: %v", op.req.ID, err)
		op.fail(status.Of(err))
		return
	}

	op.result = <-op.done
	op.state = queryRespond
}

// complete runs on a transport goroutine.
func (op *queryOp) complete(resp *transport.Response) error {
	locks := &op.node.locks
	if !resp.Status.IsSuccess() {
		locks.ReleaseOwner(op.req.ID)
		op.done <- Result{Status: resp.Status}
		return nil
	}

	// The owner must be gone before main is tried; a retried completion
	// finds it already released.
	locks.ReleaseOwner(op.req.ID)

	if !locks.TryAcquireExclusive(DomainMain) {
		return transport.ErrRetryCompletion
	}
	rec := resp.Record
	if !op.node.info.TryCompareAndSet(rec, op.token) {
		if cur, ok := op.node.info.Current(); ok {
			log.Debugf("[Query] request=%s superseded at token %d", op.req.ID, op.node.info.ChangeNumber())
			rec = cur
		}
	}
	subj := op.v.subject(op.fh)
	locks.ReleaseExclusive(DomainMain)

	res, err := op.desc.Encode(op.w, &rec, subj)
	s := status.Of(err)
	r := Result{Status: s, Information: res.Written}
	if s == status.BufferOverflow {
		r.Required = res.Required
	}
	op.done <- r
	return nil
}
