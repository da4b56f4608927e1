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

package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"metabridge/internal/codec"
	"metabridge/internal/common"
	"metabridge/internal/status"
	"metabridge/internal/util"
)

// ErrRetryCompletion is returned by a CompletionFunc that could not take a
// lock without blocking. The transport calls it again later with the same
// response; the provider is not asked again.
var ErrRetryCompletion = errors.New("transport: retry completion")

// CompletionFunc receives the provider's response on a transport goroutine.
type CompletionFunc func(resp *Response) error

// Transport posts requests to a provider.
type Transport interface {
	// Post hands req to the provider. complete runs exactly once with the
	// response unless Post itself fails.
	Post(ctx context.Context, req *Request, complete CompletionFunc) error
}

// Provider implements the filesystem behind the bridge.
type Provider interface {
	QueryInformation(ctx context.Context, req *Request) (codec.Record, error)
	SetInformation(ctx context.Context, req *Request) (codec.Record, error)
}

// QueueOptions configures a Queue.
type QueueOptions struct {
	Workers    int           // default 4
	Depth      int           // pending request slots, default 64
	RetryDelay time.Duration // delay before re-running a completion, default 1ms
}

type envelope struct {
	wire     []byte
	resp     *Response
	complete CompletionFunc
	retries  int
}

// Queue is an in-process Transport. Requests travel in their wire format to
// a fixed pool of workers which call the Provider and run completions.
type Queue struct {
	provider Provider
	opts     QueueOptions

	work    chan *envelope
	wg      sync.WaitGroup
	pending atomic.Int64

	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewQueue starts the worker pool.
func NewQueue(p Provider, opts QueueOptions) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Depth <= 0 {
		opts.Depth = 64
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		provider: p,
		opts:     opts,
		work:     make(chan *envelope, opts.Depth),
		ctx:      ctx,
		cancel:   cancel,
	}
	for i := 0; i < opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	return q
}

// Post implements Transport.
func (q *Queue) Post(ctx context.Context, req *Request, complete CompletionFunc) error {
	wire, err := req.MarshalBinary()
	if err != nil {
		return status.Wrap(err, status.InvalidParameter)
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return status.Wrap(common.ErrClosed, status.InvalidDeviceRequest)
	}

	env := &envelope{wire: wire, complete: complete}
	q.pending.Add(1)
	select {
	case q.work <- env:
		log.Debugf("[Queue] posted %s id=%s class=%s", req.Kind, req.ID, req.Class)
		return nil
	case <-ctx.Done():
		q.pending.Add(-1)
		return status.Wrap(ctx.Err(), status.Unsuccessful)
	}
}

// Pending returns the number of requests whose completion has not finished.
func (q *Queue) Pending() int64 {
	return q.pending.Load()
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	for {
		select {
		case env, ok := <-q.work:
			if !ok || q.ctx.Err() != nil {
				return
			}
			if env.resp == nil {
				env.resp = q.dispatch(env.wire)
			}
			q.finish(id, env)
		case <-q.ctx.Done():
			return
		}
	}
}

// dispatch decodes a request, calls the provider and round-trips the
// answer through the response wire format.
func (q *Queue) dispatch(wire []byte) *Response {
	req, err := UnmarshalRequest(wire)
	if err != nil {
		return &Response{Status: status.Of(err)}
	}

	var rec codec.Record
	switch req.Kind {
	case KindQueryInformation:
		rec, err = q.provider.QueryInformation(q.ctx, req)
	case KindSetInformation:
		rec, err = q.provider.SetInformation(q.ctx, req)
	default:
		err = status.New(status.InvalidDeviceRequest, "unknown request kind %s", req.Kind)
	}

	resp := &Response{ID: req.ID, Kind: req.Kind, Status: status.Of(err), Record: rec}
	if err != nil {
		log.Debugf("[Queue] %s id=%s failed: %v", req.Kind, req.ID, err)
		resp.Record = codec.Record{}
	}

	b, err := resp.MarshalBinary()
	if err != nil {
		return &Response{ID: req.ID, Kind: req.Kind, Status: status.Of(err)}
	}
	out, err := UnmarshalResponse(b)
	if err != nil {
		return &Response{ID: req.ID, Kind: req.Kind, Status: status.Of(err)}
	}
	return out
}

func (q *Queue) finish(worker int, env *envelope) {
	err := env.complete(env.resp)
	if errors.Is(err, ErrRetryCompletion) {
		env.retries++
		if env.retries%1000 == 0 {
			log.Warnf("[Queue] worker %d: completion id=%s retried %d times", worker, env.resp.ID, env.retries)
		}
		time.AfterFunc(q.opts.RetryDelay, func() { q.requeue(env) })
		return
	}
	if err != nil {
		log.Warnf("[Queue] worker %d: completion id=%s: %v", worker, env.resp.ID, err)
	}
	q.pending.Add(-1)
}

// requeue puts env back on the work channel unless the queue was stopped,
// in which case the request is dropped.
func (q *Queue) requeue(env *envelope) {
	select {
	case q.work <- env:
	case <-q.ctx.Done():
		log.Debugf("[Queue] dropped completion id=%s after stop", env.resp.ID)
	}
}

// Close stops accepting requests, waits up to timeout for in-flight ones
// to complete and stops the workers.
func (q *Queue) Close(timeout time.Duration) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	cfg := util.DefaultPollConfig()
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	err := util.PollUntil(context.Background(), cfg, func() bool {
		return q.pending.Load() == 0
	})
	q.cancel()
	if err != nil {
		// Stopped workers leave the channel open so late re-queues never
		// send on a closed channel. Abandoned requests never complete.
		q.wg.Wait()
		log.Warnf("[Queue] close: abandoned %d pending requests", q.pending.Load())
		return status.Wrap(err, status.Unsuccessful)
	}
	close(q.work)
	q.wg.Wait()
	return nil
}
