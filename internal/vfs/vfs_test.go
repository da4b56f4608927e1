package vfs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"metabridge/internal/cache"
	"metabridge/internal/codec"
	"metabridge/internal/transport"
)

// posted is one request captured by manualTransport.
type posted struct {
	req      *transport.Request
	complete transport.CompletionFunc
}

// manualTransport hands every posted request to the test, which decides
// when and how it completes.
type manualTransport struct {
	posts chan posted
	err   error
}

func newManualTransport() *manualTransport {
	return &manualTransport{posts: make(chan posted, 16)}
}

func (m *manualTransport) Post(_ context.Context, req *transport.Request, complete transport.CompletionFunc) error {
	if m.err != nil {
		return m.err
	}
	m.posts <- posted{req: req, complete: complete}
	return nil
}

// next waits for the next posted request.
func (m *manualTransport) next(t *testing.T) posted {
	t.Helper()
	select {
	case p := <-m.posts:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("no request posted")
		return posted{}
	}
}

// none asserts nothing was posted.
func (m *manualTransport) none(t *testing.T) {
	t.Helper()
	select {
	case p := <-m.posts:
		t.Fatalf("unexpected request %s class=%s", p.req.Kind, p.req.Class)
	default:
	}
}

// finish runs the completion until it stops asking to be retried.
func (p posted) finish(t *testing.T, resp *transport.Response) {
	t.Helper()
	resp.ID, resp.Kind = p.req.ID, p.req.Kind
	for {
		err := p.complete(resp)
		if errors.Is(err, transport.ErrRetryCompletion) {
			time.Sleep(time.Millisecond)
			continue
		}
		require.NoError(t, err)
		return
	}
}

func newTestVolume(t *testing.T, oracle MappingOracle) (*Volume, *manualTransport) {
	t.Helper()
	mt := newManualTransport()
	v := NewVolume(VolumeParams{Prefix: `\srv\share`, FileNameRequired: true}, mt, oracle)
	return v, mt
}

func testRecord() codec.Record {
	return codec.Record{
		FileAttributes: codec.AttrArchive,
		AllocationSize: 8192,
		FileSize:       5000,
		CreationTime:   100,
		LastAccessTime: 200,
		LastWriteTime:  300,
		ChangeTime:     400,
	}
}

func goQuery(v *Volume, call QueryCall) <-chan Result {
	ch := make(chan Result, 1)
	go func() { ch <- v.QueryInformation(context.Background(), call) }()
	return ch
}

func goSet(v *Volume, call SetCall) <-chan Result {
	ch := make(chan Result, 1)
	go func() { ch <- v.SetInformation(context.Background(), call) }()
	return ch
}

func await(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("call did not return")
		return Result{}
	}
}

func skipIfCacheDisabled(t *testing.T) {
	t.Helper()
	if cache.Disabled {
		t.Skip("metadata cache disabled")
	}
}
