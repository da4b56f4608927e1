package vfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metabridge/internal/codec"
	"metabridge/internal/status"
	"metabridge/internal/transport"
)

func TestVolumeOpenSharesNode(t *testing.T) {
	t.Parallel()

	v, _ := newTestVolume(t, nil)
	h1 := v.Open(OpenParams{IndexNumber: 5, FileName: `\f`, UserContext2: 1})
	h2 := v.Open(OpenParams{IndexNumber: 5, FileName: `\f`, UserContext2: 2})
	h3 := v.Open(OpenParams{IndexNumber: 3, FileName: `\g`})

	fh1, _ := v.Handle(h1)
	fh2, _ := v.Handle(h2)
	assert.Same(t, fh1.Node(), fh2.Node())
	assert.Equal(t, uint64(2), fh2.UserContext2())

	nodes := v.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, uint64(3), nodes[0].IndexNumber)
	assert.Equal(t, uint64(5), nodes[1].IndexNumber)
	assert.Equal(t, 2, nodes[1].Handles)

	require.NoError(t, v.Close(h1))
	assert.True(t, fh1.Node().IsValid())
	require.NoError(t, v.Close(h2))
	assert.False(t, fh1.Node().IsValid())
	require.NoError(t, v.Close(h3))
	assert.Empty(t, v.Nodes())

	err := v.Close(h1)
	require.Error(t, err)
	assert.Equal(t, status.InvalidHandle, status.Of(err))
}

func TestVolumeShutdownDropsOpenHandles(t *testing.T) {
	t.Parallel()

	v, _ := newTestVolume(t, nil)
	h1 := v.Open(OpenParams{IndexNumber: 5, FileName: `\f`})
	h2 := v.Open(OpenParams{IndexNumber: 5, FileName: `\f`})
	v.Open(OpenParams{IndexNumber: 3, FileName: `\g`})
	fh, _ := v.Handle(h1)

	assert.Equal(t, 3, v.Shutdown())
	assert.Empty(t, v.Nodes())
	assert.False(t, fh.Node().IsValid())

	res := v.QueryInformation(context.Background(), QueryCall{Handle: h2, Class: codec.ClassBasic, Buffer: make([]byte, 40)})
	assert.Equal(t, status.InvalidHandle, res.Status)
	assert.Equal(t, status.InvalidHandle, status.Of(v.Close(h1)))

	// Handle numbers keep counting after a shutdown.
	h4 := v.Open(OpenParams{IndexNumber: 5, FileName: `\f`})
	assert.Greater(t, h4, h2)
	assert.Equal(t, 1, v.Shutdown())
}

func TestVolumeNewHandleInheritsDeletePending(t *testing.T) {
	t.Parallel()

	v, mt := newTestVolume(t, nil)
	h := v.Open(OpenParams{IndexNumber: 1, FileName: `\x`})

	ch := goSet(v, SetCall{Handle: h, Class: codec.ClassDisposition, Buffer: []byte{1}})
	mt.next(t).finish(t, &transport.Response{Status: status.Success, Record: testRecord()})
	require.Equal(t, status.Success, await(t, ch).Status)

	h2 := v.Open(OpenParams{IndexNumber: 1, FileName: `\x`})
	fh2, _ := v.Handle(h2)
	assert.True(t, fh2.DeletePending())
}

func TestVolumeInvalidateForcesRoundTrip(t *testing.T) {
	t.Parallel()
	skipIfCacheDisabled(t)

	v, mt := newTestVolume(t, nil)
	rec := testRecord()
	h := v.Open(OpenParams{IndexNumber: 2, FileName: `\y`, Info: &rec})
	fh, _ := v.Handle(h)
	_, before, _ := fh.Node().CachedInfo()

	v.Invalidate()
	_, after, ok := fh.Node().CachedInfo()
	assert.False(t, ok)
	assert.Equal(t, before, after)

	ch := goQuery(v, QueryCall{Handle: h, Class: codec.ClassBasic, Buffer: make([]byte, 40)})
	mt.next(t).finish(t, &transport.Response{Status: status.Success, Record: rec})
	assert.Equal(t, status.Success, await(t, ch).Status)
}

func TestVolumeUpdateFileInfo(t *testing.T) {
	t.Parallel()
	skipIfCacheDisabled(t)

	v, mt := newTestVolume(t, nil)
	h := v.Open(OpenParams{IndexNumber: 3, FileName: `\z`})

	rec := testRecord()
	require.NoError(t, v.UpdateFileInfo(h, rec))

	buf := make([]byte, 8)
	res := v.QueryInformation(context.Background(), QueryCall{Handle: h, Class: codec.ClassAttributeTag, Buffer: buf})
	require.Equal(t, status.Success, res.Status)
	assert.Equal(t, rec.FileAttributes, le.Uint32(buf))
	mt.none(t)

	err := v.UpdateFileInfo(1000, rec)
	assert.Equal(t, status.InvalidHandle, status.Of(err))
}

func TestVolumeRequestOmitsNameWhenNotRequired(t *testing.T) {
	t.Parallel()

	mt := newManualTransport()
	v := NewVolume(VolumeParams{}, mt, nil)
	h := v.Open(OpenParams{IndexNumber: 1, FileName: `\secret`})

	ch := goQuery(v, QueryCall{Handle: h, Class: codec.ClassBasic, Buffer: make([]byte, 40)})
	p := mt.next(t)
	assert.Empty(t, p.req.FileName)
	p.finish(t, &transport.Response{Status: status.Success, Record: testRecord()})
	await(t, ch)
}
