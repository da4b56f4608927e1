package billyfs

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metabridge/internal/cache"
	"metabridge/internal/codec"
	"metabridge/internal/common"
	"metabridge/internal/status"
	"metabridge/internal/transport"
	"metabridge/internal/vfs"
)

func newFS(t *testing.T) *Provider {
	t.Helper()
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "docs/readme.txt", make([]byte, 5000), 0644))
	require.NoError(t, fs.MkdirAll("empty", 0755))
	return New(fs)
}

func TestOpenReportsRecord(t *testing.T) {
	t.Parallel()

	p := newFS(t)
	op, err := p.Open(`\docs\readme.txt`)
	require.NoError(t, err)
	assert.Equal(t, `\docs\readme.txt`, op.FileName)
	assert.False(t, op.IsDirectory)
	require.NotNil(t, op.Info)
	assert.Equal(t, uint64(5000), op.Info.FileSize)
	assert.Equal(t, uint64(8192), op.Info.AllocationSize)

	again, err := p.Open("docs/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, op.IndexNumber, again.IndexNumber)
	assert.NotEqual(t, op.UserContext, again.UserContext)

	dir, err := p.Open(`\docs`)
	require.NoError(t, err)
	assert.True(t, dir.IsDirectory)
	assert.True(t, dir.Info.IsDirectory())

	_, err = p.Open(`\missing`)
	require.Error(t, err)
	assert.Equal(t, status.ObjectNameNotFound, status.Of(err))
}

func TestSetInformation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		path     string
		m        codec.Mutation
		wantSize uint64
		want     status.Status
	}{
		{"eof shrink", `\docs\readme.txt`, codec.Mutation{Class: codec.ClassEndOfFile, EndOfFile: 10}, 10, status.Success},
		{"eof grow", `\docs\readme.txt`, codec.Mutation{Class: codec.ClassEndOfFile, EndOfFile: 6000}, 6000, status.Success},
		{"eof advance only ignores shrink", `\docs\readme.txt`,
			codec.Mutation{Class: codec.ClassEndOfFile, EndOfFile: 10, AdvanceOnly: true}, 5000, status.Success},
		{"allocation shrink truncates", `\docs\readme.txt`, codec.Mutation{Class: codec.ClassAllocation, AllocationSize: 100}, 100, status.Success},
		{"allocation grow keeps size", `\docs\readme.txt`, codec.Mutation{Class: codec.ClassAllocation, AllocationSize: 1 << 20}, 5000, status.Success},
		{"eof on directory", `\empty`, codec.Mutation{Class: codec.ClassEndOfFile, EndOfFile: 1}, 0, status.FileIsADirectory},
		{"delete non-empty directory", `\docs`, codec.Mutation{Class: codec.ClassDisposition, DeleteFile: true}, 0, status.DirectoryNotEmpty},
		{"delete empty directory", `\empty`, codec.Mutation{Class: codec.ClassDisposition, DeleteFile: true}, 0, status.Success},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := newFS(t)
			op, err := p.Open(tt.path)
			require.NoError(t, err)

			rec, err := p.SetInformation(context.Background(), &transport.Request{
				Kind: transport.KindSetInformation, Class: tt.m.Class, UserContext: op.UserContext, Set: tt.m})
			assert.Equal(t, tt.want, status.Of(err))
			if tt.want == status.Success {
				assert.Equal(t, tt.wantSize, rec.FileSize)
			}
		})
	}
}

func TestSetBasicOverlay(t *testing.T) {
	t.Parallel()

	p := newFS(t)
	op, err := p.Open(`\docs\readme.txt`)
	require.NoError(t, err)

	created := codec.FileTime(time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC))
	written := codec.FileTime(time.Date(2021, 6, 7, 8, 9, 10, 0, time.UTC))
	rec, err := p.SetInformation(context.Background(), &transport.Request{
		Kind: transport.KindSetInformation, Class: codec.ClassBasic, UserContext: op.UserContext,
		Set: codec.Mutation{Class: codec.ClassBasic, FileAttributes: codec.AttrHidden,
			CreationTime: created, LastWriteTime: written}})
	require.NoError(t, err)
	assert.Equal(t, codec.AttrHidden, rec.FileAttributes)
	assert.Equal(t, created, rec.CreationTime)
	assert.Equal(t, written, rec.LastWriteTime)

	// Unchanged attributes leave the overlay alone.
	rec, err = p.SetInformation(context.Background(), &transport.Request{
		Kind: transport.KindSetInformation, Class: codec.ClassBasic, UserContext: op.UserContext,
		Set: codec.Mutation{Class: codec.ClassBasic, FileAttributes: codec.AttrUnchanged}})
	require.NoError(t, err)
	assert.Equal(t, codec.AttrHidden, rec.FileAttributes)

	got, err := p.QueryInformation(context.Background(), &transport.Request{
		Kind: transport.KindQueryInformation, Class: codec.ClassBasic, UserContext: op.UserContext})
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestQueryRecordsAreStable(t *testing.T) {
	t.Parallel()

	p := newFS(t)
	op, err := p.Open(`\docs\readme.txt`)
	require.NoError(t, err)

	query := func() codec.Record {
		rec, err := p.QueryInformation(context.Background(), &transport.Request{
			Kind: transport.KindQueryInformation, Class: codec.ClassBasic, UserContext: op.UserContext})
		require.NoError(t, err)
		return rec
	}
	first := query()
	time.Sleep(2 * time.Millisecond)
	assert.Equal(t, first, query())
	assert.Equal(t, *op.Info, first)

	// A truncate through the provider moves the write and change times only.
	rec, err := p.SetInformation(context.Background(), &transport.Request{
		Kind: transport.KindSetInformation, Class: codec.ClassEndOfFile, UserContext: op.UserContext,
		Set: codec.Mutation{Class: codec.ClassEndOfFile, EndOfFile: 1}})
	require.NoError(t, err)
	assert.Equal(t, first.CreationTime, rec.CreationTime)
	assert.Equal(t, first.LastAccessTime, rec.LastAccessTime)
	assert.Greater(t, rec.LastWriteTime, first.LastWriteTime)
	assert.Equal(t, rec.LastWriteTime, rec.ChangeTime)
	assert.Equal(t, rec, query())
}

func TestProviderErrorsCarrySentinels(t *testing.T) {
	t.Parallel()

	p := newFS(t)
	_, err := p.QueryInformation(context.Background(), &transport.Request{
		Kind: transport.KindQueryInformation, UserContext: 99})
	assert.ErrorIs(t, err, common.ErrUnknownNode)
	assert.Equal(t, status.InvalidHandle, status.Of(err))

	dir, err := p.Open(`\empty`)
	require.NoError(t, err)
	_, err = p.SetInformation(context.Background(), &transport.Request{
		Kind: transport.KindSetInformation, Class: codec.ClassAllocation, UserContext: dir.UserContext,
		Set: codec.Mutation{Class: codec.ClassAllocation, AllocationSize: 1}})
	assert.ErrorIs(t, err, common.ErrIsDir)
	assert.Equal(t, status.FileIsADirectory, status.Of(err))
}

func TestCloseRemovesDeletePending(t *testing.T) {
	t.Parallel()

	p := newFS(t)
	a, err := p.Open(`\docs\readme.txt`)
	require.NoError(t, err)
	b, err := p.Open(`\docs\readme.txt`)
	require.NoError(t, err)

	_, err = p.SetInformation(context.Background(), &transport.Request{
		Kind: transport.KindSetInformation, Class: codec.ClassDisposition, UserContext: a.UserContext,
		Set: codec.Mutation{Class: codec.ClassDisposition, DeleteFile: true}})
	require.NoError(t, err)

	require.NoError(t, p.Close(a.UserContext))
	_, err = p.fs.Stat("docs/readme.txt")
	require.NoError(t, err, "still open through b")

	require.NoError(t, p.Close(b.UserContext))
	_, err = p.fs.Stat("docs/readme.txt")
	assert.Error(t, err)

	assert.Equal(t, status.InvalidHandle, status.Of(p.Close(b.UserContext)))
}

func TestResolveByFileName(t *testing.T) {
	t.Parallel()

	p := newFS(t)
	rec, err := p.QueryInformation(context.Background(), &transport.Request{
		Kind: transport.KindQueryInformation, Class: codec.ClassBasic, FileName: `\docs\readme.txt`})
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), rec.FileSize)

	_, err = p.QueryInformation(context.Background(), &transport.Request{Kind: transport.KindQueryInformation})
	assert.Equal(t, status.InvalidHandle, status.Of(err))
}

// End to end: volume, queue and provider together.
func TestVolumeOverQueue(t *testing.T) {
	t.Parallel()
	if cache.Disabled {
		t.Skip("mapping checks need the metadata cache")
	}

	p := newFS(t)
	q := transport.NewQueue(p, transport.QueueOptions{Workers: 2})
	defer q.Close(time.Second)
	v := vfs.NewVolume(vfs.VolumeParams{Prefix: `\mb`}, q, vfs.NewPatternOracle([]string{"*.txt"}, nil))

	op, err := p.Open(`\docs\readme.txt`)
	require.NoError(t, err)
	op.Info = nil
	h := v.Open(op)
	ctx := context.Background()

	buf := make([]byte, 24)
	res := v.QueryInformation(ctx, vfs.QueryCall{Handle: h, Class: codec.ClassStandard, Buffer: buf})
	require.Equal(t, status.Success, res.Status)
	assert.Equal(t, uint64(5000), binary.LittleEndian.Uint64(buf[8:]))

	eof := func(n uint64) []byte {
		b, err := codec.Lookup(codec.ClassEndOfFile).Build(codec.Mutation{Class: codec.ClassEndOfFile, EndOfFile: n})
		require.NoError(t, err)
		return b
	}

	// Mapped: shrinking is refused before reaching the provider.
	res = v.SetInformation(ctx, vfs.SetCall{Handle: h, Class: codec.ClassEndOfFile, Buffer: eof(10)})
	assert.Equal(t, status.UserMappedFile, res.Status)

	res = v.SetInformation(ctx, vfs.SetCall{Handle: h, Class: codec.ClassEndOfFile, Buffer: eof(7000)})
	require.Equal(t, status.Success, res.Status)

	res = v.QueryInformation(ctx, vfs.QueryCall{Handle: h, Class: codec.ClassStandard, Buffer: buf})
	require.Equal(t, status.Success, res.Status)
	assert.Equal(t, uint64(7000), binary.LittleEndian.Uint64(buf[8:]))

	res = v.SetInformation(ctx, vfs.SetCall{Handle: h, Class: codec.ClassDisposition, Buffer: []byte{1}})
	require.Equal(t, status.Success, res.Status)
	fh, _ := v.Handle(h)
	assert.True(t, fh.DeletePending())

	require.NoError(t, v.Close(h))
	require.NoError(t, p.Close(op.UserContext))
	_, err = p.fs.Stat("docs/readme.txt")
	assert.Error(t, err)
	assert.Zero(t, q.Pending())
}
