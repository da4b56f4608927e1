package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metabridge/internal/codec"
	"metabridge/internal/config"
	"metabridge/internal/provider/sqlstore"
	"metabridge/internal/status"
	"metabridge/internal/vfs"
)

func TestParseClass(t *testing.T) {
	t.Parallel()

	c, err := parseClass("EOF")
	require.NoError(t, err)
	assert.Equal(t, codec.ClassEndOfFile, c)

	c, err = parseClass("delete")
	require.NoError(t, err)
	assert.Equal(t, codec.ClassDisposition, c)

	_, err = parseClass("bogus")
	assert.Error(t, err)
}

func TestMutationFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		class codec.Class
		want  codec.Mutation
	}{
		{codec.ClassBasic, codec.Mutation{Class: codec.ClassBasic, FileAttributes: 7}},
		{codec.ClassAllocation, codec.Mutation{Class: codec.ClassAllocation, AllocationSize: 7}},
		{codec.ClassEndOfFile, codec.Mutation{Class: codec.ClassEndOfFile, EndOfFile: 7, AdvanceOnly: true}},
		{codec.ClassDisposition, codec.Mutation{Class: codec.ClassDisposition, DeleteFile: true}},
		{codec.ClassPosition, codec.Mutation{Class: codec.ClassPosition, CurrentByteOffset: 7}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.class.String(), func(t *testing.T) {
			t.Parallel()
			m := mutationFor(tt.class, 7, true)
			if tt.class != codec.ClassEndOfFile {
				m.AdvanceOnly = false
			}
			assert.Equal(t, tt.want, m)

			buf, err := codec.Lookup(tt.class).Build(m)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, len(buf), codec.Lookup(tt.class).SetMinLength)
		})
	}
}

func TestPrintResult(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	printResult(&out, codec.ClassName, nil, vfs.Result{Status: status.BufferOverflow, Required: 12})
	assert.Contains(t, out.String(), "Required: 12")

	buf := make([]byte, 8)
	buf[0] = 42
	out.Reset()
	printResult(&out, codec.ClassInternal, buf, vfs.Result{Status: status.Success, Information: 8})
	assert.Contains(t, out.String(), "IndexNumber")
	assert.Contains(t, out.String(), "42")
}

func TestSessionOverStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "meta.db")
	st, err := sqlstore.Create(path, sqlstore.Options{})
	require.NoError(t, err)
	require.NoError(t, st.Put(context.Background(), &sqlstore.FileInfoModel{Path: "a.txt", FileSize: 10}))
	require.NoError(t, st.Close())

	cfg, err := config.Parse([]byte("workers: 1"))
	require.NoError(t, err)

	s, err := openSession(cfg, "", path)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	h, closeFile, err := s.open(ctx, `\a.txt`)
	require.NoError(t, err)

	buf := make([]byte, 24)
	res := s.volume.QueryInformation(ctx, vfs.QueryCall{Handle: h, Class: codec.ClassStandard, Buffer: buf})
	require.Equal(t, status.Success, res.Status)
	fields, err := codec.Dump(codec.ClassStandard, buf[:res.Information])
	require.NoError(t, err)
	assert.Equal(t, codec.Field{Name: "EndOfFile", Value: uint64(10)}, fields[1])

	require.NoError(t, closeFile())
	_, _, err = s.open(ctx, "missing")
	assert.Equal(t, status.ObjectNameNotFound, status.Of(err))
}

func TestSessionCloseDropsOpenHandles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644))
	cfg, err := config.Parse([]byte("workers: 1"))
	require.NoError(t, err)

	s, err := openSession(cfg, root, "")
	require.NoError(t, err)
	h, _, err := s.open(context.Background(), `\a.txt`)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	_, ok := s.volume.Handle(h)
	assert.False(t, ok)
	assert.Empty(t, s.volume.Nodes())
}
