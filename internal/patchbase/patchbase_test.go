package patchbase

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nettoneko/hoolamike/internal/archive"
)

type fakeDownloader struct{ path string }

func (f *fakeDownloader) Resolve(context.Context, string, string) (string, error) {
	return f.path, nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := t.TempDir() + "/base.bin"
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestAcquireReleaseRefcounting(t *testing.T) {
	rootPath := writeFile(t, "base-bytes")
	dl := &fakeDownloader{path: rootPath}
	cache := archive.New(t.TempDir(), dl, nil)
	p := New(t.TempDir(), cache)

	ref := archive.Ref{RootHash: "h1", RootName: "base.bin"}

	path1, size1, rel1, err := p.Acquire(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, int64(len("base-bytes")), size1)
	require.FileExists(t, path1)
	require.Equal(t, 1, p.Len())

	path2, _, rel2, err := p.Acquire(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, path1, path2, "second Acquire for the same ref must reuse the materialized base")
	require.Equal(t, 1, p.Len())

	rel1()
	require.FileExists(t, path1, "base must stay on disk while a refcount remains")
	require.Equal(t, 1, p.Len())

	rel2()
	require.NoFileExists(t, path1, "base must be removed once the refcount reaches zero")
	require.Equal(t, 0, p.Len())
}

func TestAcquireDistinctRefsGetDistinctBases(t *testing.T) {
	rootPath := writeFile(t, "bytes")
	dl := &fakeDownloader{path: rootPath}
	cache := archive.New(t.TempDir(), dl, nil)
	p := New(t.TempDir(), cache)

	_, _, rel1, err := p.Acquire(context.Background(), archive.Ref{RootHash: "h1", RootName: "a"})
	require.NoError(t, err)
	_, _, rel2, err := p.Acquire(context.Background(), archive.Ref{RootHash: "h2", RootName: "b"})
	require.NoError(t, err)

	require.Equal(t, 2, p.Len())
	rel1()
	rel2()
	require.Equal(t, 0, p.Len())
}
