package ziparchive

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nettoneko/hoolamike/internal/capability"
)

func buildZip(t *testing.T, files map[string]string) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return bytes.NewReader(buf.Bytes())
}

func TestFactoryListsAndReadsEntries(t *testing.T) {
	src := buildZip(t, map[string]string{"a.txt": "hello", "dir/b.txt": "world"})

	r, err := New().OpenFormat("zip", src, int64(src.Len()))
	require.NoError(t, err)
	defer r.Close()

	entries, err := r.ListEntries()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a.txt", "dir/b.txt"}, entries)

	rc, err := r.ReadEntry("dir/b.txt")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "world", string(data))
}

func TestFactoryRejectsUnknownFormat(t *testing.T) {
	src := buildZip(t, nil)
	_, err := New().OpenFormat("7z", src, int64(src.Len()))
	require.Error(t, err)
}

var errUnsupported = &unsupportedErr{}

type unsupportedErr struct{}

func (*unsupportedErr) Error() string { return "unsupported" }

type failingFactory struct{}

func (failingFactory) OpenFormat(string, io.ReaderAt, int64) (capability.ArchiveReader, error) {
	return nil, errUnsupported
}

func TestChainFallsBackOnPrimaryFailure(t *testing.T) {
	src := buildZip(t, map[string]string{"a.txt": "x"})
	chain := Chain{Primary: failingFactory{}, Fallback: New()}
	r, err := chain.OpenFormat("zip", src, int64(src.Len()))
	require.NoError(t, err)
	defer r.Close()
}
