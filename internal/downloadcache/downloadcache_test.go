package downloadcache

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nettoneko/hoolamike/internal/hasher"
)

func TestResolveVerifiesHashByName(t *testing.T) {
	dir := t.TempDir()
	content := []byte("archive-bytes")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mod.zip"), content, 0o644))

	h, err := hasher.New().XXHash64Base64(bytesReader(content))
	require.NoError(t, err)

	c := New(dir, nil)
	p, err := c.Resolve(context.Background(), h, "mod.zip")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "mod.zip"), p)
}

func TestResolveFallsBackToHashAsFilename(t *testing.T) {
	dir := t.TempDir()
	content := []byte("archive-bytes-2")
	h, err := hasher.New().XXHash64Base64(bytesReader(content))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, h), content, 0o644))

	c := New(dir, nil)
	p, err := c.Resolve(context.Background(), h, "unresolved-name.zip")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, h), p)
}

func TestResolveRejectsHashMismatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mod.zip"), []byte("wrong bytes"), 0o644))

	c := New(dir, nil)
	_, err := c.Resolve(context.Background(), "expected-hash-does-not-match", "mod.zip")
	require.Error(t, err)
}

func TestResolveMissing(t *testing.T) {
	c := New(t.TempDir(), nil)
	_, err := c.Resolve(context.Background(), "h", "missing.zip")
	require.Error(t, err)
}

type bytesReaderT struct {
	b []byte
	i int
}

func bytesReader(b []byte) *bytesReaderT { return &bytesReaderT{b: b} }

func (r *bytesReaderT) Read(p []byte) (int, error) {
	if r.i >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.i:])
	r.i += n
	return n, nil
}
