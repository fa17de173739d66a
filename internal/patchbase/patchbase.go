// Package patchbase implements the Patch Base Provider: a refcounted cache
// over the base files PatchedFromArchive directives patch against. Several
// directives in the same modlist commonly patch different targets from the
// same upstream base file, so the base is materialized once and held until
// every directive that needed it has finished applying its patch.
//
// Grounded on the teacher's SophonPatchAsset.go/SophonPatchAssetUpdate.go,
// where a patch asset tracks an OriginalFile and a TargetFile and applies a
// patch between them; generalized here from "one patch, tracked inline" to
// "many concurrent patches sharing a refcounted base", since a modlist's
// patch directives are independent units dispatched by the executor rather
// than driven one at a time.
package patchbase

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	digest "github.com/opencontainers/go-digest"

	"github.com/nettoneko/hoolamike/internal/archive"
)

// Provider materializes and refcounts patch base files, backed by an
// archive.Cache for the actual bytes.
type Provider struct {
	mu    sync.Mutex
	bases map[digest.Digest]*baseEntry
	dir   string
	cache *archive.Cache
}

type baseEntry struct {
	mu           sync.Mutex
	path         string
	size         int64
	materialized bool
	refcount     int
}

// New creates a Provider that spills materialized base files under dir,
// sourcing their bytes from cache.
func New(dir string, cache *archive.Cache) *Provider {
	return &Provider{bases: make(map[digest.Digest]*baseEntry), dir: dir, cache: cache}
}

// KeyFor computes the refcount cache key for a base file reference: the
// digest of its archive hash path. Two PatchedFromArchive directives that
// share the same ArchiveHashPath share the same base.
func KeyFor(ref archive.Ref) digest.Digest {
	parts := append([]string{ref.RootHash}, ref.Segments...)
	return digest.FromString(strings.Join(parts, "/"))
}

// Release gives back the hold taken by one successful Acquire; once every
// hold on a base is given back, its materialized copy is deleted. Calls
// after the first on the same Release are no-ops.
type Release func()

// Acquire materializes (if not already materialized) and refcounts the
// base file identified by ref, returning its local path, size, and a
// release function the caller must invoke when done patching against it.
func (p *Provider) Acquire(ctx context.Context, ref archive.Ref) (path string, size int64, release Release, err error) {
	k := KeyFor(ref)

	p.mu.Lock()
	e, ok := p.bases[k]
	if !ok {
		e = &baseEntry{}
		p.bases[k] = e
	}
	p.mu.Unlock()

	e.mu.Lock()
	if !e.materialized {
		if mErr := p.materialize(ctx, ref, e); mErr != nil {
			e.mu.Unlock()
			return "", 0, nil, mErr
		}
	}
	e.refcount++
	path, size = e.path, e.size
	e.mu.Unlock()

	return path, size, p.releaseFunc(k, e), nil
}

func (p *Provider) materialize(ctx context.Context, ref archive.Ref, e *baseEntry) error {
	f, size, err := p.cache.Open(ctx, ref)
	if err != nil {
		return fmt.Errorf("patch base: resolving %s: %w", ref.RootHash, err)
	}
	defer f.Close()

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("patch base: creating %s: %w", p.dir, err)
	}
	dst := filepath.Join(p.dir, uuid.NewString())
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("patch base: creating materialized copy: %w", err)
	}
	if _, err := io.Copy(out, f); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("patch base: materializing %s: %w", ref.RootHash, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("patch base: closing materialized copy: %w", err)
	}

	e.path, e.size, e.materialized = dst, size, true
	return nil
}

func (p *Provider) releaseFunc(k digest.Digest, e *baseEntry) Release {
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			e.mu.Lock()
			defer e.mu.Unlock()

			e.refcount--
			if e.refcount > 0 {
				return
			}
			if e.path != "" {
				os.Remove(e.path)
			}
			delete(p.bases, k)
		})
	}
}

// Len reports the number of distinct bases currently held; used by tests.
func (p *Provider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.bases)
}
