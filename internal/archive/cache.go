// Package archive implements the Archive Access Layer: a content-indexed
// cache over root archives and the nested archives they may contain,
// resolving an ArchiveHashPath to a local, seekable byte source on demand.
//
// Grounded on the teacher's internal/SophonChunksBranch.go (branch lookup by
// matching fields, HTTP-fetched and cached) and internal/ChunkStream.go
// (bounded stream view); generalized from "one branch of one game's CDN
// manifest" to "one node in an arbitrarily nested archive tree", and from an
// HTTP-only source to any capability.Downloader.
package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/armon/go-radix"
	"github.com/google/uuid"

	"github.com/nettoneko/hoolamike/internal/capability"
	"github.com/nettoneko/hoolamike/internal/retry"
)

// DiskBudget is the subset of the Progress & Budget Supervisor's disk
// reservation protocol the cache needs. Declared locally (rather than
// imported from the supervisor package) so archive has no dependency on it;
// the supervisor's concrete type satisfies this interface structurally.
type DiskBudget interface {
	Reserve(ctx context.Context, bytes int64) (release func(), err error)
}

type noBudget struct{}

func (noBudget) Reserve(context.Context, int64) (func(), error) { return func() {}, nil }

// SpeedLimiter is the subset of the supervisor's throughput-limiting
// protocol the cache needs when spilling a nested archive entry to disk.
// Declared locally for the same reason as DiskBudget.
type SpeedLimiter interface {
	ThrottledCopy(ctx context.Context, dst io.Writer, src io.Reader) (int64, error)
}

type unthrottled struct{}

func (unthrottled) ThrottledCopy(_ context.Context, dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, src)
}

// Cache is the Archive Access Layer's public handle: one per install run,
// rooted at a single spill directory.
type Cache struct {
	arena      *arena
	spillDir   string
	downloader capability.Downloader
	factory    capability.ArchiveReaderFactory
	budget     DiskBudget
	speed      SpeedLimiter
}

// Option configures a Cache at construction.
type Option func(*Cache)

// WithDiskBudget wires the cache's extraction spills through a disk budget
// reservation (§5: disk-budget permits).
func WithDiskBudget(b DiskBudget) Option {
	return func(c *Cache) { c.budget = b }
}

// WithSpeedLimiter wires the cache's extraction spills through a shared
// throughput limiter (§10: --download-speed-limit applies uniformly to
// every component that moves archive bytes, not only a network Downloader).
func WithSpeedLimiter(s SpeedLimiter) Option {
	return func(c *Cache) { c.speed = s }
}

// New creates a Cache that spills extracted nested-archive entries under
// spillDir, which must already exist.
func New(spillDir string, downloader capability.Downloader, factory capability.ArchiveReaderFactory, opts ...Option) *Cache {
	c := &Cache{
		arena:      newArena(),
		spillDir:   spillDir,
		downloader: downloader,
		factory:    factory,
		budget:     noBudget{},
		speed:      unthrottled{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Ref identifies one resolution target: a root archive's hash and
// declared name (needed by the Downloader to locate it), plus zero or more
// nested path segments beneath it.
type Ref struct {
	RootHash string
	RootName string
	Segments []string
}

// Open resolves ref to a local, seekable, closing read handle. Callers that
// only need the root archive pass Segments as nil.
func (c *Cache) Open(ctx context.Context, ref Ref) (*os.File, int64, error) {
	n, err := c.resolve(ctx, ref.RootHash, ref.RootName, ref.Segments)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(n.path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening resolved node %s: %w", n.path, err)
	}
	return f, n.size, nil
}

// Preheat resolves every distinct root hash in refs ahead of time, so later
// Open calls for nested segments avoid a cold download in the critical
// path. Root-level misses only; nested extraction still happens lazily.
func (c *Cache) Preheat(ctx context.Context, refs []Ref) error {
	seen := make(map[string]string, len(refs))
	for _, r := range refs {
		seen[r.RootHash] = r.RootName
	}
	var firstErr error
	for hash, name := range seen {
		if _, err := c.resolve(ctx, hash, name, nil); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Cache) resolve(ctx context.Context, rootHash, rootName string, segments []string) (*node, error) {
	k := keyFor(rootHash, nil)
	root, err := c.resolveOne(ctx, k, func() (*node, error) {
		// A caller-supplied Downloader may be network-backed, so a single
		// resolve failure doesn't doom the whole root (§7: recoverable
		// per-directive errors shouldn't abort the phase on a transient blip).
		path, err := retry.Do(ctx, retry.Options{Attempts: 3, Timeout: 30 * time.Second}, func(attemptCtx context.Context) (string, error) {
			return c.downloader.Resolve(attemptCtx, rootHash, rootName)
		})
		if err != nil {
			return nil, fmt.Errorf("resolving root archive %s (%s): %w", rootName, rootHash, err)
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat root archive %s: %w", path, err)
		}
		return &node{path: path, size: info.Size(), formatTag: detectFormatTag(path)}, nil
	})
	if err != nil {
		return nil, err
	}

	cur := root
	prefix := make([]string, 0, len(segments))
	for _, seg := range segments {
		prefix = append(prefix, seg)
		segKey := keyFor(rootHash, prefix)
		parent := cur
		next, err := c.resolveOne(ctx, segKey, func() (*node, error) {
			return c.extract(ctx, parent, seg)
		})
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// resolveOne is the singleflight-guarded "get or compute" step shared by
// root resolution and nested extraction.
func (c *Cache) resolveOne(ctx context.Context, k key, compute func() (*node, error)) (*node, error) {
	if n, ok := c.arena.get(k); ok {
		return n, nil
	}
	wg, owner := c.arena.claim(k)
	if !owner {
		wg.Wait()
		if n, ok := c.arena.get(k); ok {
			return n, nil
		}
		return nil, fmt.Errorf("archive cache: resolution of %v failed in another goroutine", k)
	}
	defer c.arena.done(k)

	n, err := compute()
	if err != nil {
		return nil, err
	}
	c.arena.put(k, n)
	return n, nil
}

// extract opens parent with the capability factory, locates seg among its
// entries (exact match first, then case-insensitive fallback per §9), and
// spills the entry's bytes to a fresh file under spillDir.
func (c *Cache) extract(ctx context.Context, parent *node, seg string) (*node, error) {
	f, err := os.Open(parent.path)
	if err != nil {
		return nil, fmt.Errorf("opening node %s for extraction: %w", parent.path, err)
	}
	defer f.Close()

	reader, err := c.factory.OpenFormat(parent.formatTag, f, parent.size)
	if err != nil {
		return nil, fmt.Errorf("opening %s archive %s: %w", parent.formatTag, parent.path, err)
	}
	defer reader.Close()

	entries, err := reader.ListEntries()
	if err != nil {
		return nil, fmt.Errorf("listing entries of %s: %w", parent.path, err)
	}
	name, err := matchEntry(entries, seg)
	if err != nil {
		return nil, err
	}

	rc, err := reader.ReadEntry(name)
	if err != nil {
		return nil, fmt.Errorf("reading entry %q of %s: %w", name, parent.path, err)
	}
	defer rc.Close()

	spillPath := filepath.Join(c.spillDir, uuid.NewString())
	out, err := os.OpenFile(spillPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating spill file for %q: %w", name, err)
	}
	n, err := c.speed.ThrottledCopy(ctx, out, rc)
	closeErr := out.Close()
	if err != nil {
		os.Remove(spillPath)
		return nil, fmt.Errorf("spilling entry %q: %w", name, err)
	}
	if closeErr != nil {
		os.Remove(spillPath)
		return nil, fmt.Errorf("closing spill file for %q: %w", name, closeErr)
	}

	// ArchiveReader exposes no entry size ahead of ReadEntry, so the
	// budget is reserved against the real byte count once the spill is
	// done. The reservation is given back when extract returns: it is not
	// held for as long as the spill file exists, so the total size of
	// spilled entries is not capped by the budget.
	release, err := c.budget.Reserve(ctx, n)
	if err != nil {
		os.Remove(spillPath)
		return nil, fmt.Errorf("reserving disk budget for %q: %w", name, err)
	}
	defer release()

	return &node{path: spillPath, size: n, formatTag: detectFormatTag(spillPath)}, nil
}

// matchEntry finds seg among entries, preferring an exact match and falling
// back to a case-insensitive one (§9: case-insensitive lookup is a
// fallback-only mechanism, never global case-folding).
func matchEntry(entries []string, seg string) (string, error) {
	for _, e := range entries {
		if e == seg {
			return e, nil
		}
	}
	t := radix.New()
	for _, e := range entries {
		t.Insert(strings.ToLower(e), e)
	}
	if v, ok := t.Get(strings.ToLower(seg)); ok {
		return v.(string), nil
	}
	return "", fmt.Errorf("archive cache: entry %q not found (case-insensitive fallback also failed)", seg)
}

// detectFormatTag sniffs a local file's archive format from its leading
// bytes, falling back to its extension. The result is only ever consumed by
// capability.ArchiveReaderFactory, which owns the actual format-specific
// dispatch chain (native library, then 7z fallback library, then 7z CLI).
func detectFormatTag(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return extTag(path)
	}
	defer f.Close()
	var magic [8]byte
	n, _ := f.Read(magic[:])
	switch {
	case n >= 4 && string(magic[:4]) == "PK\x03\x04":
		return "zip"
	case n >= 6 && string(magic[:6]) == "7z\xBC\xAF\x27\x1C":
		return "7z"
	case n >= 4 && string(magic[:4]) == "Rar!":
		return "rar"
	case n >= 3 && string(magic[:3]) == "BSA":
		return bsaFormatTag(magic)
	case n >= 4 && string(magic[:4]) == "BTDX":
		return "ba2"
	default:
		return extTag(path)
	}
}

func bsaFormatTag(magic [8]byte) string {
	// version field follows the 4-byte "BSA\x00" magic; v104 is Skyrim LE,
	// v105 Skyrim SE/VR (§4.6).
	version := uint32(magic[4]) | uint32(magic[5])<<8 | uint32(magic[6])<<16 | uint32(magic[7])<<24
	if version == 105 {
		return "bsa105"
	}
	return "bsa104"
}

func extTag(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		return "zip"
	case ".7z":
		return "7z"
	case ".rar":
		return "rar"
	case ".bsa":
		return "bsa104"
	case ".ba2":
		return "ba2"
	default:
		return "7z" // widest native-to-fallback dispatch chain per §4.2
	}
}
