// Package capability defines the narrow interfaces the directive execution
// engine requires of its external collaborators (§6: ArchiveReaderFactory,
// TextureTranscoder, OctodiffApplier, Hasher, Downloader). The engine only
// ever depends on these interfaces, never on a concrete format library, so
// the out-of-scope collaborators named in §1 (7-zip extraction, DDS
// transcoding, octodiff patch application, the Nexus/nxm:// downloader) can
// be swapped or stubbed without touching C1–C7.
package capability

import (
	"context"
	"io"
)

// ArchiveReader lists and opens the entries of one opened archive.
type ArchiveReader interface {
	ListEntries() ([]string, error)
	ReadEntry(name string) (io.ReadCloser, error)
	Close() error
}

// ArchiveReaderFactory opens an archive of a detected format tag from a
// random-access byte source. formatTag is one of "zip", "7z", "rar",
// "bsa104", "bsa105", "ba2" (§4.2 format dispatch).
type ArchiveReaderFactory interface {
	OpenFormat(formatTag string, src io.ReaderAt, size int64) (ArchiveReader, error)
}

// TextureSpec describes a TransformedTexture directive's declared target.
type TextureSpec struct {
	Width    uint32
	Height   uint32
	Format   string // DXGI format name, e.g. "BC7_UNORM"
	MipCount uint32
	Filter   string
	Quality  string // "fastest" by default per §9 design notes
}

// TextureTranscoder re-encodes a DDS image to a new format/size/mip count.
type TextureTranscoder interface {
	Transcode(in io.Reader, spec TextureSpec) (io.Reader, error)
}

// OctodiffApplier applies an octodiff-style binary patch to a base stream.
type OctodiffApplier interface {
	Apply(base io.ReadSeeker, patch io.Reader, out io.Writer) error
}

// Hasher computes the engine's canonical content hash: xxhash-64, encoded as
// base64 of its little-endian byte representation (§3, grounded on
// original_source's to_base_64_from_u64).
type Hasher interface {
	XXHash64Base64(r io.Reader) (string, error)
}

// Downloader resolves an ArchiveDescriptor to a local file on disk. Not part
// of the core (§6); the core only ever reads the resulting path.
type Downloader interface {
	Resolve(ctx context.Context, hash, name string) (path string, err error)
}
