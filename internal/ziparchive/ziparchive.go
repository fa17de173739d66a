// Package ziparchive is the built-in capability.ArchiveReaderFactory
// implementation for the one nested-archive format this engine can always
// read without an external collaborator: zip, via the standard library's
// archive/zip (the same reasoning SPEC_FULL.md §6 gives for the modlist
// bundle container itself). 7z/rar/BSA/BA2 extraction are the out-of-scope
// external collaborators §6 describes; callers that need them compose this
// factory with another capability.ArchiveReaderFactory and dispatch on
// formatTag themselves.
package ziparchive

import (
	"archive/zip"
	"fmt"
	"io"

	"github.com/nettoneko/hoolamike/internal/capability"
)

// Factory opens "zip"-tagged sources; any other formatTag is an error.
type Factory struct{}

func New() Factory { return Factory{} }

func (Factory) OpenFormat(formatTag string, src io.ReaderAt, size int64) (capability.ArchiveReader, error) {
	if formatTag != "zip" {
		return nil, fmt.Errorf("ziparchive: unsupported format %q", formatTag)
	}
	zr, err := zip.NewReader(src, size)
	if err != nil {
		return nil, fmt.Errorf("ziparchive: opening zip: %w", err)
	}
	return &reader{zr: zr}, nil
}

type reader struct {
	zr *zip.Reader
}

func (r *reader) ListEntries() ([]string, error) {
	names := make([]string, 0, len(r.zr.File))
	for _, f := range r.zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		names = append(names, f.Name)
	}
	return names, nil
}

func (r *reader) ReadEntry(name string) (io.ReadCloser, error) {
	for _, f := range r.zr.File {
		if f.Name == name {
			return f.Open()
		}
	}
	return nil, fmt.Errorf("ziparchive: no entry %q", name)
}

func (r *reader) Close() error { return nil }

// Chain composes factory with a fallback used for any formatTag factory
// doesn't itself recognize, implementing §4.2's dispatch chain (native
// library first, then a fallback) at the capability-composition level.
type Chain struct {
	Primary  capability.ArchiveReaderFactory
	Fallback capability.ArchiveReaderFactory
}

func (c Chain) OpenFormat(formatTag string, src io.ReaderAt, size int64) (capability.ArchiveReader, error) {
	r, err := c.Primary.OpenFormat(formatTag, src, size)
	if err == nil {
		return r, nil
	}
	if c.Fallback == nil {
		return nil, err
	}
	return c.Fallback.OpenFormat(formatTag, src, size)
}
