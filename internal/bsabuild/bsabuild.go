// Package bsabuild implements the Output Archive Builder (C6): it collects
// the loose files a CreateBSA directive names and assembles them into a
// single BSA (v104/v105) or BA2 (general/textures) archive, matching the
// on-disk layout the target game's archive loader expects.
//
// There is no teacher component for this: SophonClient never builds
// archives, only reads chunked downloads. The per-file streaming/session
// shape (AddFile, then Finalize) is instead grounded on the teacher's
// WriteToStreamParallel (internal/SophonAssetDownload.go), which also
// separates "accumulate per-chunk work" from "finish the whole asset";
// compression uses github.com/klauspost/compress's zlib package for BSA
// file records; BA2 entries are stored uncompressed.
package bsabuild

import (
	"fmt"
	"io"

	"github.com/nettoneko/hoolamike/internal/manifest"
)

// Builder constructs archive-build Sessions; it carries no state of its own
// beyond configuration, so one Builder can be shared across concurrently
// running CreateBSA directives.
type Builder struct{}

func NewBuilder() *Builder { return &Builder{} }

// Session accumulates one CreateBSA directive's files before Finalize
// writes the assembled archive.
type Session struct {
	directive manifest.CreateBSADirective
	bsaFiles  []pendingBSAFile
	ba2Files  []pendingBA2File
}

type pendingBSAFile struct {
	state manifest.BSAFileState
	path  string
}

type pendingBA2File struct {
	state manifest.BA2FileState
	path  string
}

// NewSession starts a build for d, whose Format decides which of
// AddBSAFile/AddBA2File the caller must use.
func (b *Builder) NewSession(d manifest.CreateBSADirective) (*Session, error) {
	switch d.Format {
	case manifest.BuildBSA:
		if d.BSAState == nil {
			return nil, fmt.Errorf("bsabuild: CreateBSA directive targeting %q has no BSA state", d.TargetPath())
		}
	case manifest.BuildBA2:
		if d.BA2State == nil {
			return nil, fmt.Errorf("bsabuild: CreateBSA directive targeting %q has no BA2 state", d.TargetPath())
		}
	default:
		return nil, fmt.Errorf("bsabuild: unknown archive build kind %d", d.Format)
	}
	return &Session{directive: d}, nil
}

// AddBSAFile registers sourcePath (a loose, already-extracted file) as the
// BSA archive's entry described by fs.
func (s *Session) AddBSAFile(fs manifest.BSAFileState, sourcePath string) error {
	if s.directive.Format != manifest.BuildBSA {
		return fmt.Errorf("bsabuild: session is building %v, not a BSA", s.directive.Format)
	}
	s.bsaFiles = append(s.bsaFiles, pendingBSAFile{state: fs, path: sourcePath})
	return nil
}

// AddBA2File registers sourcePath as the BA2 archive's entry described by
// fs (either a plain BA2File or a chunked BA2DX10Entry texture).
func (s *Session) AddBA2File(fs manifest.BA2FileState, sourcePath string) error {
	if s.directive.Format != manifest.BuildBA2 {
		return fmt.Errorf("bsabuild: session is building %v, not a BA2", s.directive.Format)
	}
	s.ba2Files = append(s.ba2Files, pendingBA2File{state: fs, path: sourcePath})
	return nil
}

// Finalize writes the assembled archive to w.
func (s *Session) Finalize(w io.Writer) error {
	switch s.directive.Format {
	case manifest.BuildBSA:
		return writeBSA(w, *s.directive.BSAState, s.bsaFiles)
	case manifest.BuildBA2:
		return writeBA2(w, *s.directive.BA2State, s.ba2Files)
	default:
		return fmt.Errorf("bsabuild: unknown archive build kind %d", s.directive.Format)
	}
}
