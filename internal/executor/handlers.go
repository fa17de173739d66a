package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/nettoneko/hoolamike/internal/archive"
	"github.com/nettoneko/hoolamike/internal/capability"
	"github.com/nettoneko/hoolamike/internal/installerr"
	"github.com/nettoneko/hoolamike/internal/manifest"
)

// handleInlineFile writes an embedded blob straight to its target.
func handleInlineFile(ctx context.Context, d manifest.InlineFileDirective, deps Deps, _ bool) error {
	return writeInlineBlob(d.TargetPath(), d.SourceDataID, d.ExpectedSize(), d.ExpectedHash(), deps, false)
}

// handleRemappedInlineFile is wire-identical to InlineFile, but its bytes
// additionally get $(name) tokens substituted from the Variable Table
// before being written (§4.1/§9).
func handleRemappedInlineFile(ctx context.Context, d manifest.RemappedInlineFileDirective, deps Deps) error {
	return writeInlineBlob(d.TargetPath(), d.SourceDataID, d.ExpectedSize(), d.ExpectedHash(), deps, true)
}

func writeInlineBlob(targetPath, sourceDataID string, expectedSize uint64, expectedHash string, deps Deps, remap bool) error {
	dest, err := targetAbsPath(deps.InstallRoot, targetPath)
	if err != nil {
		return err
	}
	rc, err := deps.Bundle.OpenBlob(sourceDataID)
	if err != nil {
		return installerr.NewManifestError("inline file blob "+sourceDataID, err)
	}
	defer rc.Close()

	var src io.Reader = rc
	// RemappedInlineFile's declared Hash/Size describe the pre-substitution
	// blob; once $(name) tokens are replaced the written bytes generally no
	// longer match either, so (matching remapped_inline_file.rs, which has
	// no post-write hash check at all) this path never verifies regardless
	// of --skip-verify-and-downloads.
	verify := !deps.SkipVerifyAndDownloads
	if remap {
		data, err := io.ReadAll(rc)
		if err != nil {
			return installerr.NewIoError("read-blob", "other", err)
		}
		src = bytesReader(substituteVariables(data, deps.Variables))
		verify = false
	}

	return writeVerified(dest, src, expectedSize, expectedHash, verify, deps.Hasher)
}

var variableToken = regexp.MustCompile(`\$\(([A-Za-z0-9_.-]+)\)`)

// substituteVariables replaces every $(name) token with the Variable
// Table's value, case-sensitively (§9 Open Question: token substitution is
// case-sensitive, not case-folded).
func substituteVariables(data []byte, vars map[string]string) []byte {
	return variableToken.ReplaceAllFunc(data, func(tok []byte) []byte {
		m := variableToken.FindSubmatch(tok)
		if v, ok := vars[string(m[1])]; ok {
			return []byte(v)
		}
		return tok
	})
}

func handleFromArchive(ctx context.Context, d manifest.FromArchiveDirective, deps Deps) error {
	dest, err := targetAbsPath(deps.InstallRoot, d.TargetPath())
	if err != nil {
		return err
	}
	ref, err := refFor(d.ArchiveHashPath)
	if err != nil {
		return err
	}
	f, _, err := deps.Archive.Open(ctx, ref)
	if err != nil {
		return installerr.NewArchiveMissError(ref.Segments, err)
	}
	defer f.Close()
	return writeVerified(dest, f, d.ExpectedSize(), d.ExpectedHash(), !deps.SkipVerifyAndDownloads, deps.Hasher)
}

func handlePatchedFromArchive(ctx context.Context, d manifest.PatchedFromArchiveDirective, deps Deps) error {
	dest, err := targetAbsPath(deps.InstallRoot, d.TargetPath())
	if err != nil {
		return err
	}
	ref, err := refFor(d.ArchiveHashPath)
	if err != nil {
		return err
	}

	if deps.Patcher == nil {
		return installerr.NewPatchError(d.TargetPath(), fmt.Errorf("no OctodiffApplier configured"))
	}

	basePath, _, release, err := deps.PatchBases.Acquire(ctx, ref)
	if err != nil {
		return installerr.NewArchiveMissError(ref.Segments, err)
	}
	defer release()

	base, err := os.Open(basePath)
	if err != nil {
		return installerr.NewIoError("open-patch-base", "other", err)
	}
	defer base.Close()

	blobID := d.PatchID
	if d.SourceDataID != nil {
		blobID = *d.SourceDataID
	}
	patch, err := deps.Bundle.OpenBlob(blobID)
	if err != nil {
		return installerr.NewManifestError("patch blob "+blobID, err)
	}
	defer patch.Close()

	pr, pw := io.Pipe()
	go func() {
		err := deps.Patcher.Apply(base, patch, pw)
		pw.CloseWithError(err)
	}()

	if err := writeVerified(dest, pr, d.ExpectedSize(), d.ExpectedHash(), !deps.SkipVerifyAndDownloads, deps.Hasher); err != nil {
		return installerr.NewPatchError(d.TargetPath(), err)
	}
	return nil
}

func handleTransformedTexture(ctx context.Context, d manifest.TransformedTextureDirective, deps Deps) error {
	dest, err := targetAbsPath(deps.InstallRoot, d.TargetPath())
	if err != nil {
		return err
	}
	ref, err := refFor(d.ArchiveHashPath)
	if err != nil {
		return err
	}
	f, _, err := deps.Archive.Open(ctx, ref)
	if err != nil {
		return installerr.NewArchiveMissError(ref.Segments, err)
	}
	defer f.Close()

	if deps.Texture == nil {
		return installerr.NewTextureError(d.TargetPath(), fmt.Errorf("no TextureTranscoder configured"))
	}
	out, err := deps.Texture.Transcode(f, capability.TextureSpec{
		Width:    d.ImageState.Width,
		Height:   d.ImageState.Height,
		Format:   d.ImageState.Format,
		MipCount: d.ImageState.MipLevels,
		Quality:  "fastest",
	})
	if err != nil {
		return installerr.NewTextureError(d.TargetPath(), err)
	}
	if err := writeVerified(dest, out, d.ExpectedSize(), d.ExpectedHash(), !deps.SkipVerifyAndDownloads, deps.Hasher); err != nil {
		return installerr.NewTextureError(d.TargetPath(), err)
	}
	return nil
}

// stagingDirName is the well-known subtree under the install root where a
// CreateBSA directive's sub-files live, matching the upstream convention
// (original_source's wabbajack_consts::BSACREATION_DIR /
// create_bsa.rs's "TEMP_BSA_FILES"). Sub-files are not special: they are
// ordinary InlineFile/FromArchive/... directives elsewhere in the modlist
// whose declared `To` targets stagingDirName/<TempID>/<path> — per §4.4's
// canonical phase ordering, those phases run (and write their bytes) before
// the create-bsa phase does, so by the time handleCreateBSA runs, every
// sub-file it names has already been materialized by its own standalone
// handler.
const stagingDirName = "TEMP_BSA_FILES"

func handleCreateBSA(ctx context.Context, d manifest.CreateBSADirective, deps Deps) error {
	dest, err := targetAbsPath(deps.InstallRoot, d.TargetPath())
	if err != nil {
		return err
	}
	staging := filepath.Join(deps.InstallRoot, stagingDirName, d.TempID)

	session, err := deps.BSABuilder.NewSession(d)
	if err != nil {
		return err
	}
	switch d.Format {
	case manifest.BuildBSA:
		for _, fs := range d.BSAFileStates {
			if err := session.AddBSAFile(fs, filepath.Join(staging, fs.Path)); err != nil {
				return err
			}
		}
	case manifest.BuildBA2:
		for _, fs := range d.BA2FileStates {
			path := ""
			if fs.File != nil {
				path = fs.File.Path
			} else if fs.DX10 != nil {
				path = fs.DX10.Path
			}
			if err := session.AddBA2File(fs, filepath.Join(staging, path)); err != nil {
				return err
			}
		}
	}

	if err := atomicWrite(dest, func(out *os.File) error {
		return session.Finalize(out)
	}); err != nil {
		return err
	}

	// The staging tree is build scratch, not a real install output; drop it
	// now that its bytes are sealed into dest.
	_ = os.RemoveAll(staging)
	return nil
}

func refFor(hp manifest.ArchiveHashPath) (archive.Ref, error) {
	if hp.RootHash() == "" {
		return archive.Ref{}, fmt.Errorf("empty ArchiveHashPath")
	}
	return archive.Ref{RootHash: hp.RootHash(), Segments: hp.NestedSegments()}, nil
}

type byteSliceReader struct {
	b []byte
	i int
}

func bytesReader(b []byte) io.Reader { return &byteSliceReader{b: b} }

func (r *byteSliceReader) Read(p []byte) (int, error) {
	if r.i >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.i:])
	r.i += n
	return n, nil
}

// writeVerified streams src to dest atomically, then — unless verify is
// false (either --skip-verify-and-downloads was requested, or the directive
// kind has no meaningful post-write check to begin with, e.g.
// RemappedInlineFile) — verifies its size and hash against the directive's
// declared values: §7's two-stage verification, size first since it's free,
// hash second since it's expensive. Grounded on the teacher's
// download_cache.rs-equivalent pattern already captured for the download
// cache, applied here to the written target instead of a cached download.
func writeVerified(dest string, src io.Reader, expectedSize uint64, expectedHash string, verify bool, hasher capability.Hasher) error {
	var written int64
	err := atomicWrite(dest, func(out *os.File) error {
		n, err := io.Copy(out, src)
		written = n
		if err != nil {
			return installerr.NewIoError("write", "other", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !verify {
		return nil
	}
	if uint64(written) != expectedSize {
		return installerr.NewChecksumMismatch(dest, fmt.Sprintf("%d bytes", expectedSize), fmt.Sprintf("%d bytes", written))
	}

	f, err := os.Open(dest)
	if err != nil {
		return installerr.NewIoError("reopen-for-verify", "other", err)
	}
	defer f.Close()
	actual, err := hasher.XXHash64Base64(f)
	if err != nil {
		return installerr.NewIoError("hash", "other", err)
	}
	if actual != expectedHash {
		return installerr.NewChecksumMismatch(dest, expectedHash, actual)
	}
	return nil
}
