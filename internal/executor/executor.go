// Package executor implements the Directive Executor: given a planner.Plan,
// it runs each phase's directives concurrently, dispatching by kind to a
// per-kind handler, and aggregates per-directive outcomes into a
// report.InstallReport.
//
// The phase concurrency model and first-error handling are grounded on the
// teacher's SophonAssetDownload.go WriteToStreamParallel/SophonAssetDiff.go
// DownloadDiffChunks, which bound a hand-rolled semaphore+WaitGroup and
// cancel the shared context on first error. Here that's replaced by
// sourcegraph/conc's pool, and the "cancel everything on first error" part
// is narrowed to "cancel everything on first *fatal* error" (§7: a
// recoverable per-directive error is recorded and the phase continues).
package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/nettoneko/hoolamike/internal/archive"
	"github.com/nettoneko/hoolamike/internal/bsabuild"
	"github.com/nettoneko/hoolamike/internal/capability"
	"github.com/nettoneko/hoolamike/internal/installerr"
	"github.com/nettoneko/hoolamike/internal/manifest"
	"github.com/nettoneko/hoolamike/internal/patchbase"
	"github.com/nettoneko/hoolamike/internal/planner"
	"github.com/nettoneko/hoolamike/internal/report"
	"github.com/nettoneko/hoolamike/internal/supervisor"
)

// Deps bundles the executor's collaborators: the archive cache (C2), the
// patch base provider (C3), the output archive builder (C6), the resource
// supervisor (C7), and the capability collaborators the spec treats as
// external (texture transcoding, patch application, hashing, variable
// substitution).
type Deps struct {
	Archive     *archive.Cache
	PatchBases  *patchbase.Provider
	BSABuilder  *bsabuild.Builder
	Supervisor  *supervisor.Supervisor
	Hasher      capability.Hasher
	Texture     capability.TextureTranscoder
	Patcher     capability.OctodiffApplier
	Variables   map[string]string // Variable Table for RemappedInlineFile $(name) substitution (§9)
	Bundle      BlobSource
	InstallRoot string
	Log         zerolog.Logger

	// SkipVerifyAndDownloads mirrors plan.SkipVerifyAndDownloads (set by Run,
	// not by callers constructing Deps directly) — when true, writeVerified
	// skips the post-write size/hash check. Root archives are still resolved
	// and verified through the Downloader either way.
	SkipVerifyAndDownloads bool
}

// BlobSource opens a modlist bundle's auxiliary entries by SourceDataID;
// satisfied by *manifest.Bundle.
type BlobSource interface {
	OpenBlob(sourceDataID string) (io.ReadCloser, error)
}

// Run executes every phase of plan in order, returning an InstallReport
// that is always non-nil even when phases failed, so the caller can inspect
// per-directive outcomes regardless of the top-level error.
func Run(ctx context.Context, plan *planner.Plan, deps Deps) (*report.InstallReport, error) {
	rep := report.New()
	deps.SkipVerifyAndDownloads = plan.SkipVerifyAndDownloads

	for _, phase := range plan.Phases {
		if err := deps.Archive.Preheat(ctx, phase.RequiredArchives); err != nil {
			rep.RecordFatal(phase.Kind.String(), err)
			return rep, err
		}

		deps.Supervisor.Progress().StartPhase(phase.Kind.String(), uint32(len(phase.Directives)))

		fatalErr := runPhase(ctx, phase, deps, rep)
		if fatalErr != nil {
			return rep, fatalErr
		}
	}
	return rep, nil
}

func runPhase(ctx context.Context, phase planner.Phase, deps Deps, rep *report.InstallReport) error {
	phaseCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := pool.New().WithContext(phaseCtx).WithCancelOnError()
	var fatalMu sync.Mutex
	var fatal error

	for i, d := range phase.Directives {
		i, d := i, d
		p.Go(func(ctx context.Context) error {
			err := dispatch(ctx, phase.Kind, d, deps)
			if err == nil {
				deps.Supervisor.Progress().MarkDone(phase.Kind.String(), uint32(i))
				rep.RecordSuccess(phase.Kind.String())
				return nil
			}
			rep.RecordFailure(phase.Kind.String(), d.TargetPath(), err)
			if installerr.IsFatal(err) {
				fatalMu.Lock()
				if fatal == nil {
					fatal = err
				}
				fatalMu.Unlock()
				return err
			}
			// recoverable: this directive failed but siblings keep running.
			return nil
		})
	}
	_ = p.Wait()

	fatalMu.Lock()
	defer fatalMu.Unlock()
	return fatal
}

func dispatch(ctx context.Context, kind manifest.DirectiveKind, d manifest.Directive, deps Deps) error {
	switch kind {
	case manifest.KindInlineFile:
		return handleInlineFile(ctx, d.(manifest.InlineFileDirective), deps, false)
	case manifest.KindRemappedInlineFile:
		return handleRemappedInlineFile(ctx, d.(manifest.RemappedInlineFileDirective), deps)
	case manifest.KindFromArchive:
		return handleFromArchive(ctx, d.(manifest.FromArchiveDirective), deps)
	case manifest.KindPatchedFromArchive:
		return handlePatchedFromArchive(ctx, d.(manifest.PatchedFromArchiveDirective), deps)
	case manifest.KindTransformedTexture:
		return handleTransformedTexture(ctx, d.(manifest.TransformedTextureDirective), deps)
	case manifest.KindCreateBSA:
		return handleCreateBSA(ctx, d.(manifest.CreateBSADirective), deps)
	default:
		return fmt.Errorf("executor: no handler registered for directive kind %s", kind)
	}
}

// targetAbsPath joins a directive's declared target with the install root,
// rejecting any path that would escape it.
func targetAbsPath(root, target string) (string, error) {
	clean := filepath.Clean(filepath.Join(root, target))
	if !strings.HasPrefix(clean, filepath.Clean(root)+string(filepath.Separator)) && clean != filepath.Clean(root) {
		return "", fmt.Errorf("target path %q escapes install root", target)
	}
	return clean, nil
}

// atomicWrite streams src to a temp file beside dest, syncs, then renames
// it over dest — the teacher's write-temp-then-rename pattern used
// throughout SophonAsset*.go's chunk writers, generalized from one chunk
// within a pre-sized file to one whole target file.
func atomicWrite(dest string, write func(*os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return installerr.NewIoError("mkdir", "other", err)
	}
	tmp := dest + ".hoolamike-" + uuid.NewString() + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return installerr.NewIoError("create-temp", classifyIOErr(err), err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return installerr.NewIoError("sync", classifyIOErr(err), err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return installerr.NewIoError("close", classifyIOErr(err), err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return installerr.NewIoError("rename", classifyIOErr(err), err)
	}
	return nil
}

func classifyIOErr(err error) string {
	if os.IsPermission(err) {
		return "permission-denied"
	}
	if strings.Contains(err.Error(), "no space left") {
		return "no-space"
	}
	return "other"
}
