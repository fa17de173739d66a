// Package install is the directive execution engine's top-level entry
// point, wiring the Manifest Model (C1), Archive Access Layer (C2), Patch
// Base Provider (C3), Directive Planner (C4), Directive Executor (C5),
// Output Archive Builder (C6), and Progress & Budget Supervisor (C7)
// together into the single Install call §6 exposes.
package install

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog"

	"github.com/nettoneko/hoolamike/internal/archive"
	"github.com/nettoneko/hoolamike/internal/bsabuild"
	"github.com/nettoneko/hoolamike/internal/capability"
	"github.com/nettoneko/hoolamike/internal/downloadcache"
	"github.com/nettoneko/hoolamike/internal/executor"
	"github.com/nettoneko/hoolamike/internal/hasher"
	"github.com/nettoneko/hoolamike/internal/manifest"
	"github.com/nettoneko/hoolamike/internal/patchbase"
	"github.com/nettoneko/hoolamike/internal/planner"
	"github.com/nettoneko/hoolamike/internal/report"
	"github.com/nettoneko/hoolamike/internal/supervisor"
	"github.com/nettoneko/hoolamike/internal/ziparchive"
)

// Config carries the run's host-level tunables (§10: the optional viper
// layer feeds these from flags/env/config file, distinct from the
// modlist's own authored content).
type Config struct {
	InstallRoot     string
	DownloadsDir    string
	SpillDir        string
	DiskBudgetBytes int64

	// GamePath, DocumentsDir, and LocalAppDataDir feed the Variable Table's
	// GAME_PATH/DOCUMENTS/LOCAL_APPDATA tokens (§4.5/§9); INSTALL_PATH is
	// always InstallRoot. Left empty, the corresponding $(name) tokens
	// substitute to the empty string rather than being left unresolved —
	// they are known tokens, just without a configured value.
	GamePath        string
	DocumentsDir    string
	LocalAppDataDir string

	SkipKinds              []string
	SkipVerifyAndDownloads bool
	DownloadSpeedLimitBps  int64
}

// Collaborators lets a caller override any out-of-scope external
// capability (§6); zero values fall back to the built-ins this module
// ships (zip extraction, xxhash64 hashing, a local download-cache
// directory). TextureTranscoder and OctodiffApplier have no built-in
// fallback since DDS transcoding and octodiff patch application are
// genuinely external per §1's scope boundary — an install that reaches a
// TransformedTexture or PatchedFromArchive directive without one configured
// fails that directive with a recoverable error rather than panicking.
type Collaborators struct {
	ArchiveReaderFactory capability.ArchiveReaderFactory
	TextureTranscoder    capability.TextureTranscoder
	OctodiffApplier      capability.OctodiffApplier
	Downloader           capability.Downloader
}

// Install runs one modlist bundle to completion (or first fatal error)
// against cfg. Once execution has begun the returned report.InstallReport
// is populated even on a non-nil error; errors from loading, validation,
// planning or setup return a nil report.
func Install(ctx context.Context, bundlePath string, cfg Config, collab Collaborators, log zerolog.Logger) (*report.InstallReport, error) {
	bundle, err := manifest.Load(bundlePath)
	if err != nil {
		return nil, fmt.Errorf("loading modlist bundle: %w", err)
	}
	defer bundle.Close()

	if err := bundle.Modlist.Validate(); err != nil {
		return nil, fmt.Errorf("validating modlist: %w", err)
	}

	skip := make(map[manifest.DirectiveKind]bool, len(cfg.SkipKinds))
	for _, s := range cfg.SkipKinds {
		k, ok := manifest.ParseDirectiveKind(s)
		if !ok {
			return nil, fmt.Errorf("unknown directive kind %q in --skip-kind", s)
		}
		skip[k] = true
	}

	plan, err := planner.Build(bundle.Modlist, planner.Options{
		SkipKinds:              skip,
		SkipVerifyAndDownloads: cfg.SkipVerifyAndDownloads,
	})
	if err != nil {
		return nil, fmt.Errorf("planning install: %w", err)
	}

	for _, dir := range []string{cfg.InstallRoot, cfg.SpillDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("preparing directory %s: %w", dir, err)
		}
	}

	limits := supervisor.DefaultLimits(runtime.NumCPU())
	if cfg.DiskBudgetBytes > 0 {
		limits.DiskBudgetBytes = cfg.DiskBudgetBytes
	}
	limits.SpeedLimitBps = cfg.DownloadSpeedLimitBps
	sup, err := supervisor.New(limits)
	if err != nil {
		return nil, fmt.Errorf("starting resource supervisor: %w", err)
	}

	downloader := collab.Downloader
	if downloader == nil {
		downloader = downloadcache.New(cfg.DownloadsDir, sizesByHash(bundle.Modlist))
	}
	factory := collab.ArchiveReaderFactory
	if factory == nil {
		factory = ziparchive.New()
	}

	cache := archive.New(cfg.SpillDir, downloader, factory, archive.WithDiskBudget(sup), archive.WithSpeedLimiter(sup))
	bases := patchbase.New(filepath.Join(cfg.SpillDir, "patchbase"), cache)

	deps := executor.Deps{
		Archive:     cache,
		PatchBases:  bases,
		BSABuilder:  bsabuild.NewBuilder(),
		Supervisor:  sup,
		Hasher:      hasher.New(),
		Texture:     collab.TextureTranscoder,
		Patcher:     collab.OctodiffApplier,
		Variables:   variableTable(cfg),
		Bundle:      bundle,
		InstallRoot: cfg.InstallRoot,
		Log:         log,
	}

	rep, err := executor.Run(ctx, plan, deps)
	if err != nil {
		return rep, fmt.Errorf("install aborted: %w", err)
	}
	return rep, nil
}

func sizesByHash(m *manifest.Modlist) map[string]uint64 {
	out := make(map[string]uint64, len(m.Archives))
	for _, a := range m.Archives {
		out[a.Hash] = a.Size
	}
	return out
}

// variableTable builds the Variable Table RemappedInlineFile substitution
// draws from — the four tokens §4.5/§9 name as known: GAME_PATH, DOCUMENTS,
// and LOCAL_APPDATA come from host-level config (there is no dedicated
// variables document in the bundle to source them from), INSTALL_PATH is
// always the run's install root. Grounded on the original's
// RemappingContext (remapped_inline_file.rs), which remaps the same three
// host-supplied directories plus the install directory; unlike the
// original's fixed `{--||...||--}` magic strings, tokens here are
// `$(NAME)` and any name absent from this map is left verbatim by
// substituteVariables rather than erroring.
func variableTable(cfg Config) map[string]string {
	return map[string]string{
		"GAME_PATH":     cfg.GamePath,
		"DOCUMENTS":     cfg.DocumentsDir,
		"LOCAL_APPDATA": cfg.LocalAppDataDir,
		"INSTALL_PATH":  cfg.InstallRoot,
	}
}
