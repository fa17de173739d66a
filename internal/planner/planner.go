// Package planner implements the Directive Planner: it groups a validated
// Modlist's directives into phases in canonical kind order, applies
// --skip-kind/--skip-verify-and-downloads filtering, and attaches each
// phase's required root archives and patch bases so the executor (and the
// archive cache's Preheat) can warm them ahead of the per-directive work.
//
// Grounded on the teacher's SophonAssetDiff.go, which separates "figure out
// what needs doing" (the diff) from "do it" (DownloadDiffChunks); the
// planner is that separation generalized from one manifest's chunk diff to
// a whole modlist's directive set, using samber/lo's grouping utilities in
// place of the teacher's hand-rolled loops.
package planner

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/nettoneko/hoolamike/internal/archive"
	"github.com/nettoneko/hoolamike/internal/manifest"
)

// Options carries the --skip-kind / --skip-verify-and-downloads CLI flags
// through to planning (§9 Open Questions: skip-kind applies only to
// top-level directives, never to a CreateBSA directive's internal
// sub-states; skip-verify-and-downloads is one flag, carried on the Plan,
// that turns off the executor's post-write size/hash check and does not
// change how source archives are located or verified).
type Options struct {
	SkipKinds              map[manifest.DirectiveKind]bool
	SkipVerifyAndDownloads bool
}

// Phase is one group of same-kind directives plus the archive state the
// executor needs resolved before running it.
type Phase struct {
	Kind               manifest.DirectiveKind
	Directives         []manifest.Directive
	RequiredArchives   []archive.Ref
	RequiredPatchBases []archive.Ref
}

// Plan is the ordered phase sequence the executor runs, one phase at a
// time, dispatching its directives concurrently (§4.3/§4.4).
type Plan struct {
	Phases                 []Phase
	SkipVerifyAndDownloads bool
}

// Build groups m's directives into canonical-order phases, skipping any
// whose kind is in opts.SkipKinds. m must have already passed Validate.
func Build(m *manifest.Modlist, opts Options) (*Plan, error) {
	byHash := m.ByHash()

	grouped := lo.GroupBy(m.Directives, func(d manifest.Directive) manifest.DirectiveKind {
		return d.Kind()
	})

	plan := &Plan{SkipVerifyAndDownloads: opts.SkipVerifyAndDownloads}
	for _, kind := range manifest.AllDirectiveKinds() {
		if opts.SkipKinds[kind] {
			continue
		}
		directives := grouped[kind]
		if len(directives) == 0 {
			continue
		}

		phase := Phase{Kind: kind, Directives: directives}
		for _, d := range directives {
			refs, err := requiredArchives(d, byHash)
			if err != nil {
				return nil, fmt.Errorf("planning %s directive targeting %q: %w", kind, d.TargetPath(), err)
			}
			phase.RequiredArchives = append(phase.RequiredArchives, refs...)
			if kind == manifest.KindPatchedFromArchive {
				phase.RequiredPatchBases = append(phase.RequiredPatchBases, refs...)
			}
		}
		phase.RequiredArchives = dedupeRefs(phase.RequiredArchives)
		phase.RequiredPatchBases = dedupeRefs(phase.RequiredPatchBases)

		plan.Phases = append(plan.Phases, phase)
	}
	return plan, nil
}

func requiredArchives(d manifest.Directive, byHash map[string]manifest.Archive) ([]archive.Ref, error) {
	var hp manifest.ArchiveHashPath
	switch v := d.(type) {
	case manifest.FromArchiveDirective:
		hp = v.ArchiveHashPath
	case manifest.PatchedFromArchiveDirective:
		hp = v.ArchiveHashPath
	case manifest.TransformedTextureDirective:
		hp = v.ArchiveHashPath
	default:
		return nil, nil
	}
	root, ok := byHash[hp.RootHash()]
	if !ok {
		return nil, fmt.Errorf("no declared archive for hash %q", hp.RootHash())
	}
	return []archive.Ref{{RootHash: hp.RootHash(), RootName: root.Name, Segments: hp.NestedSegments()}}, nil
}

func dedupeRefs(refs []archive.Ref) []archive.Ref {
	return lo.UniqBy(refs, func(r archive.Ref) string {
		key := r.RootHash
		for _, s := range r.Segments {
			key += "\x00" + s
		}
		return key
	})
}
