package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nettoneko/hoolamike/internal/manifest"
)

func archiveDescriptor(hash, name string) manifest.Archive {
	return manifest.Archive{ArchiveDescriptor: manifest.ArchiveDescriptor{Hash: hash, Name: name, Size: 10}}
}

func TestBuildOrdersPhasesCanonically(t *testing.T) {
	m := &manifest.Modlist{
		Archives: []manifest.Archive{archiveDescriptor("h1", "archive1.zip")},
		Directives: []manifest.Directive{
			manifest.FromArchiveDirective{
				ArchiveHashPath: manifest.ArchiveHashPath{"h1", "foo.esp"},
			},
			manifest.InlineFileDirective{SourceDataID: "sid-1"},
		},
	}

	plan, err := Build(m, Options{})
	require.NoError(t, err)
	require.Len(t, plan.Phases, 2)
	require.Equal(t, manifest.KindInlineFile, plan.Phases[0].Kind, "InlineFile precedes FromArchive in canonical order")
	require.Equal(t, manifest.KindFromArchive, plan.Phases[1].Kind)
	require.Len(t, plan.Phases[1].RequiredArchives, 1)
	require.Equal(t, "h1", plan.Phases[1].RequiredArchives[0].RootHash)
	require.Equal(t, "archive1.zip", plan.Phases[1].RequiredArchives[0].RootName)
}

func TestBuildSkipsRequestedKinds(t *testing.T) {
	m := &manifest.Modlist{
		Directives: []manifest.Directive{
			manifest.InlineFileDirective{SourceDataID: "sid-1"},
		},
	}
	plan, err := Build(m, Options{SkipKinds: map[manifest.DirectiveKind]bool{manifest.KindInlineFile: true}})
	require.NoError(t, err)
	require.Empty(t, plan.Phases)
}

func TestBuildFailsOnUnresolvedArchiveHash(t *testing.T) {
	m := &manifest.Modlist{
		Directives: []manifest.Directive{
			manifest.FromArchiveDirective{ArchiveHashPath: manifest.ArchiveHashPath{"missing"}},
		},
	}
	_, err := Build(m, Options{})
	require.Error(t, err)
}

func TestBuildKeepsDistinctNestedSegmentsDistinct(t *testing.T) {
	m := &manifest.Modlist{
		Archives: []manifest.Archive{archiveDescriptor("h1", "archive1.zip")},
		Directives: []manifest.Directive{
			manifest.FromArchiveDirective{ArchiveHashPath: manifest.ArchiveHashPath{"h1", "a.esp"}},
			manifest.FromArchiveDirective{ArchiveHashPath: manifest.ArchiveHashPath{"h1", "b.esp"}},
		},
	}
	plan, err := Build(m, Options{})
	require.NoError(t, err)
	require.Len(t, plan.Phases, 1)
	require.Len(t, plan.Phases[0].RequiredArchives, 2, "distinct nested segments under the same root stay distinct refs")
}

func TestBuildDedupesIdenticalArchiveRefAcrossDirectives(t *testing.T) {
	m := &manifest.Modlist{
		Archives: []manifest.Archive{archiveDescriptor("h1", "archive1.zip")},
		Directives: []manifest.Directive{
			manifest.FromArchiveDirective{ArchiveHashPath: manifest.ArchiveHashPath{"h1", "a.esp"}},
			manifest.FromArchiveDirective{ArchiveHashPath: manifest.ArchiveHashPath{"h1", "a.esp"}},
		},
	}
	plan, err := Build(m, Options{})
	require.NoError(t, err)
	require.Len(t, plan.Phases, 1)
	require.Len(t, plan.Phases[0].RequiredArchives, 1, "the same archive ref referenced twice is deduped")
}
