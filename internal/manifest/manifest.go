// Package manifest is the typed representation of a modlist: its directive
// list, archive descriptors, and target layout (component C1).
//
// Grounded on the teacher's internal/SophonManifest.go (a single top-level
// manifest record loaded once and held for the run) and on
// original_source/crates/hoolamike/src/modlist_json.rs for field shapes and
// wire naming.
package manifest

// GameName identifies the game a modlist targets, e.g. "SkyrimSE".
type GameName string

// Modlist is the root record of a modlist bundle.
type Modlist struct {
	Archives         []Archive   `json:"Archives"`
	Author           string      `json:"Author"`
	Description      string      `json:"Description"`
	Directives       []Directive `json:"Directives"`
	GameType         GameName    `json:"GameType"`
	Image            string      `json:"Image"`
	IsNSFW           LenientBool `json:"IsNSFW"`
	Name             string      `json:"Name"`
	Readme           string      `json:"Readme"`
	Version          string      `json:"Version"`
	WabbajackVersion string      `json:"WabbajackVersion"`
	Website          string      `json:"Website"`
}

// ArchiveDescriptor identifies an expected downloaded source archive.
// Identity is Hash: base64 of the little-endian bytes of an xxhash-64 sum.
type ArchiveDescriptor struct {
	Hash string `json:"Hash"`
	Meta string `json:"Meta"`
	Name string `json:"Name"`
	Size uint64 `json:"Size"`
}

// Archive pairs a descriptor with the download source needed to obtain it.
// Downloading itself is out of scope for this engine (§6); the State is kept
// only so a collaborator Downloader can be handed the full record.
type Archive struct {
	ArchiveDescriptor
	State DownloadSource `json:"State"`
}

// ByHash indexes a modlist's archives for O(1) lookup during directive
// resolution.
func (m *Modlist) ByHash() map[string]Archive {
	out := make(map[string]Archive, len(m.Archives))
	for _, a := range m.Archives {
		out[a.Hash] = a
	}
	return out
}
