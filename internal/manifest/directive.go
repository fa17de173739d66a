package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownDirectiveKind is returned when a directive's "$type"
// discriminator does not match one of the six known kinds (§4.1: unknown
// kinds fail hard).
var ErrUnknownDirectiveKind = errors.New("unknown directive kind")

// DirectiveKind enumerates the six directive variants a modlist can carry,
// in the canonical phase-execution order the Directive Planner uses.
type DirectiveKind int

const (
	KindInlineFile DirectiveKind = iota
	KindRemappedInlineFile
	KindFromArchive
	KindPatchedFromArchive
	KindTransformedTexture
	KindCreateBSA
	numDirectiveKinds
)

func (k DirectiveKind) String() string {
	switch k {
	case KindInlineFile:
		return "inline-file"
	case KindRemappedInlineFile:
		return "remapped-inline-file"
	case KindFromArchive:
		return "from-archive"
	case KindPatchedFromArchive:
		return "patched-from-archive"
	case KindTransformedTexture:
		return "transformed-texture"
	case KindCreateBSA:
		return "create-bsa"
	default:
		return "unknown"
	}
}

// ParseDirectiveKind accepts both the canonical kebab-case name and the
// PascalCase wire discriminator.
func ParseDirectiveKind(s string) (DirectiveKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inline-file", "inlinefile":
		return KindInlineFile, true
	case "remapped-inline-file", "remappedinlinefile":
		return KindRemappedInlineFile, true
	case "from-archive", "fromarchive":
		return KindFromArchive, true
	case "patched-from-archive", "patchedfromarchive":
		return KindPatchedFromArchive, true
	case "transformed-texture", "transformedtexture":
		return KindTransformedTexture, true
	case "create-bsa", "createbsa":
		return KindCreateBSA, true
	default:
		return 0, false
	}
}

// AllDirectiveKinds returns the six kinds in canonical execution order.
func AllDirectiveKinds() []DirectiveKind {
	kinds := make([]DirectiveKind, 0, int(numDirectiveKinds))
	for k := DirectiveKind(0); k < numDirectiveKinds; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// Directive is one unit of install work targeting one file, or (for
// CreateBSA) one assembled archive.
type Directive interface {
	Kind() DirectiveKind
	TargetPath() string
	ExpectedSize() uint64
	ExpectedHash() string
}

type directiveCommon struct {
	Hash string `json:"Hash"`
	Size uint64 `json:"Size"`
	To   string `json:"To"`
}

func (d directiveCommon) TargetPath() string   { return normalizeTargetPath(d.To) }
func (d directiveCommon) ExpectedSize() uint64  { return d.Size }
func (d directiveCommon) ExpectedHash() string  { return d.Hash }

// normalizeTargetPath converts the authored path (which may use Windows
// backslashes) to forward-slash POSIX form without case-folding it.
func normalizeTargetPath(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// InlineFileDirective embeds bytes inside the modlist bundle under
// SourceDataID.
type InlineFileDirective struct {
	directiveCommon
	SourceDataID string `json:"SourceDataID"`
}

func (InlineFileDirective) Kind() DirectiveKind { return KindInlineFile }

// RemappedInlineFileDirective is wire-identical to InlineFileDirective; the
// difference is purely in how the executor treats the extracted bytes.
type RemappedInlineFileDirective struct {
	directiveCommon
	SourceDataID string `json:"SourceDataID"`
}

func (RemappedInlineFileDirective) Kind() DirectiveKind { return KindRemappedInlineFile }

// ArchiveHashPath is a non-empty ordered list of archive segments: the
// first element is always a root ArchiveDescriptor's hash, every subsequent
// element a path within the previous segment.
type ArchiveHashPath []string

func (p ArchiveHashPath) RootHash() string {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

func (p ArchiveHashPath) NestedSegments() []string {
	if len(p) <= 1 {
		return nil
	}
	return p[1:]
}

type FromArchiveDirective struct {
	directiveCommon
	ArchiveHashPath ArchiveHashPath `json:"ArchiveHashPath"`
}

func (FromArchiveDirective) Kind() DirectiveKind { return KindFromArchive }

type PatchedFromArchiveDirective struct {
	directiveCommon
	SourceDataID    *string         `json:"SourceDataID"`
	ArchiveHashPath ArchiveHashPath `json:"ArchiveHashPath"`
	FromHash        string          `json:"FromHash"`
	PatchID         string          `json:"PatchID"`
}

func (PatchedFromArchiveDirective) Kind() DirectiveKind { return KindPatchedFromArchive }

// ImageState describes a TransformedTexture directive's target format.
type ImageState struct {
	Format         string `json:"Format"`
	Height         uint32 `json:"Height"`
	MipLevels      uint32 `json:"MipLevels"`
	PerceptualHash string `json:"PerceptualHash"`
	Width          uint32 `json:"Width"`
}

type TransformedTextureDirective struct {
	directiveCommon
	ImageState      ImageState      `json:"ImageState"`
	ArchiveHashPath ArchiveHashPath `json:"ArchiveHashPath"`
}

func (TransformedTextureDirective) Kind() DirectiveKind { return KindTransformedTexture }

// UnmarshalDirective decodes one element of the modlist's Directives array,
// dispatching on its "$type" discriminator. Unknown kinds fail hard per the
// Manifest Model's parsing policy (§4.1): unknown top-level modlist fields
// are tolerated, but an unknown directive kind is not.
func UnmarshalDirective(data []byte) (Directive, error) {
	var tag typeTag
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("decoding directive discriminator: %w", err)
	}
	switch classNameOf(tag.Type) {
	case "InlineFile":
		var d InlineFileDirective
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decoding InlineFile directive: %w", err)
		}
		return d, nil
	case "RemappedInlineFile":
		var d RemappedInlineFileDirective
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decoding RemappedInlineFile directive: %w", err)
		}
		return d, nil
	case "FromArchive":
		var d FromArchiveDirective
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decoding FromArchive directive: %w", err)
		}
		return d, nil
	case "PatchedFromArchive":
		var d PatchedFromArchiveDirective
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decoding PatchedFromArchive directive: %w", err)
		}
		return d, nil
	case "TransformedTexture":
		var d TransformedTextureDirective
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decoding TransformedTexture directive: %w", err)
		}
		return d, nil
	case "CreateBSA":
		return UnmarshalCreateBSADirective(data)
	default:
		return nil, fmt.Errorf("%w: unknown directive kind %q", ErrUnknownDirectiveKind, tag.Type)
	}
}

// UnmarshalJSON implements directive-list decoding for Modlist.Directives,
// since each element requires discriminator-based dispatch that
// encoding/json cannot express through struct tags alone.
func (m *Modlist) UnmarshalJSON(data []byte) error {
	type rawModlist struct {
		Archives         []Archive         `json:"Archives"`
		Author           string            `json:"Author"`
		Description      string            `json:"Description"`
		Directives       []json.RawMessage `json:"Directives"`
		GameType         GameName          `json:"GameType"`
		Image            string            `json:"Image"`
		IsNSFW           LenientBool       `json:"IsNSFW"`
		Name             string            `json:"Name"`
		Readme           string            `json:"Readme"`
		Version          string            `json:"Version"`
		WabbajackVersion string            `json:"WabbajackVersion"`
		Website          string            `json:"Website"`
	}
	var raw rawModlist
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding modlist envelope: %w", err)
	}
	directives := make([]Directive, 0, len(raw.Directives))
	for i, rd := range raw.Directives {
		d, err := UnmarshalDirective(rd)
		if err != nil {
			return fmt.Errorf("decoding directive %d: %w", i, err)
		}
		directives = append(directives, d)
	}
	m.Archives = raw.Archives
	m.Author = raw.Author
	m.Description = raw.Description
	m.Directives = directives
	m.GameType = raw.GameType
	m.Image = raw.Image
	m.IsNSFW = raw.IsNSFW
	m.Name = raw.Name
	m.Readme = raw.Readme
	m.Version = raw.Version
	m.WabbajackVersion = raw.WabbajackVersion
	m.Website = raw.Website
	return nil
}
