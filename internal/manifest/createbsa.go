package manifest

import (
	"encoding/json"
	"fmt"
)

// ArchiveBuildKind distinguishes the two archive families CreateBSA can
// target. Disambiguation is structural, not tag-based: the upstream wire
// format uses an untagged union between the BSA and BA2 directive-state
// shapes (original_source/.../create_bsa_directive.rs), so this engine picks
// by which shape decodes without leftover/missing required fields.
type ArchiveBuildKind int

const (
	BuildBSA ArchiveBuildKind = iota
	BuildBA2
)

// BSABuildState is the DirectiveState for a BSA-format CreateBSA directive.
type BSABuildState struct {
	ArchiveFlags uint32 `json:"ArchiveFlags"`
	FileFlags    uint32 `json:"FileFlags"`
	Magic        string `json:"Magic"`
	Version      uint64 `json:"Version"`
}

// BSAFileState is one FileState entry for a BSA-format CreateBSA directive.
type BSAFileState struct {
	FlipCompression LenientBool `json:"FlipCompression"`
	Index           int         `json:"Index"`
	Path            string      `json:"Path"`
}

// BA2BuildState is the DirectiveState for a BA2-format CreateBSA directive.
type BA2BuildState struct {
	HasNameTable LenientBool `json:"HasNameTable"`
	HeaderMagic  string      `json:"HeaderMagic"`
	Kind         uint64      `json:"Type"`
	Version      uint64      `json:"Version"`
}

// BA2FileEntryState is a plain (non-texture) BA2 file entry.
type BA2FileEntryState struct {
	Align      uint64      `json:"Align"`
	Compressed LenientBool `json:"Compressed"`
	DirHash    uint32      `json:"DirHash"`
	Extension  string      `json:"Extension"`
	Flags      uint64      `json:"Flags"`
	Index      int         `json:"Index"`
	NameHash   uint32      `json:"NameHash"`
	Path       string      `json:"Path"`
}

// BA2DX10EntryChunk is one mip-range chunk of a chunked texture entry.
type BA2DX10EntryChunk struct {
	Align      uint64      `json:"Align"`
	Compressed LenientBool `json:"Compressed"`
	EndMip     uint64      `json:"EndMip"`
	FullSz     uint64      `json:"FullSz"`
	StartMip   uint64      `json:"StartMip"`
}

// BA2DX10EntryState is a DDS texture entry in a BA2-textures archive,
// chunked per mip-range.
type BA2DX10EntryState struct {
	DirHash     uint32               `json:"DirHash"`
	ChunkHdrLen uint64               `json:"ChunkHdrLen"`
	Chunks      []BA2DX10EntryChunk  `json:"Chunks"`
	NumMips     uint8                `json:"NumMips"`
	PixelFormat uint8                `json:"PixelFormat"`
	TileMode    uint8                `json:"TileMode"`
	Unk8        uint8                `json:"Unk8"`
	Extension   string               `json:"Extension"`
	Height      uint16               `json:"Height"`
	Width       uint16               `json:"Width"`
	IsCubeMap   uint8                `json:"IsCubeMap"`
	Index       int                  `json:"Index"`
	NameHash    uint32               `json:"NameHash"`
	Path        string               `json:"Path"`
}

// BA2FileState is one FileState entry for a BA2-format CreateBSA directive;
// exactly one of File/DX10 is set, discriminated by the embedded "$type".
type BA2FileState struct {
	File *BA2FileEntryState
	DX10 *BA2DX10EntryState
}

func (s *BA2FileState) UnmarshalJSON(data []byte) error {
	var tag typeTag
	if err := json.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("decoding BA2 file state discriminator: %w", err)
	}
	switch tag.Type {
	case "BA2File":
		s.File = new(BA2FileEntryState)
		return json.Unmarshal(data, s.File)
	case "BA2DX10Entry":
		s.DX10 = new(BA2DX10EntryState)
		return json.Unmarshal(data, s.DX10)
	default:
		return fmt.Errorf("%w: unknown BA2 file state %q", ErrUnknownDirectiveKind, tag.Type)
	}
}

// CreateBSADirective is a synthetic grouping of sub file-states into one
// assembled output archive; the format (BSA vs BA2) is resolved structurally
// at decode time.
type CreateBSADirective struct {
	directiveCommon
	TempID string `json:"TempID"`

	Format        ArchiveBuildKind
	BSAState      *BSABuildState
	BSAFileStates []BSAFileState
	BA2State      *BA2BuildState
	BA2FileStates []BA2FileState
}

func (CreateBSADirective) Kind() DirectiveKind { return KindCreateBSA }

// UnmarshalCreateBSADirective decodes a CreateBSA directive, trying the BSA
// shape first and falling back to BA2 — mirroring the upstream untagged
// enum's decode-by-trying-each-variant behavior.
func UnmarshalCreateBSADirective(data []byte) (Directive, error) {
	var common struct {
		Hash   string `json:"Hash"`
		Size   uint64 `json:"Size"`
		To     string `json:"To"`
		TempID string `json:"TempID"`
	}
	if err := json.Unmarshal(data, &common); err != nil {
		return nil, fmt.Errorf("decoding CreateBSA envelope: %w", err)
	}
	d := CreateBSADirective{
		directiveCommon: directiveCommon{Hash: common.Hash, Size: common.Size, To: common.To},
		TempID:          common.TempID,
	}

	var asBSA struct {
		State      BSABuildState  `json:"State"`
		FileStates []BSAFileState `json:"FileStates"`
	}
	if err := json.Unmarshal(data, &asBSA); err == nil && asBSA.State.Magic != "" {
		d.Format = BuildBSA
		d.BSAState = &asBSA.State
		d.BSAFileStates = asBSA.FileStates
		return d, nil
	}

	var asBA2 struct {
		State      BA2BuildState  `json:"State"`
		FileStates []BA2FileState `json:"FileStates"`
	}
	if err := json.Unmarshal(data, &asBA2); err != nil {
		return nil, fmt.Errorf("decoding CreateBSA directive as BSA or BA2: %w", err)
	}
	d.Format = BuildBA2
	d.BA2State = &asBA2.State
	d.BA2FileStates = asBA2.FileStates
	return d, nil
}
