package manifest

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
)

// modlistEntryName is the top-level JSON document's name inside the bundle
// container, matching the upstream ".wabbajack" container convention.
const modlistEntryName = "modlist"

// Bundle is an open modlist bundle: the decoded Modlist plus lazy access to
// the auxiliary blob entries keyed by SourceDataID that InlineFile and
// RemappedInlineFile directives reference.
//
// Grounded on the teacher's internal/SophonInfosJson.go (a manifest envelope
// holding both structured fields and opaque nested payloads addressed by
// id) generalized from a single HTTP-fetched JSON document to a zip
// container with a JSON entry plus many binary entries.
type Bundle struct {
	Modlist *Modlist
	zr      *zip.ReadCloser
	byName  map[string]*zip.File
}

// Load opens a modlist bundle and decodes its top-level manifest. Parsing is
// permissive: unknown top-level fields are ignored by encoding/json by
// default. A directive with a missing or unknown "$type" fails decoding
// with an error wrapping ErrUnknownDirectiveKind; a missing target path or
// hash decodes as an empty string and is not rejected here or by Validate.
func Load(bundlePath string) (*Bundle, error) {
	zr, err := zip.OpenReader(bundlePath)
	if err != nil {
		return nil, fmt.Errorf("opening modlist bundle %s: %w", bundlePath, err)
	}

	byName := make(map[string]*zip.File, len(zr.File))
	var entry *zip.File
	for _, f := range zr.File {
		byName[f.Name] = f
		if f.Name == modlistEntryName {
			entry = f
		}
	}
	if entry == nil {
		zr.Close()
		return nil, fmt.Errorf("modlist bundle %s: missing %q entry", bundlePath, modlistEntryName)
	}

	rc, err := entry.Open()
	if err != nil {
		zr.Close()
		return nil, fmt.Errorf("opening modlist entry: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		zr.Close()
		return nil, fmt.Errorf("reading modlist entry: %w", err)
	}

	var ml Modlist
	if err := json.Unmarshal(data, &ml); err != nil {
		zr.Close()
		return nil, fmt.Errorf("decoding modlist JSON: %w", err)
	}

	return &Bundle{Modlist: &ml, zr: zr, byName: byName}, nil
}

// Close releases the bundle's underlying file handle.
func (b *Bundle) Close() error { return b.zr.Close() }

// OpenBlob opens the auxiliary entry for the given SourceDataID
// (InlineFile/RemappedInlineFile's embedded bytes, or a PatchedFromArchive's
// patch blob).
func (b *Bundle) OpenBlob(sourceDataID string) (io.ReadCloser, error) {
	f, ok := b.byName[sourceDataID]
	if !ok {
		return nil, fmt.Errorf("modlist bundle: no auxiliary entry %q", sourceDataID)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening auxiliary entry %q: %w", sourceDataID, err)
	}
	return rc, nil
}
