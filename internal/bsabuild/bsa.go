package bsabuild

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/klauspost/compress/zlib"

	"github.com/nettoneko/hoolamike/internal/manifest"
)

const bsaHeaderSize = 36

// bsaFolder groups pending files that share a directory, since a BSA's
// file-record table is nested one level under a folder-record table.
type bsaFolder struct {
	name  string
	files []bsaFileEntry
}

type bsaFileEntry struct {
	name string // base name only, folder-relative
	hash uint64
	data []byte
}

// bsaPayload is a file's on-disk bytes (possibly zlib-compressed, with the
// decompressed-size prefix BSA requires for compressed entries) plus the
// size field a file record stores for it — computed once up front so the
// record table, offsets, and data block all agree on the same bytes.
type bsaPayload struct {
	bytes     []byte
	sizeField uint32
}

func writeBSA(w io.Writer, state manifest.BSABuildState, pending []pendingBSAFile) error {
	folders := groupByFolder(pending)

	bw := bufio.NewWriter(w)

	var totalFolderNameLen, totalFileNameLen uint32
	var fileCount uint32
	for _, f := range folders {
		totalFolderNameLen += uint32(len(f.name)) + 1
		for _, fe := range f.files {
			totalFileNameLen += uint32(len(fe.name)) + 1
			fileCount++
		}
	}

	if err := writeBSAHeader(bw, state, uint32(len(folders)), fileCount, totalFolderNameLen, totalFileNameLen); err != nil {
		return err
	}

	// Every size below mirrors the bytes the write loops further down
	// actually emit, in the same order, so the offsets computed here land
	// on the true absolute position of what they point at.
	frSize := folderRecordSize(state.Version)
	folderBlockStart := uint32(bsaHeaderSize) + uint32(len(folders))*frSize

	// Each folder's own block is its name bstring (1 length byte + name +
	// NUL) followed by one 16-byte file record per file.
	folderBlockSize := make([]uint32, len(folders))
	for i, f := range folders {
		folderBlockSize[i] = uint32(len(f.name)) + 2 + uint32(len(f.files))*16
	}

	// Payload for every file, precomputed once and reused across the
	// record, name, and data passes below so none of them can disagree.
	payloads := make([]bsaPayload, 0, fileCount)
	for _, f := range folders {
		for _, fe := range f.files {
			data, sizeField, err := compressIfNeeded(fe.data, state.FileFlags)
			if err != nil {
				return err
			}
			payloads = append(payloads, bsaPayload{bytes: data, sizeField: sizeField})
		}
	}

	dataStart := folderBlockStart
	for _, sz := range folderBlockSize {
		dataStart += sz
	}
	dataStart += totalFileNameLen

	fileDataOffset := make([]uint32, len(payloads))
	cur := dataStart
	for i, p := range payloads {
		fileDataOffset[i] = cur
		cur += uint32(len(p.bytes))
	}

	// Folder records: nameHash, file count, (v105 padding), offset. Offset
	// points at the start of the folder's own (name + file records) block,
	// written immediately after this table.
	offset := folderBlockStart
	for i, f := range folders {
		if err := writeFolderRecord(bw, f, state.Version, offset); err != nil {
			return err
		}
		offset += folderBlockSize[i]
	}

	// Per-folder: folder name, then one file record per file, each
	// pointing at its real absolute data offset.
	idx := 0
	for _, f := range folders {
		if err := writeBString(bw, f.name); err != nil {
			return err
		}
		for _, fe := range f.files {
			if err := binary.Write(bw, binary.LittleEndian, fe.hash); err != nil {
				return err
			}
			if err := binary.Write(bw, binary.LittleEndian, payloads[idx].sizeField); err != nil {
				return err
			}
			if err := binary.Write(bw, binary.LittleEndian, fileDataOffset[idx]); err != nil {
				return err
			}
			idx++
		}
	}

	// File name block: plain NUL-terminated names with no length prefix,
	// matching totalFileNameLen above (unlike folder names, which are
	// length-prefixed bstrings).
	for _, f := range folders {
		for _, fe := range f.files {
			if _, err := bw.Write(append([]byte(fe.name), 0)); err != nil {
				return fmt.Errorf("bsabuild: writing file name: %w", err)
			}
		}
	}

	// File data, in the same order as fileDataOffset/the file-name block.
	for _, p := range payloads {
		if _, err := bw.Write(p.bytes); err != nil {
			return fmt.Errorf("bsabuild: writing file data: %w", err)
		}
	}

	return bw.Flush()
}

func folderRecordSize(version uint64) uint32 {
	if version == 105 {
		return 24
	}
	return 16
}

func writeBSAHeader(w io.Writer, state manifest.BSABuildState, folderCount, fileCount, totalFolderNameLen, totalFileNameLen uint32) error {
	magic := state.Magic
	if magic == "" {
		magic = "BSA\x00"
	}
	for len(magic) < 4 {
		magic += "\x00"
	}
	fields := []any{
		[]byte(magic)[:4],
		uint32(state.Version),
		uint32(bsaHeaderSize),
		state.ArchiveFlags,
		folderCount,
		fileCount,
		totalFolderNameLen,
		totalFileNameLen,
		state.FileFlags,
	}
	for _, v := range fields {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("bsabuild: writing header: %w", err)
		}
	}
	return nil
}

func writeFolderRecord(w io.Writer, f bsaFolder, version uint64, offset uint32) error {
	hash := bsaHash(f.name, "")
	if err := binary.Write(w, binary.LittleEndian, hash); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(f.files))); err != nil {
		return err
	}
	if version == 105 {
		// SSE widened this record to 24 bytes: a 4-byte pad then a
		// uint64 offset, versus the uint32 offset every earlier version
		// uses — folderRecordSize must keep agreeing with this shape.
		if err := binary.Write(w, binary.LittleEndian, uint32(0)); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, uint64(offset))
	}
	return binary.Write(w, binary.LittleEndian, offset)
}

func writeBString(w io.Writer, s string) error {
	b := append([]byte(s), 0)
	if len(b) > 255 {
		return fmt.Errorf("bsabuild: name %q exceeds 255 bytes", s)
	}
	if _, err := w.Write([]byte{byte(len(b))}); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// compressIfNeeded returns a file's on-disk payload and the size field its
// file record should carry. A compressed BSA record's payload is the
// original (decompressed) size as a little-endian uint32 followed by the
// zlib stream; the size field is the on-disk payload length (including that
// prefix) with the high compressed-bit set.
func compressIfNeeded(data []byte, fileFlags uint32) ([]byte, uint32, error) {
	const compressedBit = uint32(1) << 30
	if fileFlags == 0 {
		return data, uint32(len(data)), nil
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(data))); err != nil {
		return nil, 0, fmt.Errorf("bsabuild: writing decompressed-size prefix: %w", err)
	}
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, 0, fmt.Errorf("bsabuild: compressing file data: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, 0, fmt.Errorf("bsabuild: closing compressor: %w", err)
	}
	out := buf.Bytes()
	return out, uint32(len(out)) | compressedBit, nil
}

func groupByFolder(pending []pendingBSAFile) []bsaFolder {
	byDir := make(map[string][]bsaFileEntry)
	for _, p := range pending {
		dir := path.Dir(strings.ReplaceAll(p.state.Path, "\\", "/"))
		if dir == "." {
			dir = ""
		}
		base := path.Base(p.state.Path)
		data, err := os.ReadFile(p.path)
		if err != nil {
			data = nil
		}
		byDir[dir] = append(byDir[dir], bsaFileEntry{
			name: base,
			hash: bsaHash(base, path.Ext(base)),
			data: data,
		})
	}
	dirs := make([]string, 0, len(byDir))
	for d := range byDir {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)

	folders := make([]bsaFolder, 0, len(dirs))
	for _, d := range dirs {
		entries := byDir[d]
		sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
		folders = append(folders, bsaFolder{name: strings.ReplaceAll(d, "/", "\\"), files: entries})
	}
	return folders
}

// bsaHash computes the classic Bethesda archive folder/file name hash used
// to key folder and file records for fast lookup.
func bsaHash(name, ext string) uint64 {
	name = strings.ToLower(name)
	ext = strings.ToLower(ext)
	base := strings.TrimSuffix(name, ext)
	if base == "" {
		return 0
	}
	n := len(base)

	var hash uint64
	hash = uint64(base[n-1])
	hash |= uint64(n) << 8
	if n > 2 {
		hash |= uint64(base[n-2]) << 16
	}
	hash |= uint64(base[0]) << 24

	var mid uint32
	for i := 1; i < n-2; i++ {
		mid = mid*0x1003f + uint32(base[i])
	}
	hash += uint64(mid) << 32

	var extHash uint32
	for i := 0; i < len(ext); i++ {
		extHash = extHash*0x1003f + uint32(ext[i])
	}
	hash += uint64(extHash)
	return hash
}
