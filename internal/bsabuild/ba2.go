package bsabuild

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path"
	"sort"

	"github.com/nettoneko/hoolamike/internal/manifest"
)

const ba2HeaderSize = 24

// Fixed on-disk sizes for the two BA2 entry-record shapes, derived from the
// wire field widths in manifest.BA2FileEntryState/BA2DX10EntryState: a plain
// file entry is NameHash+ext+DirHash+Flags+offset+packedSize+unpackedSize+
// sentinel; a DX10 entry is a fixed header followed by one chunk record per
// mip-range chunk.
const (
	ba2FileEntrySize       = 40
	ba2DX10EntryHeaderSize = 29
	ba2DX10ChunkSize       = 24
)

func ba2EntryRecordSize(fs manifest.BA2FileState) uint64 {
	if fs.DX10 != nil {
		return uint64(ba2DX10EntryHeaderSize) + uint64(len(fs.DX10.Chunks))*ba2DX10ChunkSize
	}
	return ba2FileEntrySize
}

func writeBA2(w io.Writer, state manifest.BA2BuildState, pending []pendingBA2File) error {
	sort.Slice(pending, func(i, j int) bool {
		return ba2EntryPath(pending[i].state) < ba2EntryPath(pending[j].state)
	})

	bw := bufio.NewWriter(w)

	bodies := make([][]byte, len(pending))
	for i, p := range pending {
		data, err := os.ReadFile(p.path)
		if err != nil {
			return fmt.Errorf("bsabuild: reading %q: %w", p.path, err)
		}
		bodies[i] = data
	}

	var entryTableSize uint64
	for _, p := range pending {
		entryTableSize += ba2EntryRecordSize(p.state)
	}
	dataStart := uint64(ba2HeaderSize) + entryTableSize

	// Lay out the body before writing anything, so the header's
	// name-table offset and every entry's data offset point at their real
	// absolute positions.
	offsets := make([]uint64, len(pending))
	chunkOffsets := make([][]uint64, len(pending))
	cur := dataStart
	for i, p := range pending {
		offsets[i] = cur
		if dx := p.state.DX10; dx != nil {
			// The wire format's per-chunk metadata describes mip-range
			// sizes, not separate staged files; the single staged file
			// is the concatenation of its chunks' payloads in order.
			chunkOffsets[i] = make([]uint64, len(dx.Chunks))
			chunkCur := cur
			remaining := uint64(len(bodies[i]))
			for j, c := range dx.Chunks {
				chunkOffsets[i][j] = chunkCur
				span := c.FullSz
				if span > remaining {
					span = remaining
				}
				chunkCur += span
				remaining -= span
			}
		}
		cur += uint64(len(bodies[i]))
	}
	nameTableOffset := cur

	if err := writeBA2Header(bw, state, uint32(len(pending)), nameTableOffset); err != nil {
		return err
	}

	// File entries, one per pending file, each with a fixed-size record
	// layout that depends on whether it's a plain BA2File or a chunked
	// BA2DX10Entry texture (§3's untagged union over the two shapes).
	for i, p := range pending {
		if err := writeBA2Entry(bw, p.state, offsets[i], chunkOffsets[i], uint32(len(bodies[i]))); err != nil {
			return err
		}
	}

	for _, data := range bodies {
		if _, err := bw.Write(data); err != nil {
			return fmt.Errorf("bsabuild: writing file data: %w", err)
		}
	}

	// Name table: null-terminated paths in entry order, only present when
	// the directive's state requested one.
	if state.HasNameTable {
		for _, p := range pending {
			name := ba2EntryPath(p.state) + "\x00"
			if _, err := bw.Write([]byte(name)); err != nil {
				return fmt.Errorf("bsabuild: writing name table: %w", err)
			}
		}
	}

	return bw.Flush()
}

func ba2EntryPath(fs manifest.BA2FileState) string {
	if fs.File != nil {
		return fs.File.Path
	}
	if fs.DX10 != nil {
		return fs.DX10.Path
	}
	return ""
}

func writeBA2Header(w io.Writer, state manifest.BA2BuildState, fileCount uint32, nameTableOffset uint64) error {
	magic := state.HeaderMagic
	if magic == "" {
		magic = "BTDX"
	}
	for len(magic) < 4 {
		magic += "\x00"
	}
	typeTag := ba2TypeTag(state.Kind)
	fields := []any{
		[]byte(magic)[:4],
		uint32(state.Version),
		[]byte(typeTag)[:4],
		fileCount,
		nameTableOffset,
	}
	for _, v := range fields {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("bsabuild: writing BA2 header: %w", err)
		}
	}
	return nil
}

// ba2TypeTag maps the directive's numeric Type/Kind field to the 4-byte
// ASCII tag the game's BA2 loader switches on ("GNRL" for general assets,
// "DX10" for chunked textures).
func ba2TypeTag(kind uint64) string {
	if kind == 1 {
		return "DX10"
	}
	return "GNRL"
}

func writeBA2Entry(w io.Writer, fs manifest.BA2FileState, offset uint64, chunkOffsets []uint64, size uint32) error {
	switch {
	case fs.DX10 != nil:
		return writeBA2DX10Entry(w, *fs.DX10, chunkOffsets)
	case fs.File != nil:
		return writeBA2FileEntry(w, *fs.File, offset, size)
	default:
		return fmt.Errorf("bsabuild: BA2 file state for %q has neither File nor DX10 set", ba2EntryPath(fs))
	}
}

func writeBA2FileEntry(w io.Writer, fe manifest.BA2FileEntryState, offset uint64, size uint32) error {
	ext := path.Ext(fe.Path)
	for len(ext) < 4 {
		ext += "\x00"
	}
	fields := []any{
		fe.NameHash,
		[]byte(ext)[:4],
		fe.DirHash,
		fe.Flags,
		offset,
		size,
		size,
		uint32(0xBAAD), // fixed sentinel the BA2 format requires at this position
	}
	for _, v := range fields {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("bsabuild: writing BA2 file entry: %w", err)
		}
	}
	return nil
}

func writeBA2DX10Entry(w io.Writer, de manifest.BA2DX10EntryState, chunkOffsets []uint64) error {
	ext := path.Ext(de.Path)
	for len(ext) < 4 {
		ext += "\x00"
	}
	fields := []any{
		de.NameHash,
		[]byte(ext)[:4],
		de.DirHash,
		uint8(len(de.Chunks)),
		de.ChunkHdrLen,
		de.Height,
		de.Width,
		de.NumMips,
		de.PixelFormat,
		de.TileMode,
		de.Unk8,
	}
	for _, v := range fields {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("bsabuild: writing BA2 DX10 entry: %w", err)
		}
	}
	for i, c := range de.Chunks {
		if err := writeBA2Chunk(w, c, chunkOffsets[i]); err != nil {
			return err
		}
	}
	return nil
}

func writeBA2Chunk(w io.Writer, c manifest.BA2DX10EntryChunk, offset uint64) error {
	fields := []any{
		offset,
		uint32(c.FullSz),
		uint32(c.FullSz),
		uint16(c.StartMip),
		uint16(c.EndMip),
		uint32(0xBAAD),
	}
	for _, v := range fields {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("bsabuild: writing BA2 chunk: %w", err)
		}
	}
	return nil
}
