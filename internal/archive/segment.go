package archive

import (
	"errors"
	"fmt"
	"io"
)

// SegmentReader is a bounded, seekable view over a byte range of an
// underlying random-access source. Adapted from the teacher's
// internal/ChunkStream.go (a chunk-bounded io.ReadWriteSeeker used to stream
// one piece of a larger download); here it is read-only and keyed by
// absolute [start,end) offsets rather than a chunk index, since C2 uses it
// to hand the executor a view onto one entry's bytes inside a larger spilled
// archive file instead of onto one download chunk.
type SegmentReader struct {
	src    io.ReaderAt
	start  int64
	end    int64
	curPos int64
	closer io.Closer
}

// NewSegmentReader wraps [start,end) of src as an io.ReadSeeker. If src also
// implements io.Closer, Close releases it.
func NewSegmentReader(src io.ReaderAt, start, end int64) (*SegmentReader, error) {
	if end < start {
		return nil, fmt.Errorf("segment reader: end %d precedes start %d", end, start)
	}
	c, _ := src.(io.Closer)
	return &SegmentReader{src: src, start: start, end: end, closer: c}, nil
}

func (s *SegmentReader) size() int64   { return s.end - s.start }
func (s *SegmentReader) remain() int64 { return s.size() - s.curPos }

func (s *SegmentReader) Read(p []byte) (int, error) {
	if s.remain() <= 0 {
		return 0, io.EOF
	}
	toRead := int64(len(p))
	if toRead > s.remain() {
		toRead = s.remain()
	}
	n, err := s.src.ReadAt(p[:toRead], s.start+s.curPos)
	s.curPos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (s *SegmentReader) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = s.curPos + offset
	case io.SeekEnd:
		newPos = s.size() + offset
	default:
		return 0, errors.New("segment reader: invalid whence")
	}
	if newPos < 0 || newPos > s.size() {
		return 0, fmt.Errorf("segment reader: seek out of range: %d (size %d)", newPos, s.size())
	}
	s.curPos = newPos
	return newPos, nil
}

func (s *SegmentReader) Length() int64 { return s.size() }

func (s *SegmentReader) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// CopyTo streams the segment's full contents to dst, from the current
// position onward.
func (s *SegmentReader) CopyTo(dst io.Writer, bufferSize int) (int64, error) {
	if bufferSize <= 0 {
		bufferSize = 32 * 1024
	}
	return io.CopyBuffer(dst, io.LimitReader(s, s.remain()), make([]byte, bufferSize))
}
