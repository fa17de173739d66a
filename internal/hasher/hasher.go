// Package hasher implements capability.Hasher using the engine's canonical
// content hash: xxhash-64 over the full stream, encoded as standard base64
// of its little-endian 8-byte representation.
//
// Grounded on original_source's to_base_64_from_u64/to_u64_from_base_64
// (the Rust implementation's hash encoding), reimplemented in Go against
// github.com/cespare/xxhash/v2 rather than any stdlib hash, since
// encoding/... has no xxhash implementation and the wire format's hashes
// are xxhash-64, not any FNV/CRC stdlib variant.
package hasher

import (
	"encoding/base64"
	"encoding/binary"
	"io"

	"github.com/cespare/xxhash/v2"
)

// Hasher computes xxhash-64 digests and encodes them the way the manifest's
// Hash fields are encoded.
type Hasher struct{}

func New() Hasher { return Hasher{} }

// XXHash64Base64 hashes r's full contents and returns the base64 (standard
// alphabet) of the digest's little-endian byte encoding.
func (Hasher) XXHash64Base64(r io.Reader) (string, error) {
	h := xxhash.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return EncodeU64(h.Sum64()), nil
}

// EncodeU64 encodes a raw xxhash-64 digest the way the manifest wire format
// does: little-endian bytes, standard base64.
func EncodeU64(v uint64) string {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return base64.StdEncoding.EncodeToString(b[:])
}

// DecodeU64 reverses EncodeU64, for callers that need the raw digest (e.g.
// comparing against a cached value without re-encoding).
func DecodeU64(s string) (uint64, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return 0, err
	}
	if len(b) != 8 {
		return 0, io.ErrUnexpectedEOF
	}
	return binary.LittleEndian.Uint64(b), nil
}
