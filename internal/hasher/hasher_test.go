package hasher

import (
	"strings"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/require"
)

func TestXXHash64Base64MatchesRawDigest(t *testing.T) {
	data := "the quick brown fox"
	got, err := New().XXHash64Base64(strings.NewReader(data))
	require.NoError(t, err)

	want := EncodeU64(xxhash.Sum64String(data))
	require.Equal(t, want, got)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	const v = uint64(0xDEADBEEFCAFEF00D)
	require.Equal(t, v, mustDecode(t, EncodeU64(v)))
}

func mustDecode(t *testing.T, s string) uint64 {
	t.Helper()
	v, err := DecodeU64(s)
	require.NoError(t, err)
	return v
}
