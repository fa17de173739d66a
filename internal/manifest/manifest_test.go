package manifest

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnmarshalDirectiveDispatchesByType(t *testing.T) {
	d, err := UnmarshalDirective([]byte(`{"$type":"InlineFile, Wabbajack.Lib","Hash":"h1","Size":3,"To":"a.txt","SourceDataID":"blob1"}`))
	require.NoError(t, err)
	require.Equal(t, KindInlineFile, d.Kind())
	require.Equal(t, "a.txt", d.TargetPath())
	require.Equal(t, uint64(3), d.ExpectedSize())
	require.Equal(t, "h1", d.ExpectedHash())
}

func TestUnmarshalDirectiveNormalizesWindowsPathSeparators(t *testing.T) {
	d, err := UnmarshalDirective([]byte(`{"$type":"InlineFile","Hash":"h","Size":1,"To":"data\\sub\\a.txt","SourceDataID":"b"}`))
	require.NoError(t, err)
	require.Equal(t, "data/sub/a.txt", d.TargetPath())
}

func TestUnmarshalDirectiveRejectsUnknownKind(t *testing.T) {
	_, err := UnmarshalDirective([]byte(`{"$type":"SomeFutureDirective","Hash":"h","Size":1,"To":"a"}`))
	require.ErrorIs(t, err, ErrUnknownDirectiveKind)
}

func TestUnmarshalCreateBSADirectivePicksBSAShape(t *testing.T) {
	d, err := UnmarshalCreateBSADirective([]byte(`{
		"Hash":"out","Size":10,"To":"out.bsa","TempID":"t1",
		"State":{"ArchiveFlags":3,"FileFlags":0,"Magic":"BSA\u0000","Version":105},
		"FileStates":[{"FlipCompression":false,"Index":0,"Path":"x.nif"}]
	}`))
	require.NoError(t, err)
	cb := d.(CreateBSADirective)
	require.Equal(t, BuildBSA, cb.Format)
	require.Equal(t, uint64(105), cb.BSAState.Version)
}

func TestUnmarshalCreateBSADirectivePicksBA2Shape(t *testing.T) {
	d, err := UnmarshalCreateBSADirective([]byte(`{
		"Hash":"out","Size":10,"To":"out.ba2","TempID":"t2",
		"State":{"HasNameTable":true,"HeaderMagic":"BTDX","Type":1,"Version":1},
		"FileStates":[{"$type":"BA2File","Align":0,"Compressed":1,"DirHash":0,"Extension":"nif","Flags":0,"Index":0,"NameHash":0,"Path":"y.nif"}]
	}`))
	require.NoError(t, err)
	cb := d.(CreateBSADirective)
	require.Equal(t, BuildBA2, cb.Format)
	require.True(t, bool(cb.BA2State.HasNameTable))
	require.True(t, bool(cb.BA2FileStates[0].File.Compressed))
}

func TestModlistUnmarshalDecodesDirectivesAndLenientBool(t *testing.T) {
	raw := `{
		"Archives":[{"Hash":"h1","Meta":"","Name":"a.zip","Size":1,"State":{"$type":"HttpDownloader","Url":"http://example"}}],
		"Author":"tester","Description":"d","GameType":"SkyrimSE","Image":"","IsNSFW":"true","Name":"Test List",
		"Readme":"","Version":"1.0","WabbajackVersion":"3.0","Website":"",
		"Directives":[{"$type":"InlineFile","Hash":"h","Size":1,"To":"a.txt","SourceDataID":"b"}]
	}`
	var m Modlist
	require.NoError(t, m.UnmarshalJSON([]byte(raw)))
	require.True(t, bool(m.IsNSFW))
	require.Len(t, m.Directives, 1)
	require.Equal(t, KindInlineFile, m.Directives[0].Kind())
	require.Len(t, m.Archives, 1)
	require.Equal(t, DownloadHTTP, m.Archives[0].State.Kind)
}

func TestModlistValidateRejectsCaseInsensitiveTargetCollision(t *testing.T) {
	m := &Modlist{
		Directives: []Directive{
			InlineFileDirective{directiveCommon: directiveCommon{To: "Data/a.txt"}, SourceDataID: "b1"},
			InlineFileDirective{directiveCommon: directiveCommon{To: "data/A.txt"}, SourceDataID: "b2"},
		},
	}
	err := m.Validate()
	require.Error(t, err)
}

func TestModlistValidateRejectsUnresolvedArchiveHash(t *testing.T) {
	m := &Modlist{
		Directives: []Directive{
			FromArchiveDirective{directiveCommon: directiveCommon{To: "a.esp"}, ArchiveHashPath: ArchiveHashPath{"missing-hash"}},
		},
	}
	err := m.Validate()
	require.Error(t, err)
}

func TestModlistValidatePassesForResolvableDirectives(t *testing.T) {
	m := &Modlist{
		Archives: []Archive{{ArchiveDescriptor: ArchiveDescriptor{Hash: "h1", Name: "a.zip", Size: 10}}},
		Directives: []Directive{
			FromArchiveDirective{directiveCommon: directiveCommon{To: "a.esp"}, ArchiveHashPath: ArchiveHashPath{"h1", "a.esp"}},
		},
	}
	require.NoError(t, m.Validate())
}

func buildTestBundle(t *testing.T, modlistJSON string, blobs map[string][]byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.wabbajack")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create(modlistEntryName)
	require.NoError(t, err)
	_, err = w.Write([]byte(modlistJSON))
	require.NoError(t, err)

	for name, content := range blobs {
		bw, err := zw.Create(name)
		require.NoError(t, err)
		_, err = bw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

func TestLoadDecodesBundleAndOpensBlob(t *testing.T) {
	path := buildTestBundle(t, `{"Name":"Test","Directives":[]}`, map[string][]byte{"blob1": []byte("hello")})

	b, err := Load(path)
	require.NoError(t, err)
	defer b.Close()

	require.Equal(t, "Test", b.Modlist.Name)

	rc, err := b.OpenBlob("blob1")
	require.NoError(t, err)
	defer rc.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(rc)
	require.NoError(t, err)
	require.Equal(t, "hello", buf.String())
}

func TestLoadFailsWithoutModlistEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.wabbajack")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = Load(path)
	require.Error(t, err)
}
