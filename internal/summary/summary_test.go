package summary

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pkgtool/internal/rlog"
)

const sampleSummary = `PKGNAME=openssl-1.1.1w
PKGPATH=security/openssl
FILE_NAME=openssl-1.1.1w.tgz
DEPENDS=zlib>=1.2

PKGNAME=zlib-1.3
PKGPATH=devel/zlib

PKGNAME=incomplete-1.0
FILE_NAME=incomplete-1.0.tgz
`

func TestParseTextDiscardsIncompleteParagraphs(t *testing.T) {
	s, err := ParseText(strings.NewReader(sampleSummary))
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())

	v, ok := s.Get("openssl-1.1.1w")
	require.True(t, ok)
	require.Equal(t, "security/openssl", v.PkgPath)
	require.Equal(t, []string{"zlib>=1.2"}, v.Depends)

	_, ok = s.Get("incomplete-1.0")
	require.False(t, ok)
}

func TestMergeIsCommutative(t *testing.T) {
	a, err := ParseText(strings.NewReader("PKGNAME=a-1.0\nPKGPATH=lang/a\n"))
	require.NoError(t, err)
	b, err := ParseText(strings.NewReader("PKGNAME=b-1.0\nPKGPATH=lang/b\n"))
	require.NoError(t, err)

	merged1 := New()
	merged1.Merge(a)
	merged1.Merge(b)

	merged2 := New()
	merged2.Merge(b)
	merged2.Merge(a)

	require.Equal(t, merged1.Len(), merged2.Len())
	for _, v := range merged1.All() {
		got, ok := merged2.Get(v.PkgName)
		require.True(t, ok)
		require.Equal(t, v, got)
	}
}

func TestBuildPkgmapGroupsByPathThenBase(t *testing.T) {
	s, err := ParseText(strings.NewReader(sampleSummary))
	require.NoError(t, err)
	m := BuildPkgmap(s)
	require.Equal(t, []string{"openssl"}, m.Bases("security/openssl"))
}

type stubFetcher struct {
	bodies map[string]string
}

func (f stubFetcher) Fetch(url string) (io.ReadCloser, error) {
	body, ok := f.bodies[url]
	if !ok {
		return nil, ErrNotAvailable
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func TestLoadRemoteTriesCandidatesInOrder(t *testing.T) {
	f := stubFetcher{bodies: map[string]string{
		"https://example.test/packages/pkg_summary.txt": "PKGNAME=a-1.0\nPKGPATH=lang/a\n",
	}}
	s, err := Load("https://example.test/packages", f, nil, rlog.NoOpLogger{})
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())
}

func TestLoadLocalSkipsStaleCandidate(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "pkg_summary.txt")
	require.NoError(t, os.WriteFile(stale, []byte("PKGNAME=old-1.0\nPKGPATH=lang/old\n"), 0o644))

	old := time.Now().Add(-1 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	fresh := filepath.Join(dir, "some-pkg-2.0.tgz")
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o644))

	_, err := Load(dir, nil, nil, rlog.NoOpLogger{})
	require.Error(t, err)
}

type stubXargs struct{ out string }

func (s stubXargs) Run(names []string) (string, error) { return s.out, nil }

func TestBinaryFallbackFoldsPartials(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a-1.0.tgz", "b-1.0.tgz"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	fb := &BinaryFallback{
		Dir:     dir,
		PkgSufx: ".tgz",
		Runner:  stubXargs{out: "PKGNAME=a-1.0\nPKGPATH=lang/a\n\nPKGNAME=b-1.0\nPKGPATH=lang/b\n"},
		Workers: 2,
	}
	s, err := fb.Scan()
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
}
