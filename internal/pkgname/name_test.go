package pkgname

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseNameRoundTrip(t *testing.T) {
	cases := []string{"vim-9.0.1", "py311-setuptools-68.0", "openssl-1.1.1w", "foo-nb5"}
	for _, s := range cases {
		n, err := ParseName(s)
		require.NoError(t, err, s)
		again, err := ParseName(n.Format())
		require.NoError(t, err)
		require.Equal(t, 0, CompareNames(n, again), "round trip mismatch for %q", s)
	}
}

func TestParseNameRejectsNoDash(t *testing.T) {
	_, err := ParseName("noversionhere")
	require.Error(t, err)
}

func TestCompareNamesLexicographicThenVersion(t *testing.T) {
	a, _ := ParseName("aaa-1.0")
	b, _ := ParseName("bbb-0.1")
	require.True(t, CompareNames(a, b) < 0)

	c, _ := ParseName("aaa-2.0")
	require.True(t, CompareNames(a, c) < 0)
}

func TestParsePkgpathRequiresSlash(t *testing.T) {
	_, err := ParsePkgpath("noslash")
	require.Error(t, err)

	p, err := ParsePkgpath("editors/vim")
	require.NoError(t, err)
	require.Equal(t, "editors", p.Category)
	require.Equal(t, "vim", p.Subdir)
	require.Equal(t, "editors/vim", p.Format())
}
