package pattern

import (
	"testing"

	"github.com/stretchr/testify/require"

	"pkgtool/internal/pkgname"
)

func mustName(t *testing.T, s string) pkgname.Pkgname {
	t.Helper()
	n, err := pkgname.ParseName(s)
	require.NoError(t, err)
	return n
}

func buildIndex(t *testing.T, names ...string) *pkgname.NameIndex {
	t.Helper()
	ns := make([]pkgname.Pkgname, len(names))
	for i, s := range names {
		ns[i] = mustName(t, s)
	}
	return pkgname.NewNameIndex(ns)
}

func TestExpandAlternatives(t *testing.T) {
	out, err := expandAlternatives("foo{bar,baz}-[0-9]*")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"foobar-[0-9]*", "foobaz-[0-9]*"}, out)
}

func TestExpandAlternativesNested(t *testing.T) {
	out, err := expandAlternatives("pre{a,{b,c}}post")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"preapost", "prebpost", "precpost"}, out)
}

func TestExpandAlternativesUnbalancedRejected(t *testing.T) {
	_, err := expandAlternatives("foo{bar")
	require.Error(t, err)
	_, err = expandAlternatives("foo}bar")
	require.Error(t, err)
}

func TestAlternativesCardinality(t *testing.T) {
	out, err := expandAlternatives("a{1,2,3}b{x,y}")
	require.NoError(t, err)
	require.Len(t, out, 6)
	for _, s := range out {
		require.NotContains(t, s, "{")
		require.NotContains(t, s, "}")
	}
}

func TestVersionRangeBasic(t *testing.T) {
	idx := buildIndex(t, "openssl-1.0.2zh", "openssl-1.1.1w", "openssl-3.0.12")
	p, err := ParsePattern("openssl>=1.1<3")
	require.NoError(t, err)

	var got []string
	ForEach(p, idx, func(n pkgname.Pkgname) bool {
		got = append(got, n.Format())
		return true
	})
	require.Equal(t, []string{"openssl-1.1.1w"}, got)
}

func TestVersionRangeMissingOperandIsError(t *testing.T) {
	_, err := ParsePattern("openssl>=")
	require.Error(t, err)
}

func TestVersionRangeSecondBoundMustFollowGTOrGTE(t *testing.T) {
	_, err := ParsePattern("openssl<1.0>2.0")
	require.Error(t, err)
}

func TestGlobMatchesSuffix(t *testing.T) {
	idx := buildIndex(t, "vim-9.0", "vim-9.1", "emacs-29.0")
	p, err := ParsePattern("vim-[0-9]*")
	require.NoError(t, err)
	n, ok := Best(p, idx)
	require.True(t, ok)
	require.Equal(t, "vim-9.1", n.Format())
}

func TestGlobRetriesWithVersionSuffix(t *testing.T) {
	idx := buildIndex(t, "vim-9.0")
	p, err := ParsePattern("vim")
	require.NoError(t, err)
	n, ok := Best(p, idx)
	require.True(t, ok)
	require.Equal(t, "vim-9.0", n.Format())
}
