package pkgconf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleConf = `# tags
desktop = gui
server = headless
both = gui+x11 headless

lang/python311 gui headless
www/firefox gui
sysutils/cron both
devel/unconditional
`

func TestParseDistinguishesTagsFromPkgpaths(t *testing.T) {
	f, err := Parse(strings.NewReader(sampleConf))
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"desktop", "server", "both"}, f.Tags())

	var pkgpaths []string
	for _, d := range f.Defs {
		if !d.IsTag {
			pkgpaths = append(pkgpaths, d.PkgPath)
		}
	}
	require.ElementsMatch(t, []string{"lang/python311", "www/firefox", "sysutils/cron", "devel/unconditional"}, pkgpaths)
}

func TestUnconditionalPkgpathAlwaysMatches(t *testing.T) {
	f, err := Parse(strings.NewReader(sampleConf))
	require.NoError(t, err)
	got := Filter(f, nil, nil, nil)
	require.True(t, got["devel/unconditional"])
}

func TestDisjunctionOfAlternatives(t *testing.T) {
	f, err := Parse(strings.NewReader(sampleConf))
	require.NoError(t, err)
	got := Filter(f, []string{"gui"}, nil, nil)
	require.True(t, got["lang/python311"])
	require.True(t, got["www/firefox"])
	require.False(t, got["sysutils/cron"])
}

func TestConjunctionRequiresAllTerms(t *testing.T) {
	f, err := Parse(strings.NewReader(sampleConf))
	require.NoError(t, err)
	got := Filter(f, []string{"gui", "x11"}, nil, nil)
	require.True(t, got["sysutils/cron"])

	got2 := Filter(f, []string{"gui"}, nil, nil)
	require.False(t, got2["sysutils/cron"])
}

func TestCompositeTagDerivedFromHeadless(t *testing.T) {
	f, err := Parse(strings.NewReader(sampleConf))
	require.NoError(t, err)
	got := Filter(f, []string{"headless"}, nil, nil)
	require.True(t, got["sysutils/cron"])
	require.True(t, got["lang/python311"])
}

func TestNegationExcludesMatch(t *testing.T) {
	conf := `PAT = -excluded
devel/foo excluded
devel/bar PAT
`
	f, err := Parse(strings.NewReader(conf))
	require.NoError(t, err)

	got := Filter(f, nil, nil, nil)
	require.False(t, got["devel/foo"])
	require.True(t, got["devel/bar"])

	got2 := Filter(f, []string{"excluded"}, nil, nil)
	require.True(t, got2["devel/foo"])
	require.False(t, got2["devel/bar"])
}

func TestExcludedTagsOverrideIncluded(t *testing.T) {
	conf := `lang/python311 gui
`
	f, err := Parse(strings.NewReader(conf))
	require.NoError(t, err)
	got := Filter(f, []string{"gui"}, nil, []string{"gui"})
	require.False(t, got["lang/python311"])
}

func TestParseRejectsMalformedLine(t *testing.T) {
	_, err := Parse(strings.NewReader("not_a_pkgpath_or_tag_def\n"))
	require.Error(t, err)
}
