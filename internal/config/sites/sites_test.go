package sites_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/mirror/internal/config/sites"
)

const sitesYAML = `
sites:
  - host: Docs.Example.org
    omit: "nav.sidebar, footer"
    main_area: "#content"
    follow_links: false
  - host: example.org
    load_scripts: "true"
    readability: true
`

func TestParse_DecodesRules(t *testing.T) {
	t.Parallel()

	rules, err := sites.Parse([]byte(sitesYAML))
	require.NoError(t, err)
	require.Equal(t, 2, rules.Len())

	docs, ok := rules.For("docs.example.org")
	require.True(t, ok)
	assert.Equal(t, []string{"nav.sidebar", "footer"}, docs.Omit)
	assert.Equal(t, "#content", docs.MainArea)
	require.NotNil(t, docs.FollowLinks)
	assert.False(t, *docs.FollowLinks)

	www, ok := rules.For("WWW.example.org")
	require.True(t, ok)
	assert.True(t, www.LoadScripts)
	assert.True(t, www.Readability)
	assert.Nil(t, www.FollowLinks)
}

func TestFor_NoMatch(t *testing.T) {
	t.Parallel()

	rules, err := sites.Parse([]byte(sitesYAML))
	require.NoError(t, err)

	_, ok := rules.For("notexample.org")
	assert.False(t, ok)

	var nilRules *sites.Rules
	_, ok = nilRules.For("example.org")
	assert.False(t, ok)
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	_, err := sites.Parse([]byte("sites:\n  - host: a.example\n    omitt: [x]\n"))
	assert.ErrorIs(t, err, sites.ErrInvalidRule)
}

func TestParse_RequiresHost(t *testing.T) {
	t.Parallel()

	_, err := sites.Parse([]byte("sites:\n  - main_area: main\n"))
	assert.ErrorIs(t, err, sites.ErrMissingHost)
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	rules, err := sites.Load(filepath.Join(t.TempDir(), "sites.yml"))
	require.NoError(t, err)
	assert.Zero(t, rules.Len())
}

func TestLoad_ReadsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sites.yml")
	require.NoError(t, os.WriteFile(path, []byte(sitesYAML), 0o600))

	rules, err := sites.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, rules.Len())
}
