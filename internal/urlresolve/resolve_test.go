package urlresolve_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/north-cloud/mirror/internal/urlresolve"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	const base = "https://site.example/a/b/index.html"

	tests := []struct {
		name string
		base string
		ref  string
		want string
	}{
		{"parent directory", base, "../img/x.png", "https://site.example/a/img/x.png"},
		{"two parent directories", "https://s.example/a/b/c.html", "../../x.css", "https://s.example/x.css"},
		{"absolute unchanged", base, "https://cdn.example/lib.js", "https://cdn.example/lib.js"},
		{"absolute with parent segment unchanged", base, "https://cdn.example/a/../b.png", "https://cdn.example/a/../b.png"},
		{"protocol relative", base, "//cdn.example/lib.js", "https://cdn.example/lib.js"},
		{"root relative", base, "/css/site.css", "https://site.example/css/site.css"},
		{"root relative trailing slash", base, "/docs/", "https://site.example/docs"},
		{"sibling", base, "img/x.png", "https://site.example/a/b/img/x.png"},
		{"dot slash sibling", "https://x.example/index.html", "./a.png", "https://x.example/a.png"},
		{"encoded space", base, " my%20photo.png ", "https://site.example/a/b/my photo.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, urlresolve.Resolve(tt.base, tt.ref))
		})
	}
}

func TestResolve_IsDeterministic(t *testing.T) {
	t.Parallel()

	refs := []string{"../img/x.png", "//a.example/b", "/c", "d/e.png", "", "%20"}
	for _, ref := range refs {
		first := urlresolve.Resolve("https://site.example/a/b/index.html", ref)
		second := urlresolve.Resolve("https://site.example/a/b/index.html", ref)
		assert.Equal(t, first, second, ref)
	}
}

func TestResolve_EquivalentReferencesShareIdentity(t *testing.T) {
	t.Parallel()

	const base = "https://x.example/index.html"

	assert.Equal(t,
		urlresolve.Resolve(base, "https://x.example/a.png"),
		urlresolve.Resolve(base, "./a.png"),
	)
}

func TestIsSkippable(t *testing.T) {
	t.Parallel()

	skipped := []string{
		"", "  ", "#top", "/",
		"javascript:void(0)", "JavaScript:go()",
		"mailto:a@b.example", "tel:+15551234", "sms:+15551234",
		"about:blank", "data:text/html,<p>x</p>", "ftp://files.example/a.zip",
	}
	for _, raw := range skipped {
		assert.True(t, urlresolve.IsSkippable(raw), raw)
	}

	kept := []string{
		"page.html", "/about", "https://x.example", "HTTP://X.EXAMPLE/a",
		"//cdn.example/lib.js", "../img/x.png", "/search?q=a:b", "?page=2",
	}
	for _, raw := range kept {
		assert.False(t, urlresolve.IsSkippable(raw), raw)
	}
}

func TestScheme(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "tel", urlresolve.Scheme("tel:+15551234"))
	assert.Equal(t, "https", urlresolve.Scheme("https://x.example"))
	assert.Equal(t, "", urlresolve.Scheme("//x.example/a"))
	assert.Equal(t, "", urlresolve.Scheme("/a:b"))
	assert.Equal(t, "", urlresolve.Scheme("1tel:2"))
}

func TestExt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ".png", urlresolve.Ext("https://x.example/a.PNG?size=2#frag"))
	assert.Equal(t, "", urlresolve.Ext("https://site.example"))
	assert.Equal(t, "", urlresolve.Ext("https://site.example/page"))
	assert.Equal(t, "", urlresolve.Ext("https://site.example/v1.2/page"))
	assert.Equal(t, ".gz", urlresolve.Ext("https://site.example/file.tar.gz"))
	assert.Equal(t, "", urlresolve.Ext("https://site.example/file.verylongext"))
}

func TestFilename(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "75493a76b5762cd7e1656bfdc7fd0092.png", urlresolve.Filename("https://x.example/a.png", ".jpg"))
	assert.Equal(t, "d0d63622c5c0d88590ab906f1bdb7d5f.html", urlresolve.Filename("https://site.example/page", ".html"))
}

func TestFragment(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "#page=2", urlresolve.Fragment("https://x.example/doc.pdf#page=2"))
	assert.Equal(t, "", urlresolve.Fragment("https://x.example/doc.pdf"))
	assert.Equal(t, "https://x.example/doc.pdf", urlresolve.StripQueryAndFragment("https://x.example/doc.pdf?dl=1#page=2"))
}

func TestStripFragment(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://x.example/doc.pdf?dl=1", urlresolve.StripFragment("https://x.example/doc.pdf?dl=1#page=2"))
	assert.Equal(t, "https://x.example/a", urlresolve.StripFragment("https://x.example/a"))
}
