package rewriter

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/jonesrussell/north-cloud/mirror/internal/archive"
	"github.com/jonesrussell/north-cloud/mirror/internal/handler"
	"github.com/jonesrussell/north-cloud/mirror/internal/urlresolve"
)

var cssURLPattern = regexp.MustCompile(`url\(\s*['"]?([^'")]+?)['"]?\s*\)`)

func (r *Rewriter) writeStylesheet(ctx context.Context, cssURL string) (string, error) {
	name := urlresolve.Filename(cssURL, ".css")
	if ref := archive.Ref(archive.DirCSS, name); r.deps.Writer.Contains(ref) {
		return ref, nil
	}

	body, err := r.deps.Reader.Read(ctx, cssURL, false)
	if err != nil {
		return "", handler.ReadFailure(cssURL, err)
	}

	css := r.RewriteCSS(ctx, cssURL, string(body))
	ref, err := r.deps.Writer.WriteText(ctx, archive.DirCSS, name, css)
	if err != nil {
		return "", handler.BrokenSource(cssURL, fmt.Errorf("write stylesheet: %w", err))
	}
	return ref, nil
}

// RewriteCSS archives the url(...) references of a stylesheet served from
// cssURL and points them at the archived copies, relative to the css
// directory. References that fail keep their original value.
func (r *Rewriter) RewriteCSS(ctx context.Context, cssURL, css string) string {
	return cssURLPattern.ReplaceAllStringFunc(css, func(match string) string {
		sub := cssURLPattern.FindStringSubmatch(match)
		raw := strings.TrimSpace(sub[1])
		if urlresolve.IsData(raw) || urlresolve.IsSkippable(raw) {
			return match
		}

		abs := urlresolve.Resolve(cssURL, raw)
		ref, err := r.leaf(ctx, abs, archive.DirCSS, "")
		if err != nil {
			return match
		}
		return "url('" + relativeToCSS(ref) + urlresolve.Fragment(abs) + "')"
	})
}

// relativeToCSS turns an archive reference into one usable from a file in
// the css directory.
func relativeToCSS(ref string) string {
	if path.Dir(ref) == archive.DirCSS {
		return path.Base(ref)
	}
	return "../" + ref
}
