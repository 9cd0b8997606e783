// Package urlresolve turns the references found in mirrored documents into
// absolute URLs and derives the archive filenames used for them.
package urlresolve

import (
	"net/url"
	"strings"
)

const (
	encodedSpace = "%20"
	parentMarker = ".."
)

// Resolve resolves ref against base. It never fails: malformed input yields a
// best-effort URL and reachability is left to the fetch layer.
//
// Rules are applied in order:
//  1. "%20" becomes a space and surrounding whitespace is trimmed
//  2. refs starting with "http" are returned unchanged
//  3. protocol-relative refs ("//host/x") get an https scheme
//  4. refs containing "../" drop n+1 trailing segments of base, where n is
//     the number of ".." segments, and append the remainder of ref
//  5. root-relative refs are joined to the scheme and host of base
//  6. anything else replaces the last segment of base
func Resolve(base, ref string) string {
	ref = strings.TrimSpace(strings.ReplaceAll(ref, encodedSpace, " "))

	switch {
	case strings.HasPrefix(ref, "http"):
		return ref
	case strings.HasPrefix(ref, "//"):
		return "https:" + ref
	case strings.Contains(ref, "../"):
		return resolveParent(base, ref)
	case strings.HasPrefix(ref, "/"):
		return resolveRoot(base, ref)
	default:
		return resolveSibling(base, ref)
	}
}

func resolveParent(base, ref string) string {
	refParts := strings.Split(ref, "/")

	jumps := 0
	for _, part := range refParts {
		if part == parentMarker {
			jumps++
		}
	}

	baseParts := strings.Split(base, "/")
	keep := len(baseParts) - (jumps + 1)
	if keep < 0 {
		keep = 0
	}

	rest := refParts[jumps:]

	parts := make([]string, 0, keep+len(rest))
	parts = append(parts, baseParts[:keep]...)
	parts = append(parts, rest...)

	return strings.Join(parts, "/")
}

func resolveRoot(base, ref string) string {
	parsed, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return parsed.Scheme + "://" + parsed.Host + "/" + strings.Trim(ref, "/")
}

func resolveSibling(base, ref string) string {
	ref = strings.TrimPrefix(ref, "./")

	idx := strings.LastIndex(base, "/")
	if idx < 0 {
		return ref
	}
	return base[:idx] + "/" + ref
}

// IsSkippable reports whether a raw attribute value is not an external
// reference at all: empty, a same-document fragment, the bare site root, or
// a URL with a scheme other than http and https (javascript:, mailto:, tel:,
// about:, data: and the like). Protocol-relative refs are not skipped.
func IsSkippable(raw string) bool {
	raw = strings.TrimSpace(raw)

	switch {
	case raw == "", raw == "/":
		return true
	case strings.HasPrefix(raw, "#"):
		return true
	default:
		scheme := strings.ToLower(Scheme(raw))
		return scheme != "" && scheme != "http" && scheme != "https"
	}
}

// Scheme returns the scheme of raw, or "" for relative references.
func Scheme(raw string) string {
	idx := strings.Index(raw, ":")
	if idx <= 0 {
		return ""
	}
	for i, c := range raw[:idx] {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return ""
		}
	}
	return raw[:idx]
}

// IsData reports whether raw is an inline data: URI.
func IsData(raw string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(raw)), "data:")
}

// StripQueryAndFragment removes everything from the first '?' or '#'.
func StripQueryAndFragment(rawURL string) string {
	if idx := strings.IndexAny(rawURL, "?#"); idx >= 0 {
		return rawURL[:idx]
	}
	return rawURL
}

// Fragment returns the "#..." suffix of rawURL, or "" when there is none.
func Fragment(rawURL string) string {
	if idx := strings.Index(rawURL, "#"); idx >= 0 {
		return rawURL[idx:]
	}
	return ""
}

// StripFragment removes the "#..." suffix of rawURL. Two references that
// differ only by fragment name the same resource.
func StripFragment(rawURL string) string {
	if idx := strings.Index(rawURL, "#"); idx >= 0 {
		return rawURL[:idx]
	}
	return rawURL
}
