package urlresolve

import (
	"crypto/md5" //nolint:gosec // content addressing, not security
	"encoding/hex"
	"path"
	"strings"
)

// maxExtLen guards against treating a dotted path segment as an extension.
const maxExtLen = 6

// Ext returns the lower-cased extension of the URL path, ignoring query and
// fragment. It returns "" when the last path segment has no extension.
func Ext(rawURL string) string {
	clean := StripQueryAndFragment(rawURL)
	if idx := strings.Index(clean, "://"); idx >= 0 {
		rest := clean[idx+3:]
		slash := strings.Index(rest, "/")
		if slash < 0 {
			return ""
		}
		clean = rest[slash:]
	}

	ext := strings.ToLower(path.Ext(clean))
	if len(ext) > maxExtLen {
		return ""
	}
	return ext
}

// Filename derives the archive name for rawURL: the hex md5 of the full URL
// followed by the URL's extension, or defaultExt when it has none.
func Filename(rawURL, defaultExt string) string {
	sum := md5.Sum([]byte(rawURL)) //nolint:gosec // content addressing, not security
	ext := Ext(rawURL)
	if ext == "" {
		ext = defaultExt
	}
	return hex.EncodeToString(sum[:]) + ext
}
