// Package urlnorm canonicalizes discovered image URLs.
package urlnorm

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	ajioSizePattern    = regexp.MustCompile(`-\d+Wx\d+H-`)
	lowQualityKeywords = regexp.MustCompile(`(?i)(small|thumb|tiny|mobile|low|min)`)
	sizeParams         = []*regexp.Regexp{
		regexp.MustCompile(`([?&])(?:w|width|h|height)=\d+`),
		regexp.MustCompile(`([?&])size=\d+x\d+`),
		regexp.MustCompile(`([?&])quality=\d+`),
	}
)

// Normalize rewrites an image URL to its highest quality form and drops its query.
// Keyword rewriting is substring based and can touch unrelated path segments
// such as a slug containing "min".
func Normalize(raw string) (out string) {
	if raw == "" || strings.HasPrefix(raw, "data:") {
		return raw
	}
	defer func() {
		if r := recover(); r != nil {
			out = raw
		}
	}()

	// Each pass either changes nothing or consumes a keyword, size parameter
	// or query, so the loop reaches a fixed point.
	out = raw
	for {
		next := applyRules(out)
		if next == out {
			return out
		}
		out = next
	}
}

func applyRules(u string) string {
	if strings.Contains(u, "assets.ajio.com") {
		u = ajioSizePattern.ReplaceAllString(u, "-1200Wx1500H-")
	}

	u = lowQualityKeywords.ReplaceAllString(u, "large")

	for _, p := range sizeParams {
		u = p.ReplaceAllStringFunc(u, func(m string) string {
			// keep the query marker so the remainder is still cut below
			if m[0] == '?' {
				return "?"
			}
			return ""
		})
	}

	if i := strings.Index(u, "?"); i >= 0 {
		u = u[:i]
	}
	return u
}

// BaseURL returns the URL without query or fragment.
func BaseURL(raw string) string {
	if strings.HasPrefix(raw, "data:") {
		return raw
	}
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i]
	}
	return raw
}

// Resolve turns a possibly relative image reference into an absolute URL.
func Resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return ""
	case strings.HasPrefix(ref, "data:"),
		strings.HasPrefix(ref, "http://"),
		strings.HasPrefix(ref, "https://"):
		return ref
	case strings.HasPrefix(ref, "//"):
		return "https:" + ref
	}

	if base == nil {
		return ref
	}
	if strings.HasPrefix(ref, "/") {
		return base.Scheme + "://" + base.Host + ref
	}

	rel, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(rel).String()
}

// HasImageExtension reports whether the URL path ends in a raster image extension.
func HasImageExtension(raw string) bool {
	base := strings.ToLower(BaseURL(raw))
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".webp", ".gif"} {
		if strings.HasSuffix(base, ext) {
			return true
		}
	}
	return false
}

// IsFetchable reports whether the URL is an http(s) or embedded image reference.
func IsFetchable(raw string) bool {
	return strings.HasPrefix(raw, "http://") ||
		strings.HasPrefix(raw, "https://") ||
		strings.HasPrefix(raw, "data:image")
}
