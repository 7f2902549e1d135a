package web

import (
	"net/url"
	"path"
	"strings"
)

// trackingParams are query parameters stripped during canonicalisation.
// Matching is exact except utm_*, which matches by prefix.
var trackingParams = map[string]bool{
	"gclid":   true,
	"fbclid":  true,
	"msclkid": true,
}

// CanonicalURL normalises a URL so that two addresses of the same
// page compare equal: lower-case scheme and host, no fragment, no
// default port, no tracking parameters, "." and ".." path segments
// resolved, trailing slash trimmed (except root).
func CanonicalURL(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""

	// Drop the scheme's default port.
	switch {
	case parsed.Scheme == "http" && strings.HasSuffix(parsed.Host, ":80"):
		parsed.Host = strings.TrimSuffix(parsed.Host, ":80")
	case parsed.Scheme == "https" && strings.HasSuffix(parsed.Host, ":443"):
		parsed.Host = strings.TrimSuffix(parsed.Host, ":443")
	}

	// Drop tracking parameters, preserving the order of the rest.
	if parsed.RawQuery != "" {
		var kept []string
		for _, pair := range strings.Split(parsed.RawQuery, "&") {
			key := pair
			if i := strings.IndexByte(pair, '='); i >= 0 {
				key = pair[:i]
			}
			if strings.HasPrefix(key, "utm_") || trackingParams[key] {
				continue
			}
			if pair != "" {
				kept = append(kept, pair)
			}
		}
		parsed.RawQuery = strings.Join(kept, "&")
	}

	// Resolve "." and ".." segments.
	if parsed.Path != "" {
		cleaned := path.Clean(parsed.Path)
		if cleaned == "." {
			cleaned = "/"
		}
		parsed.Path = cleaned
	}

	// Trim trailing slash, keep root.
	if parsed.Path != "/" {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	}

	return parsed.String(), nil
}

// ResolveURL resolves a possibly relative reference against a base
// URL, returning "" for non-content schemes.
func ResolveURL(href string, base *url.URL) string {
	if href == "" ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "data:") ||
		strings.HasPrefix(href, "#") {
		return ""
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}

	resolved := base.ResolveReference(parsed)
	resolved.Fragment = ""
	return resolved.String()
}
