package crawler

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// staticExtensions name asset types a page crawl never follows.
var staticExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".svg": true, ".webp": true, ".ico": true, ".bmp": true,
	".css": true, ".js": true, ".mjs": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
	".mp4": true, ".webm": true, ".mp3": true, ".wav": true,
	".zip": true, ".tar": true, ".gz": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
}

// Rules decides which discovered URLs enter the frontier.
type Rules struct {
	host    string
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// NewRules builds the admission rules for a crawl rooted at baseURL.
// Include and exclude are regular expressions matched against the
// full URL; an empty include list admits everything on the host.
func NewRules(baseURL string, include, exclude []string) (*Rules, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	r := &Rules{host: strings.ToLower(parsed.Host)}
	for _, pat := range include {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, err
		}
		r.include = append(r.include, re)
	}
	for _, pat := range exclude {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, err
		}
		r.exclude = append(r.exclude, re)
	}
	return r, nil
}

// Admit reports whether a discovered URL belongs in the crawl:
// same host, not a static asset, passing the include patterns (when
// any are set) and failing none of the exclude patterns.
func (r *Rules) Admit(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if !strings.EqualFold(parsed.Host, r.host) {
		return false
	}
	if staticExtensions[strings.ToLower(path.Ext(parsed.Path))] {
		return false
	}
	for _, re := range r.exclude {
		if re.MatchString(rawURL) {
			return false
		}
	}
	if len(r.include) == 0 {
		return true
	}
	for _, re := range r.include {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}
