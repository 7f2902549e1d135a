package domain

import (
	"net/url"
	"strings"
)

// peopleSegments are URL path segments identifying person/entity
// pages (faculty profiles, staff directories).
var peopleSegments = map[string]bool{
	"people":    true,
	"faculty":   true,
	"staff":     true,
	"profile":   true,
	"profiles":  true,
	"directory": true,
	"person":    true,
}

// IsPeoplePage reports whether a page URL looks like a person or
// directory page. Used for the scorer's path bonus and the primary
// image rule.
func IsPeoplePage(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	for _, seg := range strings.Split(strings.ToLower(parsed.Path), "/") {
		if peopleSegments[seg] {
			return true
		}
	}
	return false
}
