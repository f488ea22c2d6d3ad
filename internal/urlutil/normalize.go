package urlutil

import (
	"net/url"
	"strings"

	"github.com/goware/urlx"
)

// Share and campaign parameters the networks append to post links
var trackingParams = []string{
	"utm_source", "utm_medium", "utm_campaign",
	"utm_term", "utm_content",
	"fbclid", "gclid", "mc_cid", "mc_eid",
	"igshid", "igsh", "si", "feature",
	"ref", "ref_src", "ref_url",
}

// Normalize canonicalizes a post URL:
// - lowercases scheme and host and drops default ports
// - removes tracking parameters and sorts the rest
// - removes trailing slashes (except the root path) and fragments
func Normalize(rawURL string) (string, error) {
	parsed, err := urlx.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}

	normalized, err := urlx.Normalize(parsed)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(normalized)
	if err != nil {
		return normalized, nil
	}

	q := u.Query()
	for _, param := range trackingParams {
		q.Del(param)
	}
	u.RawQuery = q.Encode()

	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	u.Fragment = ""

	return u.String(), nil
}

// NormalizeOrKeep returns the normalized URL, or the trimmed input when it
// cannot be parsed
func NormalizeOrKeep(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	if normalized, err := Normalize(rawURL); err == nil {
		return normalized
	}
	return rawURL
}
