package transport

import (
	"net/url"
	"strings"
)

// normalizeOrigin lower-cases scheme and host and drops any path, so the
// Origin header we send matches what origin-checking servers compare against.
func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
