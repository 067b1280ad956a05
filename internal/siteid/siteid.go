// Package siteid normalizes arbitrary URLs into canonical site keys.
package siteid

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/visitorlabs/profiler/internal/profile"
)

// Normalize parses raw, extracts the hostname, lowercases it and strips a
// leading "www." exactly once. Scheme, port, path, query and fragment are
// discarded. URLs without a scheme are treated as http so bare hostnames
// still parse.
func Normalize(raw string) (profile.SiteKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("normalize %q: %w", raw, profile.ErrInvalidURL)
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("normalize %q: %w", raw, profile.ErrInvalidURL)
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return "", fmt.Errorf("normalize %q: %w", raw, profile.ErrInvalidURL)
	}
	return profile.SiteKey(host), nil
}
