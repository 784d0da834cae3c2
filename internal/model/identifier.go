package model

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// canonicalHost is the host used when reconstructing a profile URL from an
// identifier. Raw references may arrive from any linkedin.com alias
// (www, country subdomains); they all normalize to the same identifier.
const canonicalHost = "www.linkedin.com"

// NormalizeIdentifier derives the canonical cache key for a raw LinkedIn
// profile reference. Query parameters, fragments, and host aliases are
// stripped; only the /in/<slug> path segment survives, lowercased. Two raw
// URLs that differ only in query string or host alias normalize identically.
func NormalizeIdentifier(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", eris.New("identifier: empty reference")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", eris.Wrapf(err, "identifier: parse %q", raw)
	}
	if parsed.Host == "" || !isLinkedInHost(parsed.Host) {
		return "", eris.Errorf("identifier: not a linkedin host: %q", raw)
	}

	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "in" || parts[1] == "" {
		return "", eris.Errorf("identifier: not a profile path: %q", raw)
	}

	return strings.ToLower(parts[1]), nil
}

// ProfileURL reconstructs the canonical profile URL for an identifier.
func ProfileURL(identifier string) string {
	return "https://" + canonicalHost + "/in/" + identifier
}

// IsProfileReference reports whether raw looks like a LinkedIn profile URL.
func IsProfileReference(raw string) bool {
	_, err := NormalizeIdentifier(raw)
	return err == nil
}

func isLinkedInHost(host string) bool {
	host = strings.ToLower(host)
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	return host == "linkedin.com" || strings.HasSuffix(host, ".linkedin.com")
}
