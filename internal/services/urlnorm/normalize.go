package urlnorm

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

const defaultScheme = "https://"

// Normalize prepends https:// unless raw already starts with http:// or
// https:// in any letter case. Nothing else is validated or rewritten.
func Normalize(raw string) string {
	if hasScheme(raw, "http://") || hasScheme(raw, "https://") {
		return raw
	}
	return defaultScheme + raw
}

func hasScheme(s, scheme string) bool {
	return len(s) >= len(scheme) && strings.EqualFold(s[:len(scheme)], scheme)
}

// RegistrableDomain returns the eTLD+1 of a normalized URL, falling back to
// the bare host, or "" when no host can be parsed. Used for log fields only.
func RegistrableDomain(rawurl string) string {
	u, err := url.Parse(rawurl)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ""
	}
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return registrable
}
