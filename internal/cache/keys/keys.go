// Package keys derives shared-cache keys for capabilities documents.
package keys

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// Prefix namespaces every capabilities key so InvalidateAll can scan for them.
const Prefix = "ogccap:"

const collectionsSuffix = ":collections"

// Collections is the logical cache key of the collections listing of serviceURL.
func Collections(serviceURL string) string {
	return serviceURL + collectionsSuffix
}

// ForService lists the logical keys owned by serviceURL.
func ForService(serviceURL string) []string {
	return []string{serviceURL, Collections(serviceURL)}
}

// Shared maps a logical cache key to its shared-cache key: a readable host
// segment followed by the 64-bit hash of the full key.
func Shared(key string) string {
	host := strings.TrimSuffix(key, collectionsSuffix)
	if u, err := url.Parse(host); err == nil && u.Host != "" {
		host = u.Host
	}
	host = sanitize(strings.ToLower(strings.TrimSpace(host)))

	const maxHostLen = 64
	if len(host) > maxHostLen {
		host = host[:maxHostLen]
	}
	return fmt.Sprintf("%s%s:%016x", Prefix, host, xxhash.Sum64String(key))
}

func sanitize(s string) string {
	if s == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case isAlphaNum(r) || r == '.' || r == '_' || r == '-':
			out = r
		default:
			out = '-'
		}
		if out == '-' && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
