// Package link resolves OGC API hypermedia links across server dialects.
package link

import (
	"net/url"
	"strings"

	"github.com/mohammed-shakir/ogcapi-resolver/internal/ogc/model"
)

const MediaJSON = "application/json"

// ResolveHref makes href absolute using the scheme and host of base.
// Empty hrefs and hrefs that already carry a scheme are returned untouched.
// The href text is kept verbatim so URI templates such as {z} are not escaped.
func ResolveHref(base, href string) string {
	if href == "" || strings.Contains(href, "http") {
		return href
	}
	b, err := url.Parse(base)
	if err != nil || b.Host == "" {
		return href
	}
	if strings.HasPrefix(href, "//") {
		// protocol-relative: the base host still wins
		if i := strings.IndexByte(href[2:], '/'); i >= 0 {
			href = href[2+i:]
		} else {
			href = "/"
		}
	}
	if !strings.HasPrefix(href, "/") && !strings.HasPrefix(href, "?") && !strings.HasPrefix(href, "#") {
		href = "/" + href
	}
	return b.Scheme + "://" + b.Host + href
}

// Matcher selects a link by relation and media type.
// An empty Types list accepts any type; AllowMissingType also accepts links without a type.
type Matcher struct {
	Dialect          string   `yaml:"dialect"`
	Rel              string   `yaml:"rel"`
	Types            []string `yaml:"types"`
	AllowMissingType bool     `yaml:"allow_missing_type"`
}

func (m Matcher) Match(l model.Link) bool {
	if l.Rel != m.Rel {
		return false
	}
	if l.Type == "" {
		return m.AllowMissingType || len(m.Types) == 0
	}
	if len(m.Types) == 0 {
		return true
	}
	for _, t := range m.Types {
		if l.Type == t {
			return true
		}
	}
	return false
}

// Find returns the first link in document order accepted by any matcher.
func Find(links []model.Link, matchers ...Matcher) (model.Link, bool) {
	for _, l := range links {
		for _, m := range matchers {
			if m.Match(l) {
				return l, true
			}
		}
	}
	return model.Link{}, false
}

// FindAll returns every link accepted by any matcher, in document order.
func FindAll(links []model.Link, matchers ...Matcher) []model.Link {
	var out []model.Link
	for _, l := range links {
		for _, m := range matchers {
			if m.Match(l) {
				out = append(out, l)
				break
			}
		}
	}
	return out
}

// Href returns the href of the first matching link, or "".
func Href(links []model.Link, matchers ...Matcher) string {
	l, _ := Find(links, matchers...)
	return l.Href
}
