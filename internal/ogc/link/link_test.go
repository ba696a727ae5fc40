package link

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mohammed-shakir/ogcapi-resolver/internal/ogc/model"
)

func TestResolveHref(t *testing.T) {
	cases := []struct {
		base, href, want string
	}{
		{"https://demo.example.org/ogc/tiles", "/ogc/tiles/collections?f=json", "https://demo.example.org/ogc/tiles/collections?f=json"},
		{"http://localhost:8080/geoserver/ogc/tiles", "/geoserver/ogc/tiles/collections/a", "http://localhost:8080/geoserver/ogc/tiles/collections/a"},
		{"http://a.example.org/x", "http://b.example.org/y", "http://b.example.org/y"},
		{"http://a.example.org/x", "", ""},
		{"https://demo.example.org/ogc", "collections/a/tiles/{tileMatrix}/{tileRow}/{tileCol}", "https://demo.example.org/collections/a/tiles/{tileMatrix}/{tileRow}/{tileCol}"},
		{"https://demo.example.org/ogc", "//cdn.example.org/a", "https://demo.example.org/a"},
	}
	for _, c := range cases {
		if got := ResolveHref(c.base, c.href); got != c.want {
			t.Fatalf("ResolveHref(%q, %q) got %q want %q", c.base, c.href, got, c.want)
		}
	}
}

func TestResolveHref_Idempotent(t *testing.T) {
	base := "https://demo.example.org/ogc"
	for _, href := range []string{"/collections", "/collections/roads/tiles?f=json", "https://other.example.org/a"} {
		once := ResolveHref(base, href)
		if twice := ResolveHref(base, once); twice != once {
			t.Fatalf("not idempotent for %q: %q then %q", href, once, twice)
		}
	}
}

func TestResolveHref_NoBaseKeepsHref(t *testing.T) {
	if got := ResolveHref("", "/collections/a"); got != "/collections/a" {
		t.Fatalf("got %q", got)
	}
}

func TestFind_DocumentOrderAndMissingType(t *testing.T) {
	links := []model.Link{
		{Rel: "self", Type: "text/html", Href: "/html"},
		{Rel: "data", Href: "/untyped"},
		{Rel: "data", Type: MediaJSON, Href: "/typed"},
	}
	l, ok := Default().Find(links, PurposeData)
	if !ok || l.Href != "/untyped" {
		t.Fatalf("expected first data link in document order, got %+v ok=%v", l, ok)
	}

	strict := Matcher{Rel: "data", Types: []string{MediaJSON}}
	l, ok = Find(links, strict)
	if !ok || l.Href != "/typed" {
		t.Fatalf("strict matcher got %+v", l)
	}
}

func TestFind_CollectionDialects(t *testing.T) {
	d := Default()
	cases := []struct {
		name  string
		links []model.Link
		want  string
	}{
		{"gs", []model.Link{{Rel: "self", Type: "text/html", Href: "/h"}, {Rel: "collection", Type: MediaJSON, Href: "/gs"}}, "/gs"},
		{"ii", []model.Link{{Rel: "self", Href: "/ii"}}, "/ii"},
		{"e", []model.Link{{Rel: "self", Type: MediaJSON, Href: "/e"}}, "/e"},
	}
	for _, c := range cases {
		if got := Href(c.links, d.For(PurposeCollection)...); got != c.want {
			t.Fatalf("%s: got %q want %q", c.name, got, c.want)
		}
	}
	if _, ok := d.Find([]model.Link{{Rel: "self", Type: "text/html"}}, PurposeCollection); ok {
		t.Fatalf("html self link must not match")
	}
}

func TestFindAll_Tiles(t *testing.T) {
	links := []model.Link{
		{Rel: "tiles", Type: MediaJSON, Href: "/a"},
		{Rel: "tiles", Type: "text/html", Href: "/b"},
		{Rel: "tiles", Href: "/c"},
	}
	got := FindAll(links, Default().For(PurposeTiles)...)
	if len(got) != 2 || got[0].Href != "/a" || got[1].Href != "/c" {
		t.Fatalf("unexpected tiles links: %+v", got)
	}
}

func TestLoadFile_AppendsMatchers(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "dialects.yaml")
	body := "dialects:\n  collection:\n    - dialect: pygeoapi\n      rel: alternate\n      types: [application/json]\n"
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	d, err := LoadFile(p)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	ms := d.For(PurposeCollection)
	if last := ms[len(ms)-1]; last.Dialect != "pygeoapi" || last.Rel != "alternate" {
		t.Fatalf("file matcher not appended: %+v", ms)
	}
	if got := Href([]model.Link{{Rel: "alternate", Type: MediaJSON, Href: "/py"}}, ms...); got != "/py" {
		t.Fatalf("file matcher not used, got %q", got)
	}
	if len(Default().For(PurposeCollection)) == len(ms) {
		t.Fatalf("defaults must not be mutated")
	}
}

func TestLoadFile_RejectsMatcherWithoutRel(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(p, []byte("dialects:\n  data:\n    - dialect: x\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadFile(p); err == nil {
		t.Fatalf("expected error for matcher without rel")
	}
}
