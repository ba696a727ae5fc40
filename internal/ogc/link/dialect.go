package link

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mohammed-shakir/ogcapi-resolver/internal/ogc/model"
)

// Purpose names what a link is looked up for.
type Purpose string

const (
	PurposeData        Purpose = "data"
	PurposeCollection  Purpose = "collection"
	PurposeTiles       Purpose = "tiles"
	PurposeTile        Purpose = "tile"
	PurposeDescribedBy Purpose = "describedBy"
	PurposeService     Purpose = "service"
	PurposeConformance Purpose = "conformance"
	PurposeSampleData  Purpose = "sampleData"
)

// Dialects maps a link purpose to its ordered matcher list.
type Dialects map[Purpose][]Matcher

// Known server flavours:
//
//	gs: GeoServer
//	ii: interactive instruments ldproxy
//	e:  Ecere GNOSIS
var defaultDialects = Dialects{
	PurposeData: {
		{Dialect: "any", Rel: "data", Types: []string{MediaJSON}, AllowMissingType: true},
	},
	PurposeCollection: {
		{Dialect: "gs", Rel: "collection", Types: []string{MediaJSON}},
		{Dialect: "ii", Rel: "self", AllowMissingType: true, Types: []string{MediaJSON}},
		{Dialect: "e", Rel: "self", Types: []string{MediaJSON}},
	},
	PurposeTiles: {
		{Dialect: "any", Rel: "tiles", Types: []string{MediaJSON}, AllowMissingType: true},
	},
	PurposeTile: {
		{Dialect: "any", Rel: "tile"},
		{Dialect: "gs", Rel: "tiles"},
		{Dialect: "ii", Rel: "item"},
	},
	PurposeDescribedBy: {
		{Dialect: "any", Rel: "describedBy", Types: []string{MediaJSON}},
		{Dialect: "gs", Rel: "describeBy", Types: []string{MediaJSON}},
	},
	PurposeService: {
		{Dialect: "any", Rel: "service", Types: []string{MediaJSON}},
		{Dialect: "any", Rel: "service-desc", Types: []string{MediaJSON, "application/vnd.oai.openapi+json;version=3.0"}},
	},
	PurposeConformance: {
		{Dialect: "any", Rel: "conformance", Types: []string{MediaJSON}},
	},
	PurposeSampleData: {
		{Dialect: "any", Rel: "data", Types: []string{MediaJSON}},
	},
}

// Default returns a copy of the built-in dialect table.
func Default() Dialects {
	out := make(Dialects, len(defaultDialects))
	for p, ms := range defaultDialects {
		out[p] = append([]Matcher(nil), ms...)
	}
	return out
}

// For returns the matchers registered for p.
func (d Dialects) For(p Purpose) []Matcher {
	if d == nil {
		return defaultDialects[p]
	}
	if ms, ok := d[p]; ok {
		return ms
	}
	return defaultDialects[p]
}

// Find looks up the first link for p.
func (d Dialects) Find(links []model.Link, p Purpose) (model.Link, bool) {
	return Find(links, d.For(p)...)
}

type dialectFile struct {
	Dialects map[string][]Matcher `yaml:"dialects"`
}

// LoadFile appends the matchers of a YAML dialect file to the defaults.
// Matchers from the file are tried after the built-in ones.
//
//	dialects:
//	  collection:
//	    - dialect: pygeoapi
//	      rel: self
//	      types: [application/json]
func LoadFile(path string) (Dialects, error) {
	d := Default()
	if path == "" {
		return d, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dialects file: %w", err)
	}
	var f dialectFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse dialects file %q: %w", path, err)
	}
	for purpose, ms := range f.Dialects {
		for i, m := range ms {
			if m.Rel == "" {
				return nil, fmt.Errorf("dialects file %q: %s[%d] has no rel", path, purpose, i)
			}
		}
		d[Purpose(purpose)] = append(d[Purpose(purpose)], ms...)
	}
	return d, nil
}
