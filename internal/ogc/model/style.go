package model

import (
	"encoding/json"
)

type StylesheetLink struct {
	Href string `json:"href"`
	Type string `json:"type,omitempty"`
	Rel  string `json:"rel,omitempty"`
}

type Stylesheet struct {
	Title         string          `json:"title,omitempty"`
	Version       string          `json:"version,omitempty"`
	Specification string          `json:"specification,omitempty"`
	Native        bool            `json:"native,omitempty"`
	Link          *StylesheetLink `json:"link,omitempty"`
}

type StyleLayer struct {
	ID         string `json:"id"`
	Type       string `json:"type,omitempty"`
	SampleData []Link `json:"sampleData,omitempty"`
}

// StyleMetadata is a styles-API style record, either as listed or after describedBy merging.
type StyleMetadata struct {
	ID              string       `json:"id"`
	Title           string       `json:"title,omitempty"`
	Description     string       `json:"description,omitempty"`
	PointOfContact  string       `json:"pointOfContact,omitempty"`
	Links           []Link       `json:"links,omitempty"`
	Stylesheets     []Stylesheet `json:"stylesheets,omitempty"`
	Layers          []StyleLayer `json:"layers,omitempty"`
	Error           bool         `json:"error,omitempty"`
	BackgroundColor string       `json:"backgroundColor,omitempty"`
	Format          string       `json:"format,omitempty"`
	ServiceURL      string       `json:"serviceUrl,omitempty"`
}

// StyleEntry is a stylesheet record with its fetched body.
type StyleEntry struct {
	Stylesheet
	Format    string `json:"format,omitempty"`
	StyleBody []byte `json:"-"`
	Split     bool   `json:"split,omitempty"`
}

func (e StyleEntry) MarshalJSON() ([]byte, error) {
	type plain StyleEntry
	out := struct {
		plain
		StyleBody json.RawMessage `json:"styleBody"`
	}{plain: plain(e)}
	out.StyleBody = BodyJSON(e.StyleBody)
	return json.Marshal(out)
}

// BodyJSON encodes a stylesheet body: JSON bodies inline, anything else as a JSON string.
func BodyJSON(body []byte) json.RawMessage {
	if body == nil {
		return json.RawMessage("null")
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	s, _ := json.Marshal(string(body))
	return s
}

// ResolvedLayer is a collection resolved on behalf of a style layer.
type ResolvedLayer struct {
	CollectionDescriptor
	StyleLayerName string `json:"styleLayerName"`
	LayerType      string `json:"layerType,omitempty"`
}

type ResolvedStyleBundle struct {
	StyleMetadata StyleMetadata           `json:"styleMetadata"`
	Layers        []Branch[ResolvedLayer] `json:"layers"`
	Styles        []Branch[StyleEntry]    `json:"styles"`
}

type VectorStyle struct {
	Body   []byte `json:"-"`
	Format string `json:"format,omitempty"`
}

func (v VectorStyle) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Body   json.RawMessage `json:"body"`
		Format string          `json:"format,omitempty"`
	}{Body: BodyJSON(v.Body), Format: v.Format})
}

type VisualStyleEditor struct {
	StyleMetadataID string       `json:"styleMetadataId"`
	Style           string       `json:"style"`
	AvailableStyles []StyleEntry `json:"availableStyles"`
}

// LayerWithStyle is a resolved layer bound to its operative stylesheet.
type LayerWithStyle struct {
	ResolvedLayer
	ID                string            `json:"id"`
	Group             string            `json:"group"`
	VectorStyle       VectorStyle       `json:"vectorStyle"`
	VisualStyleEditor VisualStyleEditor `json:"visualStyleEditor"`
	Freshness         string            `json:"_v_"`
}
