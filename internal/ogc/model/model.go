// Package model defines the OGC API documents and resolved descriptors shared across resolvers.
package model

import (
	"encoding/json"

	"github.com/paulmach/orb"
)

type Link struct {
	Href  string `json:"href"`
	Rel   string `json:"rel,omitempty"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
}

// ServiceDocument is any fetched OGC API JSON document carrying hypermedia links.
type ServiceDocument struct {
	Title string `json:"title,omitempty"`
	Links []Link `json:"links"`
}

type Bounds struct {
	MinX float64 `json:"minx"`
	MinY float64 `json:"miny"`
	MaxX float64 `json:"maxx"`
	MaxY float64 `json:"maxy"`
}

func BoundsFromOrb(b orb.Bound) Bounds {
	return Bounds{MinX: b.Min[0], MinY: b.Min[1], MaxX: b.Max[0], MaxY: b.Max[1]}
}

func (b Bounds) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.MinX, b.MinY}, Max: orb.Point{b.MaxX, b.MaxY}}
}

type BBox struct {
	CRS    string `json:"crs"`
	Bounds Bounds `json:"bounds"`
}

type TileURL struct {
	URL    string `json:"url"`
	Format string `json:"format,omitempty"`
}

type TileMatrixSetLimit struct {
	TileMatrix string `json:"tileMatrix"`
	MinTileRow int64  `json:"minTileRow"`
	MaxTileRow int64  `json:"maxTileRow"`
	MinTileCol int64  `json:"minTileCol"`
	MaxTileCol int64  `json:"maxTileCol"`
}

type TileMatrixSetLink struct {
	TileMatrixSet       string               `json:"tileMatrixSet"`
	TileMatrixSetURI    string               `json:"tileMatrixSetURI,omitempty"`
	TileMatrixSetLimits []TileMatrixSetLimit `json:"tileMatrixSetLimits,omitempty"`
}

type TileMatrix struct {
	Identifier       string     `json:"identifier"`
	ScaleDenominator float64    `json:"scaleDenominator"`
	TopLeftCorner    [2]float64 `json:"topLeftCorner"`
	TileWidth        int        `json:"tileWidth"`
	TileHeight       int        `json:"tileHeight"`
	MatrixWidth      int64      `json:"matrixWidth"`
	MatrixHeight     int64      `json:"matrixHeight"`
}

type TileMatrixSet struct {
	Identifier   string       `json:"identifier"`
	SupportedCRS string       `json:"supportedCRS,omitempty"`
	TileMatrix   []TileMatrix `json:"tileMatrix"`
}

type Range struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

type MatrixRanges struct {
	Cols Range `json:"cols"`
	Rows Range `json:"rows"`
}

// MatrixLimit is the allowed tile index range of one zoom level; nil Ranges means unbounded.
type MatrixLimit struct {
	Identifier string        `json:"identifier"`
	Ranges     *MatrixRanges `json:"ranges,omitempty"`
}

type CollectionStyle struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	Links []Link `json:"links,omitempty"`
}

// BranchFailure records a fan-out branch that was dropped during a resolution.
type BranchFailure struct {
	Kind   string `json:"kind"`
	URL    string `json:"url,omitempty"`
	Reason string `json:"reason"`
}

type CollectionDescriptor struct {
	Name               string                   `json:"name"`
	Title              string                   `json:"title,omitempty"`
	Type               string                   `json:"type"`
	Visibility         bool                     `json:"visibility"`
	BBox               BBox                     `json:"bbox"`
	Format             string                   `json:"format,omitempty"`
	TileURLs           []TileURL                `json:"tileUrls"`
	TileMatrixSetLinks []TileMatrixSetLink      `json:"tileMatrixSetLinks"`
	AllowedSRS         map[string]bool          `json:"allowedSRS"`
	TileMatrixSet      []TileMatrixSet          `json:"tileMatrixSet"`
	MatrixIDs          map[string][]MatrixLimit `json:"matrixIds"`
	AvailableStyles    []CollectionStyle        `json:"availableStyles,omitempty"`
	Style              string                   `json:"style,omitempty"`
	Failures           []BranchFailure          `json:"failures,omitempty"`
}

// CollectionSummary is one entry of a collections document as listed by the server.
type CollectionSummary struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Title string `json:"title,omitempty"`
	Links []Link `json:"links,omitempty"`

	// Raw keeps every field of the entry so error records echo the server summary.
	Raw json.RawMessage `json:"-"`
}

func (c *CollectionSummary) UnmarshalJSON(b []byte) error {
	type plain CollectionSummary
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*c = CollectionSummary(p)
	c.Raw = append(json.RawMessage(nil), b...)
	return nil
}

type CollectionsDocument struct {
	Links       []Link              `json:"links,omitempty"`
	Collections []CollectionSummary `json:"collections"`
}

// Record is one page entry: either a resolved descriptor or the summary plus an error.
type Record struct {
	Layer   *CollectionDescriptor
	Summary *CollectionSummary
	Error   string
}

func (r Record) MarshalJSON() ([]byte, error) {
	if r.Error == "" && r.Layer != nil {
		return json.Marshal(r.Layer)
	}
	fields := map[string]any{}
	if r.Summary != nil && len(r.Summary.Raw) > 0 {
		if err := json.Unmarshal(r.Summary.Raw, &fields); err != nil {
			return nil, err
		}
	} else if r.Summary != nil {
		fields["id"] = r.Summary.ID
		fields["title"] = r.Summary.Title
	}
	fields["error"] = r.Error
	return json.Marshal(fields)
}

type PageResult struct {
	NumberOfRecordsMatched  int      `json:"numberOfRecordsMatched"`
	NumberOfRecordsReturned int      `json:"numberOfRecordsReturned"`
	NextRecord              int      `json:"nextRecord"`
	Records                 []Record `json:"records"`
}
