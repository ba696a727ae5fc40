package collection

import (
	"encoding/json"

	"github.com/mohammed-shakir/ogcapi-resolver/internal/ogc/model"
)

type collectionDoc struct {
	ID     string                  `json:"id"`
	Title  string                  `json:"title"`
	Extent json.RawMessage         `json:"extent"`
	Links  []model.Link            `json:"links"`
	Styles []model.CollectionStyle `json:"styles"`
}

type tilesetDoc struct {
	TileMatrixSetLinks []model.TileMatrixSetLink `json:"tileMatrixSetLinks"`
	Links              []model.Link              `json:"links"`
}

// tileMatrixSetDoc accepts both the 1.0 (identifier, tileMatrix, topLeftCorner)
// and 2.0 (id, tileMatrices, pointOfOrigin) layouts.
type tileMatrixSetDoc struct {
	Identifier   string          `json:"identifier"`
	ID           string          `json:"id"`
	SupportedCRS json.RawMessage `json:"supportedCRS"`
	CRS          json.RawMessage `json:"crs"`
	TileMatrix   []tileMatrixDoc `json:"tileMatrix"`
	TileMatrices []tileMatrixDoc `json:"tileMatrices"`
}

type tileMatrixDoc struct {
	Identifier       string      `json:"identifier"`
	ID               string      `json:"id"`
	ScaleDenominator float64     `json:"scaleDenominator"`
	TopLeftCorner    *[2]float64 `json:"topLeftCorner"`
	PointOfOrigin    *[2]float64 `json:"pointOfOrigin"`
	TileWidth        int         `json:"tileWidth"`
	TileHeight       int         `json:"tileHeight"`
	MatrixWidth      int64       `json:"matrixWidth"`
	MatrixHeight     int64       `json:"matrixHeight"`
}

func (d tileMatrixSetDoc) toModel() model.TileMatrixSet {
	out := model.TileMatrixSet{
		Identifier:   firstNonEmpty(d.Identifier, d.ID),
		SupportedCRS: crsString(d.SupportedCRS),
	}
	if out.SupportedCRS == "" {
		out.SupportedCRS = crsString(d.CRS)
	}
	levels := d.TileMatrix
	if len(levels) == 0 {
		levels = d.TileMatrices
	}
	out.TileMatrix = make([]model.TileMatrix, 0, len(levels))
	for _, l := range levels {
		tm := model.TileMatrix{
			Identifier:       firstNonEmpty(l.Identifier, l.ID),
			ScaleDenominator: l.ScaleDenominator,
			TileWidth:        l.TileWidth,
			TileHeight:       l.TileHeight,
			MatrixWidth:      l.MatrixWidth,
			MatrixHeight:     l.MatrixHeight,
		}
		switch {
		case l.TopLeftCorner != nil:
			tm.TopLeftCorner = *l.TopLeftCorner
		case l.PointOfOrigin != nil:
			tm.TopLeftCorner = *l.PointOfOrigin
		}
		out.TileMatrix = append(out.TileMatrix, tm)
	}
	return out
}

// crsString reads a CRS given either as a URI string or as {"uri": ...}.
func crsString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		URI string `json:"uri"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.URI
	}
	return ""
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
