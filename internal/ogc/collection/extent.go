package collection

import (
	"encoding/json"
	"math"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/ogcapi-resolver/internal/ogc/model"
)

// ExtentShape tells which server layout a spatial extent was read from.
type ExtentShape int

const (
	// ExtentWorld is the fallback when no usable extent is present.
	ExtentWorld ExtentShape = iota
	// ExtentBBoxList is extent.spatial.bbox[0] (ldproxy, OGC API Features).
	ExtentBBoxList
	// ExtentFlat is extent.spatial as a bare coordinate array (GeoServer).
	ExtentFlat
)

func (s ExtentShape) String() string {
	switch s {
	case ExtentBBoxList:
		return "bbox-list"
	case ExtentFlat:
		return "flat"
	default:
		return "world"
	}
}

const extentCRS = "EPSG:4326"

var worldBound = orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}

type extentDoc struct {
	Spatial json.RawMessage `json:"spatial"`
}

// ParseExtent reads the spatial extent of a collection document. It never fails:
// absent or malformed extents yield the whole world.
func ParseExtent(raw json.RawMessage) (model.BBox, ExtentShape) {
	b, shape := parseBound(raw)
	return model.BBox{CRS: extentCRS, Bounds: model.BoundsFromOrb(b)}, shape
}

func parseBound(raw json.RawMessage) (orb.Bound, ExtentShape) {
	if len(raw) == 0 {
		return worldBound, ExtentWorld
	}
	var ext extentDoc
	if err := json.Unmarshal(raw, &ext); err != nil || len(ext.Spatial) == 0 {
		return worldBound, ExtentWorld
	}

	var nested struct {
		BBox [][]float64 `json:"bbox"`
	}
	if err := json.Unmarshal(ext.Spatial, &nested); err == nil && len(nested.BBox) > 0 {
		if b, ok := boundOf(nested.BBox[0]); ok {
			return b, ExtentBBoxList
		}
	}
	var flat []float64
	if err := json.Unmarshal(ext.Spatial, &flat); err == nil {
		if b, ok := boundOf(flat); ok {
			return b, ExtentFlat
		}
	}
	return worldBound, ExtentWorld
}

// boundOf accepts 2D [minx,miny,maxx,maxy] and 3D [minx,miny,minz,maxx,maxy,maxz] boxes.
func boundOf(c []float64) (orb.Bound, bool) {
	var b orb.Bound
	switch len(c) {
	case 4:
		b = orb.Bound{Min: orb.Point{c[0], c[1]}, Max: orb.Point{c[2], c[3]}}
	case 6:
		b = orb.Bound{Min: orb.Point{c[0], c[1]}, Max: orb.Point{c[3], c[4]}}
	default:
		return orb.Bound{}, false
	}
	for _, v := range []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return orb.Bound{}, false
		}
	}
	return b, true
}
