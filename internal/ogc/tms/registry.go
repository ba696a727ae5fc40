// Package tms holds built-in tile matrix sets used when a server exposes no matrix set document.
package tms

import (
	"strconv"

	"github.com/mohammed-shakir/ogcapi-resolver/internal/ogc/model"
)

const (
	GoogleMercator  = "EPSG:900913"
	WebMercatorQuad = "WebMercatorQuad"

	mercatorCRS = "http://www.opengis.net/def/crs/EPSG/0/900913"
	tileSize    = 256
	maxZoom     = 30
)

var mercatorTopLeft = [2]float64{-20037508.34, 20037508}

// DefaultSet is a synthesized matrix set together with its per-level tile limits.
type DefaultSet struct {
	TileMatrixSet model.TileMatrixSet
	Limits        []model.TileMatrixSetLimit
}

var aliases = map[string]string{
	WebMercatorQuad: GoogleMercator,
}

var builders = map[string]func(id string) DefaultSet{
	GoogleMercator: googleMercator,
}

// Default returns the built-in matrix set for id. The requested id (not its alias target)
// names the set and prefixes each level identifier.
func Default(id string) (DefaultSet, bool) {
	key := id
	if a, ok := aliases[id]; ok {
		key = a
	}
	build, ok := builders[key]
	if !ok {
		return DefaultSet{}, false
	}
	return build(id), true
}

// Known reports whether id has a built-in definition.
func Known(id string) bool {
	_, ok := Default(id)
	return ok
}

func levelID(id string, z int) string {
	return id + ":" + strconv.Itoa(z)
}

func googleMercator(id string) DefaultSet {
	set := model.TileMatrixSet{
		Identifier:   id,
		SupportedCRS: mercatorCRS,
		TileMatrix:   make([]model.TileMatrix, 0, maxZoom+1),
	}
	limits := make([]model.TileMatrixSetLimit, 0, maxZoom+1)
	for z := 0; z <= maxZoom; z++ {
		side := int64(1) << z
		set.TileMatrix = append(set.TileMatrix, model.TileMatrix{
			Identifier:       levelID(id, z),
			ScaleDenominator: mercatorScales[z],
			TopLeftCorner:    mercatorTopLeft,
			TileWidth:        tileSize,
			TileHeight:       tileSize,
			MatrixWidth:      side,
			MatrixHeight:     side,
		})
		l := mercatorLimits[z]
		limits = append(limits, model.TileMatrixSetLimit{
			TileMatrix: levelID(id, z),
			MinTileRow: l[0],
			MaxTileRow: l[1],
			MinTileCol: l[2],
			MaxTileCol: l[3],
		})
	}
	return DefaultSet{TileMatrixSet: set, Limits: limits}
}

var mercatorScales = [maxZoom + 1]float64{
	559082263.9508929,
	279541131.97544646,
	139770565.98772323,
	69885282.99386162,
	34942641.49693081,
	17471320.748465404,
	8735660.374232702,
	4367830.187116351,
	2183915.0935581755,
	1091957.5467790877,
	545978.7733895439,
	272989.38669477194,
	136494.69334738597,
	68247.34667369298,
	34123.67333684649,
	17061.836668423246,
	8530.918334211623,
	4265.4591671058115,
	2132.7295835529058,
	1066.3647917764529,
	533.1823958882264,
	266.5911979441132,
	133.2955989720566,
	66.6477994860283,
	33.32389974301415,
	16.661949871507076,
	8.330974935753538,
	4.165487467876769,
	2.0827437339383845,
	1.0413718669691923,
	0.5206859334845961,
}

// minRow, maxRow, minCol, maxCol per zoom level
var mercatorLimits = [maxZoom + 1][4]int64{
	{0, 0, 0, 0},
	{0, 0, 1, 1},
	{1, 1, 2, 2},
	{3, 3, 4, 4},
	{6, 6, 9, 9},
	{12, 12, 19, 19},
	{25, 25, 38, 38},
	{51, 51, 76, 76},
	{103, 103, 153, 153},
	{206, 207, 307, 307},
	{413, 414, 614, 614},
	{826, 828, 1228, 1229},
	{1653, 1656, 2456, 2459},
	{3307, 3312, 4912, 4919},
	{6615, 6624, 9824, 9838},
	{13230, 13249, 19648, 19677},
	{26460, 26498, 39297, 39355},
	{52921, 52997, 78594, 78711},
	{105842, 105994, 157189, 157422},
	{211684, 211988, 314378, 314844},
	{423369, 423976, 628756, 629688},
	{846738, 847953, 1257513, 1259376},
	{1693477, 1695906, 2515026, 2518753},
	{3386955, 3391813, 5030053, 5037506},
	{6773911, 6783627, 10060107, 10075012},
	{13547822, 13567254, 20120214, 20150025},
	{27095644, 27134509, 40240429, 40300051},
	{54191288, 54269019, 80480858, 80600103},
	{108382576, 108538038, 160961717, 161200207},
	{216765152, 217076076, 321923434, 322400415},
	{433530305, 434152153, 643846869, 644800830},
}
