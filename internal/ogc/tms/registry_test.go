package tms

import "testing"

func TestDefault_GoogleMercatorLevels(t *testing.T) {
	set, ok := Default(GoogleMercator)
	if !ok {
		t.Fatalf("expected built-in %s", GoogleMercator)
	}
	tm := set.TileMatrixSet.TileMatrix
	if len(tm) != 31 {
		t.Fatalf("levels=%d want 31", len(tm))
	}
	for z, m := range tm {
		side := int64(1) << z
		if m.MatrixWidth != side || m.MatrixHeight != side {
			t.Fatalf("level %d: matrix %dx%d want %d", z, m.MatrixWidth, m.MatrixHeight, side)
		}
		if m.TileWidth != 256 || m.TileHeight != 256 {
			t.Fatalf("level %d: tile size %dx%d", z, m.TileWidth, m.TileHeight)
		}
		if z > 0 && m.ScaleDenominator >= tm[z-1].ScaleDenominator {
			t.Fatalf("level %d: scale denominators must decrease", z)
		}
	}
	if tm[0].Identifier != "EPSG:900913:0" || tm[30].Identifier != "EPSG:900913:30" {
		t.Fatalf("unexpected level identifiers %q .. %q", tm[0].Identifier, tm[30].Identifier)
	}
	if tm[0].ScaleDenominator != 559082263.9508929 {
		t.Fatalf("level 0 scale=%v", tm[0].ScaleDenominator)
	}
}

func TestDefault_LimitsInsideMatrix(t *testing.T) {
	set, _ := Default(GoogleMercator)
	if len(set.Limits) != 31 {
		t.Fatalf("limits=%d want 31", len(set.Limits))
	}
	for z, l := range set.Limits {
		side := int64(1) << z
		if l.MinTileRow > l.MaxTileRow || l.MinTileCol > l.MaxTileCol {
			t.Fatalf("level %d: inverted range %+v", z, l)
		}
		if l.MaxTileRow >= side || l.MaxTileCol >= side || l.MinTileRow < 0 || l.MinTileCol < 0 {
			t.Fatalf("level %d: range %+v outside %d tiles", z, l, side)
		}
		if l.TileMatrix != set.TileMatrixSet.TileMatrix[z].Identifier {
			t.Fatalf("level %d: limit id %q", z, l.TileMatrix)
		}
	}
}

func TestDefault_AliasKeepsRequestedIdentifier(t *testing.T) {
	set, ok := Default(WebMercatorQuad)
	if !ok {
		t.Fatalf("expected alias %s", WebMercatorQuad)
	}
	if set.TileMatrixSet.Identifier != WebMercatorQuad {
		t.Fatalf("identifier=%q", set.TileMatrixSet.Identifier)
	}
	if got := set.TileMatrixSet.TileMatrix[3].Identifier; got != "WebMercatorQuad:3" {
		t.Fatalf("level id=%q", got)
	}
}

func TestDefault_Unknown(t *testing.T) {
	if _, ok := Default("EPSG:4326"); ok {
		t.Fatalf("EPSG:4326 has no built-in fallback")
	}
	if Known("") {
		t.Fatalf("empty id must be unknown")
	}
}
