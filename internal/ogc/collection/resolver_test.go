package collection

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mohammed-shakir/ogcapi-resolver/internal/core/fetch"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/ogc/model"
)

func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}
}

func newResolver(t *testing.T, mux *http.ServeMux) (*Resolver, string) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(log, fetch.New(log, srv.Client(), 2*time.Second), nil), srv.URL + "/ogc"
}

func TestResolve_FullPipeline(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/ogc/collections/roads", jsonHandler(`{
		"id":"roads","title":"Roads",
		"extent":{"spatial":{"bbox":[[10,50,20,60]]}},
		"styles":[{"id":"roads_default"},{"id":"roads_night"}],
		"links":[
			{"rel":"self","type":"application/json","href":"/ogc/collections/roads"},
			{"rel":"tiles","type":"application/json","href":"/ogc/collections/roads/tiles/vector"},
			{"rel":"tiles","href":"/ogc/collections/roads/tiles/map"},
			{"rel":"tiles","type":"text/html","href":"/ogc/collections/roads/tiles.html"}
		]}`))
	mux.Handle("/ogc/collections/roads/tiles/vector", jsonHandler(`{
		"tileMatrixSetLinks":[{"tileMatrixSet":"WebMercatorQuad","tileMatrixSetURI":"/ogc/tileMatrixSets/WebMercatorQuad",
			"tileMatrixSetLimits":[{"tileMatrix":"0","minTileRow":0,"maxTileRow":0,"minTileCol":0,"maxTileCol":0}]}],
		"links":[{"rel":"item","type":"application/vnd.mapbox-vector-tile","href":"/ogc/collections/roads/tiles/vector/{tileMatrix}/{tileRow}/{tileCol}"}]}`))
	mux.Handle("/ogc/collections/roads/tiles/map", jsonHandler(`{
		"tileMatrixSetLinks":[{"tileMatrixSet":"WebMercatorQuad"},{"tileMatrixSet":"EPSG:900913"}],
		"links":[
			{"rel":"tile","type":"image/png","href":"http://cdn.example.org/roads/{tileMatrix}/{tileRow}/{tileCol}.png"},
			{"rel":"tiles","type":"image/png","href":"http://cdn.example.org/dup.png"}
		]}`))
	mux.Handle("/ogc/tileMatrixSets/WebMercatorQuad", jsonHandler(`{
		"id":"WebMercatorQuad","crs":"http://www.opengis.net/def/crs/EPSG/0/3857",
		"tileMatrices":[{"id":"0","scaleDenominator":559082264.03,"pointOfOrigin":[-20037508.34,20037508.34],
			"tileWidth":256,"tileHeight":256,"matrixWidth":1,"matrixHeight":1}]}`))

	r, svc := newResolver(t, mux)
	desc, err := r.Resolve(context.Background(), "/ogc/collections/roads", svc)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if desc.Name != "roads" || desc.Type != "ogc" || !desc.Visibility || desc.Style != "roads_default" {
		t.Fatalf("unexpected header fields: %+v", desc)
	}
	if desc.BBox.Bounds != (model.Bounds{MinX: 10, MinY: 50, MaxX: 20, MaxY: 60}) || desc.BBox.CRS != "EPSG:4326" {
		t.Fatalf("bbox=%+v", desc.BBox)
	}
	if len(desc.TileURLs) != 2 {
		t.Fatalf("tile urls not deduped by format: %+v", desc.TileURLs)
	}
	if desc.TileURLs[0].URL != svc[:len(svc)-len("/ogc")]+"/ogc/collections/roads/tiles/vector/{tileMatrix}/{tileRow}/{tileCol}" {
		t.Fatalf("tile template not resolved verbatim: %s", desc.TileURLs[0].URL)
	}
	if desc.TileURLs[1].URL != "http://cdn.example.org/roads/{tileMatrix}/{tileRow}/{tileCol}.png" {
		t.Fatalf("first png should win: %s", desc.TileURLs[1].URL)
	}
	if desc.Format != model.MediaMVT {
		t.Fatalf("format=%q", desc.Format)
	}
	if len(desc.TileMatrixSetLinks) != 2 {
		t.Fatalf("matrix set links not deduped: %+v", desc.TileMatrixSetLinks)
	}
	if !desc.AllowedSRS["WebMercatorQuad"] || !desc.AllowedSRS["EPSG:900913"] {
		t.Fatalf("allowedSRS=%v", desc.AllowedSRS)
	}
	fetched := desc.TileMatrixSet[0]
	if fetched.SupportedCRS != "http://www.opengis.net/def/crs/EPSG/0/3857" || fetched.TileMatrix[0].TopLeftCorner[0] != -20037508.34 {
		t.Fatalf("2.0 layout not normalised: %+v", fetched)
	}
	wm := desc.MatrixIDs["WebMercatorQuad"]
	if len(wm) != 1 || wm[0].Ranges == nil || wm[0].Ranges.Cols.Max != 0 {
		t.Fatalf("explicit limits not used: %+v", wm)
	}
	def := desc.MatrixIDs["EPSG:900913"]
	if len(def) != 31 || def[3].Identifier != "EPSG:900913:3" || def[3].Ranges.Rows.Min != 3 {
		t.Fatalf("built-in limits not used: %+v", def[:4])
	}
	if len(desc.Failures) != 0 {
		t.Fatalf("unexpected failures: %+v", desc.Failures)
	}
}

func TestResolve_TilesetFailureIsIsolated(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/ogc/collections/a", jsonHandler(`{"id":"a","links":[
		{"rel":"tiles","type":"application/json","href":"/ogc/collections/a/tiles/broken"},
		{"rel":"tiles","type":"application/json","href":"/ogc/collections/a/tiles/ok"}]}`))
	mux.HandleFunc("/ogc/collections/a/tiles/broken", func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})
	mux.Handle("/ogc/collections/a/tiles/ok", jsonHandler(`{"links":[{"rel":"tile","type":"image/jpeg","href":"http://t/{z}.jpg"}]}`))

	r, svc := newResolver(t, mux)
	desc, err := r.Resolve(context.Background(), "/ogc/collections/a", svc)
	if err != nil {
		t.Fatalf("tileset 404 must not fail the resolution: %v", err)
	}
	if len(desc.TileURLs) != 1 || desc.TileURLs[0].Format != "image/jpeg" {
		t.Fatalf("tileUrls=%+v", desc.TileURLs)
	}
	if desc.Format != "image/jpeg" {
		t.Fatalf("first-available fallback broken: %q", desc.Format)
	}
	if len(desc.Failures) != 1 || desc.Failures[0].Kind != KindTileset {
		t.Fatalf("failure not recorded: %+v", desc.Failures)
	}
	if desc.BBox.Bounds != (model.Bounds{MinX: -180, MinY: -90, MaxX: 180, MaxY: 90}) {
		t.Fatalf("missing extent must default to the world: %+v", desc.BBox.Bounds)
	}
}

func TestResolve_MatrixSetFailureIsIsolated(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/ogc/collections/a", jsonHandler(`{"id":"a","links":[{"rel":"tiles","href":"/ogc/collections/a/tiles"}]}`))
	mux.Handle("/ogc/collections/a/tiles", jsonHandler(`{
		"tileMatrixSetLinks":[{"tileMatrixSet":"Custom","tileMatrixSetURI":"/ogc/tms/missing"},{"tileMatrixSet":"Unknown"}],
		"links":[{"rel":"tile","type":"image/png","href":"/t.png"}]}`))

	r, svc := newResolver(t, mux)
	desc, err := r.Resolve(context.Background(), "/ogc/collections/a", svc)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(desc.TileMatrixSet) != 0 || len(desc.AllowedSRS) != 0 {
		t.Fatalf("failed sets must be dropped: %+v", desc.TileMatrixSet)
	}
	if len(desc.Failures) != 2 {
		t.Fatalf("failures=%+v", desc.Failures)
	}
	for _, f := range desc.Failures {
		if f.Kind != KindTileMatrixSet {
			t.Fatalf("kind=%q", f.Kind)
		}
	}
}

func TestResolve_CollectionFailureIsFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ogc/collections/gone", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"description":"Collection gone not found"}`)
	})
	r, svc := newResolver(t, mux)
	_, err := r.Resolve(context.Background(), "/ogc/collections/gone", svc)
	var ue *fetch.UpstreamError
	if !errors.As(err, &ue) || ue.Status != http.StatusNotFound {
		t.Fatalf("want upstream 404, got %v", err)
	}
	if fetch.Message(err) != "Collection gone not found" {
		t.Fatalf("message=%q", fetch.Message(err))
	}

	if _, err := r.Resolve(context.Background(), "", svc); !errors.Is(err, ErrNoCollectionURL) {
		t.Fatalf("empty url: %v", err)
	}
}

func TestParseExtent_Shapes(t *testing.T) {
	cases := []struct {
		raw   string
		shape ExtentShape
		want  model.Bounds
	}{
		{`{"spatial":{"bbox":[[1,2,3,4]]}}`, ExtentBBoxList, model.Bounds{MinX: 1, MinY: 2, MaxX: 3, MaxY: 4}},
		{`{"spatial":{"bbox":[[1,2,0,3,4,100]]}}`, ExtentBBoxList, model.Bounds{MinX: 1, MinY: 2, MaxX: 3, MaxY: 4}},
		{`{"spatial":[5,6,7,8]}`, ExtentFlat, model.Bounds{MinX: 5, MinY: 6, MaxX: 7, MaxY: 8}},
		{`{"spatial":[5,6]}`, ExtentWorld, model.Bounds{MinX: -180, MinY: -90, MaxX: 180, MaxY: 90}},
		{`{"temporal":{}}`, ExtentWorld, model.Bounds{MinX: -180, MinY: -90, MaxX: 180, MaxY: 90}},
		{``, ExtentWorld, model.Bounds{MinX: -180, MinY: -90, MaxX: 180, MaxY: 90}},
	}
	for _, c := range cases {
		bbox, shape := ParseExtent(json.RawMessage(c.raw))
		if shape != c.shape || bbox.Bounds != c.want {
			t.Fatalf("ParseExtent(%s) = %v %+v, want %v %+v", c.raw, shape, bbox.Bounds, c.shape, c.want)
		}
	}
}
