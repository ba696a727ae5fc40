// Package collection resolves an OGC API collection into a layer descriptor.
//
// Resolution runs in four stages separated by barriers: the collection document,
// its tilesets, the format choice, and the tile matrix sets. Only a failure of the
// first stage is returned as an error; failed tilesets and matrix sets are dropped
// and listed in the descriptor's Failures.
package collection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mohammed-shakir/ogcapi-resolver/internal/core/fetch"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/core/observability"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/logger"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/ogc/link"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/ogc/model"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/ogc/tms"
)

const (
	KindTileset       = "tileset"
	KindTileMatrixSet = "tilematrixset"
)

// FormatPreference is the order in which tile formats are chosen as a layer's default.
var FormatPreference = []string{model.MediaMVT, model.MediaPNG, model.MediaPNG8}

var ErrNoCollectionURL = errors.New("collection url is empty")

type Resolver struct {
	logger   *slog.Logger
	fetcher  fetch.Interface
	dialects link.Dialects
}

func New(logger *slog.Logger, f fetch.Interface, d link.Dialects) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if d == nil {
		d = link.Default()
	}
	return &Resolver{logger: logger, fetcher: f, dialects: d}
}

type tileset struct {
	urls  []model.TileURL
	links []model.TileMatrixSetLink
}

type matrixSet struct {
	set    model.TileMatrixSet
	limits []model.TileMatrixSetLimit
}

// Resolve turns collectionURL, relative or absolute, into a descriptor.
func (r *Resolver) Resolve(ctx context.Context, collectionURL, serviceURL string) (model.CollectionDescriptor, error) {
	ctx = logger.WithComponent(ctx, "collection")
	u := link.ResolveHref(serviceURL, collectionURL)
	if u == "" {
		return model.CollectionDescriptor{}, ErrNoCollectionURL
	}

	var doc collectionDoc
	if err := r.fetcher.GetJSON(ctx, "collection", u, &doc); err != nil {
		return model.CollectionDescriptor{}, fmt.Errorf("fetch collection: %w", err)
	}
	bbox, shape := ParseExtent(doc.Extent)
	desc := model.CollectionDescriptor{
		Name:            doc.ID,
		Title:           doc.Title,
		Type:            "ogc",
		Visibility:      true,
		BBox:            bbox,
		AvailableStyles: doc.Styles,
	}
	if len(doc.Styles) > 0 {
		desc.Style = doc.Styles[0].ID
	}
	tilesLinks := link.FindAll(doc.Links, r.dialects.For(link.PurposeTiles)...)
	r.logger.DebugContext(ctx, "collection fetched",
		"collection", doc.ID, "extent", shape.String(), "tiles_links", len(tilesLinks))

	tilesets := model.Settle(ctx, len(tilesLinks), func(ctx context.Context, i int) (tileset, error) {
		return r.tileset(ctx, link.ResolveHref(serviceURL, tilesLinks[i].Href), serviceURL)
	})
	if err := ctx.Err(); err != nil {
		return model.CollectionDescriptor{}, err
	}
	var (
		urls  []model.TileURL
		links []model.TileMatrixSetLink
	)
	for i, ts := range tilesets {
		if !ts.OK() {
			r.degrade(ctx, &desc, KindTileset, link.ResolveHref(serviceURL, tilesLinks[i].Href), ts.Err)
			continue
		}
		urls = append(urls, ts.Value.urls...)
		links = append(links, ts.Value.links...)
	}
	desc.TileURLs = uniqueTileURLs(urls)
	desc.TileMatrixSetLinks = uniqueMatrixSetLinks(links)

	desc.Format = model.PickFormat(desc.TileURLs, FormatPreference...)

	sets := model.Settle(ctx, len(desc.TileMatrixSetLinks), func(ctx context.Context, i int) (matrixSet, error) {
		return r.matrixSet(ctx, desc.TileMatrixSetLinks[i], serviceURL)
	})
	if err := ctx.Err(); err != nil {
		return model.CollectionDescriptor{}, err
	}
	desc.AllowedSRS = map[string]bool{}
	desc.TileMatrixSet = []model.TileMatrixSet{}
	desc.MatrixIDs = map[string][]model.MatrixLimit{}
	for i, ms := range sets {
		if !ms.OK() {
			l := desc.TileMatrixSetLinks[i]
			r.degrade(ctx, &desc, KindTileMatrixSet, firstNonEmpty(link.ResolveHref(serviceURL, l.TileMatrixSetURI), l.TileMatrixSet), ms.Err)
			continue
		}
		id := ms.Value.set.Identifier
		desc.AllowedSRS[id] = true
		desc.TileMatrixSet = append(desc.TileMatrixSet, ms.Value.set)
		desc.MatrixIDs[id] = matrixLimits(ms.Value.set, ms.Value.limits)
	}

	r.logger.DebugContext(ctx, "collection resolved",
		"collection", desc.Name, "format", desc.Format,
		"tile_urls", len(desc.TileURLs), "matrix_sets", len(desc.TileMatrixSet), "failures", len(desc.Failures))
	return desc, nil
}

func (r *Resolver) tileset(ctx context.Context, u, serviceURL string) (tileset, error) {
	var doc tilesetDoc
	if err := r.fetcher.GetJSON(ctx, "tileset", u, &doc); err != nil {
		return tileset{}, err
	}
	out := tileset{links: doc.TileMatrixSetLinks}
	for _, l := range link.FindAll(doc.Links, r.dialects.For(link.PurposeTile)...) {
		out.urls = append(out.urls, model.TileURL{URL: link.ResolveHref(serviceURL, l.Href), Format: l.Type})
	}
	return out, nil
}

func (r *Resolver) matrixSet(ctx context.Context, l model.TileMatrixSetLink, serviceURL string) (matrixSet, error) {
	if l.TileMatrixSetURI == "" {
		id := l.TileMatrixSet
		if id == "" {
			id = tms.GoogleMercator
		}
		def, ok := tms.Default(id)
		if !ok {
			return matrixSet{}, fmt.Errorf("no built-in tile matrix set %q", id)
		}
		limits := l.TileMatrixSetLimits
		if len(limits) == 0 {
			limits = def.Limits
		}
		return matrixSet{set: def.TileMatrixSet, limits: limits}, nil
	}

	var doc tileMatrixSetDoc
	if err := r.fetcher.GetJSON(ctx, "tilematrixset", link.ResolveHref(serviceURL, l.TileMatrixSetURI), &doc); err != nil {
		return matrixSet{}, err
	}
	set := doc.toModel()
	if set.Identifier == "" {
		set.Identifier = l.TileMatrixSet
	}
	return matrixSet{set: set, limits: l.TileMatrixSetLimits}, nil
}

func (r *Resolver) degrade(ctx context.Context, desc *model.CollectionDescriptor, kind, u string, err error) {
	observability.IncBranchFailure(kind)
	r.logger.WarnContext(ctx, "branch dropped", "kind", kind, "url", u, "err", err)
	desc.Failures = append(desc.Failures, model.BranchFailure{Kind: kind, URL: u, Reason: err.Error()})
}

// matrixLimits prefers explicit limits; without them every level is unbounded.
func matrixLimits(set model.TileMatrixSet, limits []model.TileMatrixSetLimit) []model.MatrixLimit {
	if len(limits) > 0 {
		out := make([]model.MatrixLimit, 0, len(limits))
		for _, l := range limits {
			out = append(out, model.MatrixLimit{
				Identifier: l.TileMatrix,
				Ranges: &model.MatrixRanges{
					Cols: model.Range{Min: l.MinTileCol, Max: l.MaxTileCol},
					Rows: model.Range{Min: l.MinTileRow, Max: l.MaxTileRow},
				},
			})
		}
		return out
	}
	out := make([]model.MatrixLimit, 0, len(set.TileMatrix))
	for _, tm := range set.TileMatrix {
		out = append(out, model.MatrixLimit{Identifier: tm.Identifier})
	}
	return out
}

// first occurrence of each format wins
func uniqueTileURLs(in []model.TileURL) []model.TileURL {
	seen := make(map[string]bool, len(in))
	out := make([]model.TileURL, 0, len(in))
	for _, u := range in {
		if seen[u.Format] {
			continue
		}
		seen[u.Format] = true
		out = append(out, u)
	}
	return out
}

func uniqueMatrixSetLinks(in []model.TileMatrixSetLink) []model.TileMatrixSetLink {
	seen := make(map[string]bool, len(in))
	out := make([]model.TileMatrixSetLink, 0, len(in))
	for _, l := range in {
		if seen[l.TileMatrixSet] {
			continue
		}
		seen[l.TileMatrixSet] = true
		out = append(out, l)
	}
	return out
}
