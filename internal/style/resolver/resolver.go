// Package resolver resolves OGC API Styles documents into layers bound to
// their stylesheets.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mohammed-shakir/ogcapi-resolver/internal/core/fetch"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/core/observability"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/logger"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/ogc/link"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/ogc/model"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/style/translate"
)

const (
	KindStylesheet  = "stylesheet"
	KindStyleLayer  = "style_layer"
	KindDescribedBy = "described_by"

	collectionsSegment = "/collections/"
	workspaceSeparator = "__"
)

var (
	ErrNoSampleData       = errors.New("style layer has no json sample data link")
	ErrNoNativeStylesheet = errors.New("style has no native stylesheet")
	ErrNoDescribedBy      = errors.New("style has no describedBy link")
)

type CollectionResolver interface {
	Resolve(ctx context.Context, collectionURL, serviceURL string) (model.CollectionDescriptor, error)
}

type Resolver struct {
	logger      *slog.Logger
	fetcher     fetch.Interface
	writer      fetch.Writer
	collections CollectionResolver
	dialects    link.Dialects
	newToken    func() string // for tests
}

type Option func(*Resolver)

// WithWriter enables Save and Clone.
func WithWriter(w fetch.Writer) Option { return func(r *Resolver) { r.writer = w } }

func WithDialects(d link.Dialects) Option { return func(r *Resolver) { r.dialects = d } }

func New(logger *slog.Logger, f fetch.Interface, c CollectionResolver, opts ...Option) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &Resolver{
		logger:      logger,
		fetcher:     f,
		collections: c,
		dialects:    link.Default(),
		newToken:    uuid.NewString,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SampleDataLayerURL derives the tiles collection URL of a style layer from its
// sample data link. A sample data collection named "ws__name" lives in workspace
// "ws", giving ".../collections/ws:<layer id>".
func SampleDataLayerURL(l model.StyleLayer, d link.Dialects) (string, error) {
	sample, ok := d.Find(l.SampleData, link.PurposeSampleData)
	if !ok || sample.Href == "" {
		return "", ErrNoSampleData
	}
	href := strings.Replace(sample.Href, "/features", "/tiles", 1)
	href = strings.Replace(href, "/coverages", "/tiles", 1)
	href = strings.Replace(href, "/items", "", 1)

	parts := strings.Split(href, collectionsSegment)
	if len(parts) < 2 {
		return "", fmt.Errorf("sample data %q is not a collection url", sample.Href)
	}
	start, oldName := parts[0], parts[1]
	workspace := ""
	if ws := strings.Split(oldName, workspaceSeparator); len(ws) > 1 {
		workspace = ws[0]
	}
	if workspace != "" {
		return start + collectionsSegment + workspace + ":" + l.ID, nil
	}
	return start + collectionsSegment + l.ID, nil
}

// ResolveStyleLayers fetches every stylesheet body and resolves every style layer
// concurrently, returning once all of them have settled. Failed slots are kept
// as failed branches.
func (r *Resolver) ResolveStyleLayers(ctx context.Context, meta model.StyleMetadata) model.ResolvedStyleBundle {
	ctx = logger.WithComponent(ctx, "style")
	var sheets []model.Stylesheet
	for _, s := range meta.Stylesheets {
		if s.Link != nil && s.Link.Href != "" {
			sheets = append(sheets, s)
		}
	}

	var (
		wg     sync.WaitGroup
		styles []model.Branch[model.StyleEntry]
		layers []model.Branch[model.ResolvedLayer]
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		styles = model.Settle(ctx, len(sheets), func(ctx context.Context, i int) (model.StyleEntry, error) {
			return r.stylesheet(ctx, sheets[i])
		})
	}()
	go func() {
		defer wg.Done()
		layers = model.Settle(ctx, len(meta.Layers), func(ctx context.Context, i int) (model.ResolvedLayer, error) {
			return r.styleLayer(ctx, meta.Layers[i])
		})
	}()
	wg.Wait()

	for i, s := range styles {
		if !s.OK() {
			r.degrade(ctx, KindStylesheet, sheets[i].Link.Href, s.Err)
		}
	}
	for i, l := range layers {
		if !l.OK() {
			r.degrade(ctx, KindStyleLayer, meta.Layers[i].ID, l.Err)
		}
	}
	return model.ResolvedStyleBundle{StyleMetadata: meta, Layers: layers, Styles: styles}
}

func (r *Resolver) stylesheet(ctx context.Context, s model.Stylesheet) (model.StyleEntry, error) {
	entry := model.StyleEntry{Stylesheet: s, Format: translate.FormatFromMimeType(s.Link.Type)}
	body, _, err := r.fetcher.GetRaw(ctx, "stylesheet", s.Link.Href)
	if err != nil {
		return entry, err
	}
	entry.StyleBody = body
	return entry, nil
}

func (r *Resolver) styleLayer(ctx context.Context, l model.StyleLayer) (model.ResolvedLayer, error) {
	u, err := SampleDataLayerURL(l, r.dialects)
	if err != nil {
		return model.ResolvedLayer{}, err
	}
	desc, err := r.collections.Resolve(ctx, u, u)
	if err != nil {
		return model.ResolvedLayer{}, err
	}
	return model.ResolvedLayer{CollectionDescriptor: desc, StyleLayerName: l.ID, LayerType: l.Type}, nil
}

func (r *Resolver) degrade(ctx context.Context, kind, ref string, err error) {
	observability.IncBranchFailure(kind)
	r.logger.WarnContext(ctx, "branch dropped", "kind", kind, "ref", ref, "err", err)
}

// NativeStyle returns the stylesheet flagged native, else the first one.
func NativeStyle(entries []model.StyleEntry) (model.StyleEntry, bool) {
	for _, e := range entries {
		if e.Native {
			return e, true
		}
	}
	if len(entries) == 0 {
		return model.StyleEntry{}, false
	}
	return entries[0], true
}

// MergeIntoLayer binds layer to the native stylesheet of available. Non-raster
// layers keep only their vector tile endpoints.
func (r *Resolver) MergeIntoLayer(layer model.ResolvedLayer, available []model.StyleEntry, meta model.StyleMetadata) model.LayerWithStyle {
	tileURLs := layer.TileURLs
	if layer.LayerType != "raster" {
		tileURLs = make([]model.TileURL, 0, len(layer.TileURLs))
		for _, u := range layer.TileURLs {
			if translate.IsVectorFormat(u.Format) {
				tileURLs = append(tileURLs, u)
			}
		}
	}
	layer.TileURLs = tileURLs
	layer.Format = model.PickFormat(tileURLs, model.MediaPNG, model.MediaPNG8, model.MediaMVT)

	native, _ := NativeStyle(available)
	if available == nil {
		available = []model.StyleEntry{}
	}
	return model.LayerWithStyle{
		ResolvedLayer: layer,
		ID:            layerID(),
		Group:         meta.ID,
		VectorStyle:   model.VectorStyle{Body: native.StyleBody, Format: native.Format},
		VisualStyleEditor: model.VisualStyleEditor{
			StyleMetadataID: meta.ID,
			Style:           strings.Replace(meta.ID, workspaceSeparator, ":", 1),
			AvailableStyles: available,
		},
		Freshness: r.newToken(),
	}
}

// layerID is time-ordered so layers added in one batch sort by creation.
func layerID() string {
	id, err := uuid.NewUUID()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
