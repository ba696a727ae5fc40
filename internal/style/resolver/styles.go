package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/mohammed-shakir/ogcapi-resolver/internal/logger"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/ogc/link"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/ogc/model"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/style/translate"
)

// UpdateStyle completes a listed style record with its describedBy document.
// Records that already list layers are returned as they are; on failure the
// record comes back flagged with Error.
func (r *Resolver) UpdateStyle(ctx context.Context, style model.StyleMetadata) model.StyleMetadata {
	if len(style.Layers) > 0 {
		return style
	}
	merged, err := r.describe(ctx, style)
	if err != nil {
		r.degrade(ctx, KindDescribedBy, style.ID, err)
		style.Error = true
		return style
	}
	return merged
}

func (r *Resolver) describe(ctx context.Context, style model.StyleMetadata) (model.StyleMetadata, error) {
	l, ok := r.dialects.Find(style.Links, link.PurposeDescribedBy)
	if !ok || l.Href == "" {
		return style, ErrNoDescribedBy
	}
	raw, _, err := r.fetcher.GetRaw(ctx, "style_metadata", l.Href)
	if err != nil {
		return style, err
	}
	merged := style
	merged.Links = slices.Clone(style.Links)
	merged.Stylesheets = slices.Clone(style.Stylesheets)
	merged.Layers = slices.Clone(style.Layers)
	if err := json.Unmarshal(raw, &merged); err != nil {
		return style, fmt.Errorf("decode style metadata: %w", err)
	}
	return merged, nil
}

// StyleCatalog is the content of an OGC API Styles service.
type StyleCatalog struct {
	Service     json.RawMessage       `json:"service"`
	Conformance json.RawMessage       `json:"conformance"`
	Styles      []model.StyleMetadata `json:"styles"`
}

type stylesDoc struct {
	Styles []model.StyleMetadata `json:"styles"`
}

// ListStyles reads the landing page of a styles service, then its service,
// conformance and data documents concurrently, and completes every style that
// has a describedBy link. Styles without one are left out. Only a landing page
// failure is returned; fetch.Message turns it into a user-facing message.
func (r *Resolver) ListStyles(ctx context.Context, serviceURL string) (StyleCatalog, error) {
	ctx = logger.WithService(logger.WithComponent(ctx, "style"), serviceURL)
	var landing model.ServiceDocument
	if err := r.fetcher.GetJSON(ctx, "landing", serviceURL, &landing); err != nil {
		return StyleCatalog{}, fmt.Errorf("fetch styles landing page: %w", err)
	}

	purposes := []link.Purpose{link.PurposeService, link.PurposeConformance, link.PurposeData}
	docs := model.Settle(ctx, len(purposes), func(ctx context.Context, i int) (json.RawMessage, error) {
		l, ok := r.dialects.Find(landing.Links, purposes[i])
		if !ok || l.Href == "" {
			return nil, fmt.Errorf("landing page has no %s link", purposes[i])
		}
		b, _, err := r.fetcher.GetRaw(ctx, string(purposes[i]), link.ResolveHref(serviceURL, l.Href))
		return b, err
	})

	cat := StyleCatalog{
		Service:     rawOrNull(docs[0]),
		Conformance: rawOrNull(docs[1]),
		Styles:      []model.StyleMetadata{},
	}
	var listed stylesDoc
	if docs[2].OK() {
		if err := json.Unmarshal(docs[2].Value, &listed); err != nil {
			r.logger.WarnContext(ctx, "styles document undecodable", "err", err)
		}
	}

	var described []model.StyleMetadata
	for _, s := range listed.Styles {
		if l, ok := r.dialects.Find(s.Links, link.PurposeDescribedBy); ok && l.Href != "" {
			for i := range s.Links {
				s.Links[i].Href = link.ResolveHref(serviceURL, s.Links[i].Href)
			}
			described = append(described, s)
		}
	}
	enriched := model.Settle(ctx, len(described), func(ctx context.Context, i int) (model.StyleMetadata, error) {
		return r.describe(ctx, described[i])
	})
	for i, e := range enriched {
		if !e.OK() {
			r.degrade(ctx, KindDescribedBy, described[i].ID, e.Err)
			s := described[i]
			s.Error = true
			cat.Styles = append(cat.Styles, s)
			continue
		}
		cat.Styles = append(cat.Styles, e.Value)
	}
	return cat, nil
}

func rawOrNull(b model.Branch[json.RawMessage]) json.RawMessage {
	if !b.OK() || len(b.Value) == 0 || !json.Valid(b.Value) {
		return json.RawMessage("null")
	}
	return b.Value
}

// Composition is the renderer-ready output of Compose.
type Composition struct {
	Layers   []model.LayerWithStyle `json:"layers"`
	Metadata []model.StyleMetadata  `json:"metadata"`
}

// Compose completes, resolves and binds a selection of styles. A style covering
// several layers has its native stylesheet split so each layer receives its own
// part. Metadata is enriched with serviceURL, format and background colour.
func (r *Resolver) Compose(ctx context.Context, serviceURL string, selected []model.StyleMetadata) Composition {
	updated := model.Settle(ctx, len(selected), func(ctx context.Context, i int) (model.StyleMetadata, error) {
		return r.UpdateStyle(ctx, selected[i]), nil
	})
	bundles := model.Settle(ctx, len(updated), func(ctx context.Context, i int) (model.ResolvedStyleBundle, error) {
		return r.ResolveStyleLayers(ctx, updated[i].Value), nil
	})

	out := Composition{Layers: []model.LayerWithStyle{}, Metadata: make([]model.StyleMetadata, 0, len(bundles))}
	for _, b := range bundles {
		bundle := b.Value
		available := make([]model.StyleEntry, 0, len(bundle.Styles))
		for _, s := range bundle.Styles {
			available = append(available, s.Value)
		}
		out.Layers = append(out.Layers, r.bind(ctx, bundle, available)...)
		out.Metadata = append(out.Metadata, enrich(bundle.StyleMetadata, available, serviceURL))
	}
	return out
}

func (r *Resolver) bind(ctx context.Context, bundle model.ResolvedStyleBundle, available []model.StyleEntry) []model.LayerWithStyle {
	layers := model.Values(bundle.Layers)
	meta := bundle.StyleMetadata
	switch len(layers) {
	case 0:
		return nil
	case 1:
		return []model.LayerWithStyle{r.MergeIntoLayer(layers[0], available, meta)}
	}

	native, _ := NativeStyle(available)
	parts, err := SplitStyleSheet(native.Format, native.StyleBody)
	if err != nil {
		r.logger.WarnContext(ctx, "stylesheet split failed", "style", meta.ID, "format", native.Format, "err", err)
	}
	out := make([]model.LayerWithStyle, 0, len(layers))
	for _, l := range layers {
		part := native
		part.Split = true
		part.StyleBody = parts[l.StyleLayerName]
		out = append(out, r.MergeIntoLayer(l, []model.StyleEntry{part}, meta))
	}
	return out
}

func enrich(meta model.StyleMetadata, available []model.StyleEntry, serviceURL string) model.StyleMetadata {
	meta.ServiceURL = serviceURL
	meta.BackgroundColor = translate.DefaultBackgroundColor
	native, ok := NativeStyle(available)
	if !ok {
		return meta
	}
	if native.Link != nil {
		meta.Format = translate.FormatFromMimeType(native.Link.Type)
	}
	if len(native.StyleBody) > 0 {
		meta.BackgroundColor = translate.GetBackgroundColor(meta.Format, native.StyleBody)
	}
	return meta
}

type styleTarget struct {
	url         string
	contentType string
	metadata    map[string]string
}

func target(meta model.StyleMetadata) (styleTarget, error) {
	var native *model.Stylesheet
	for i := range meta.Stylesheets {
		if meta.Stylesheets[i].Native {
			native = &meta.Stylesheets[i]
			break
		}
	}
	if native == nil || native.Link == nil || native.Link.Href == "" {
		return styleTarget{}, ErrNoNativeStylesheet
	}
	u, _, _ := strings.Cut(native.Link.Href, "?")
	md := map[string]string{}
	for k, v := range map[string]string{
		"title":          meta.Title,
		"description":    meta.Description,
		"pointOfContact": meta.PointOfContact,
	} {
		if v != "" {
			md[k] = v
		}
	}
	return styleTarget{url: u, contentType: native.Link.Type, metadata: md}, nil
}

// Save stores body at the native stylesheet URL of meta, then its descriptive
// metadata at <url>/metadata.
func (r *Resolver) Save(ctx context.Context, meta model.StyleMetadata, body []byte) error {
	t, err := target(meta)
	if err != nil {
		return err
	}
	return r.put(ctx, t.url, t, body)
}

// Clone stores body and metadata as a new style named newName, derived from the
// native stylesheet URL of meta, and returns the new stylesheet URL.
func (r *Resolver) Clone(ctx context.Context, meta model.StyleMetadata, body []byte, newName string) (string, error) {
	if newName == "" {
		return "", fmt.Errorf("clone %q: empty style name", meta.ID)
	}
	t, err := target(meta)
	if err != nil {
		return "", err
	}
	u := strings.Replace(t.url, meta.ID, newName, 1)
	return u, r.put(ctx, u, t, body)
}

func (r *Resolver) put(ctx context.Context, u string, t styleTarget, body []byte) error {
	if r.writer == nil {
		return fmt.Errorf("style writes are not configured")
	}
	if err := r.writer.Put(ctx, u, t.contentType, body); err != nil {
		return fmt.Errorf("put stylesheet: %w", err)
	}
	md, err := json.Marshal(t.metadata)
	if err != nil {
		return err
	}
	if err := r.writer.Put(ctx, u+"/metadata", link.MediaJSON, md); err != nil {
		return fmt.Errorf("put style metadata: %w", err)
	}
	r.logger.InfoContext(ctx, "style stored", "url", u, "bytes", len(body))
	return nil
}
