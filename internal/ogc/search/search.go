// Package search pages through the collections of an OGC API service and
// resolves each page entry into a layer descriptor.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mohammed-shakir/ogcapi-resolver/internal/cache/capabilities"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/cache/keys"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/core/fetch"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/logger"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/ogc/link"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/ogc/model"
)

const defaultRecordError = "Cannot get this collection"

var ErrNoDataLink = errors.New("landing page has no data link")

type CollectionResolver interface {
	Resolve(ctx context.Context, collectionURL, serviceURL string) (model.CollectionDescriptor, error)
}

// Cache is the part of capabilities.Cache the paginator uses.
type Cache interface {
	Lookup(ctx context.Context, key string) (json.RawMessage, bool)
	Put(ctx context.Context, key string, data json.RawMessage) capabilities.Entry
	InvalidateAll(ctx context.Context) error
}

type Paginator struct {
	logger   *slog.Logger
	fetcher  fetch.Interface
	cache    Cache
	resolver CollectionResolver
	dialects link.Dialects
}

func New(logger *slog.Logger, f fetch.Interface, c Cache, r CollectionResolver, d link.Dialects) *Paginator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if d == nil {
		d = link.Default()
	}
	return &Paginator{logger: logger, fetcher: f, cache: c, resolver: r, dialects: d}
}

// Filter keeps collections whose id, name or title contains text, ignoring case.
// An empty text keeps everything.
func Filter(collections []model.CollectionSummary, text string) []model.CollectionSummary {
	if text == "" {
		return collections
	}
	q := strings.ToLower(text)
	out := make([]model.CollectionSummary, 0, len(collections))
	for _, c := range collections {
		if strings.Contains(strings.ToLower(c.ID), q) ||
			strings.Contains(strings.ToLower(c.Name), q) ||
			strings.Contains(strings.ToLower(c.Title), q) {
			out = append(out, c)
		}
	}
	return out
}

// SearchAndPaginate filters doc, takes the window [start-1, start-1+maxRecords) and
// resolves every entry of the window concurrently. Entries that fail to resolve
// are kept as error records.
func (p *Paginator) SearchAndPaginate(ctx context.Context, doc model.CollectionsDocument, start, maxRecords int, text, serviceURL string) model.PageResult {
	ctx = logger.WithComponent(ctx, "search")
	if start < 1 {
		start = 1
	}
	if maxRecords < 0 {
		maxRecords = 0
	}
	filtered := Filter(doc.Collections, text)
	lo := min(start-1, len(filtered))
	hi := min(lo+maxRecords, len(filtered))
	page := filtered[lo:hi]

	branches := model.Settle(ctx, len(page), func(ctx context.Context, i int) (model.CollectionDescriptor, error) {
		href := link.Href(page[i].Links, p.dialects.For(link.PurposeCollection)...)
		return p.resolver.Resolve(ctx, href, serviceURL)
	})

	records := make([]model.Record, len(page))
	for i, b := range branches {
		if b.OK() {
			layer := b.Value
			records[i] = model.Record{Layer: &layer}
			continue
		}
		summary := page[i]
		msg := recordError(b.Err)
		p.logger.WarnContext(ctx, "collection unresolved", "collection", summary.ID, "err", b.Err)
		records[i] = model.Record{Summary: &summary, Error: msg}
	}

	returned := min(maxRecords, len(filtered))
	return model.PageResult{
		NumberOfRecordsMatched:  len(filtered),
		NumberOfRecordsReturned: returned,
		NextRecord:              start + returned + 1,
		Records:                 records,
	}
}

// GetRecords pages the collections of serviceURL, reading the collections
// document from the cache while it is valid.
func (p *Paginator) GetRecords(ctx context.Context, serviceURL string, start, maxRecords int, text string) (model.PageResult, error) {
	ctx = logger.WithService(ctx, serviceURL)
	doc, err := p.collections(ctx, serviceURL, serviceURL)
	if err != nil {
		return model.PageResult{}, err
	}
	return p.SearchAndPaginate(ctx, doc, start, maxRecords, text, serviceURL), nil
}

// TextSearch is GetRecords under the name catalog clients use for free-text queries.
func (p *Paginator) TextSearch(ctx context.Context, serviceURL string, start, maxRecords int, text string) (model.PageResult, error) {
	return p.GetRecords(ctx, serviceURL, start, maxRecords, text)
}

// GetCollections lists the collections of serviceURL, cached separately from GetRecords.
func (p *Paginator) GetCollections(ctx context.Context, serviceURL string) ([]model.CollectionSummary, error) {
	ctx = logger.WithService(ctx, serviceURL)
	doc, err := p.collections(ctx, serviceURL, keys.Collections(serviceURL))
	if err != nil {
		return nil, err
	}
	return doc.Collections, nil
}

// Reset drops every cached capabilities document.
func (p *Paginator) Reset(ctx context.Context) error {
	return p.cache.InvalidateAll(ctx)
}

func (p *Paginator) collections(ctx context.Context, serviceURL, cacheKey string) (model.CollectionsDocument, error) {
	var doc model.CollectionsDocument
	if raw, ok := p.cache.Lookup(ctx, cacheKey); ok {
		if err := json.Unmarshal(raw, &doc); err == nil {
			p.logger.DebugContext(ctx, "collections from cache", "key", cacheKey)
			return doc, nil
		}
	}

	dataURL, err := p.dataURL(ctx, serviceURL)
	if err != nil {
		return doc, err
	}
	raw, _, err := p.fetcher.GetRaw(ctx, "collections", dataURL)
	if err != nil {
		return doc, fmt.Errorf("fetch collections: %w", err)
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, &fetch.UpstreamError{URL: dataURL, Err: fmt.Errorf("decode collections: %w", err)}
	}
	p.cache.Put(ctx, cacheKey, raw)
	return doc, nil
}

func (p *Paginator) dataURL(ctx context.Context, serviceURL string) (string, error) {
	var landing model.ServiceDocument
	if err := p.fetcher.GetJSON(ctx, "landing", serviceURL, &landing); err != nil {
		return "", fmt.Errorf("fetch landing page: %w", err)
	}
	l, ok := p.dialects.Find(landing.Links, link.PurposeData)
	if !ok || l.Href == "" {
		return "", ErrNoDataLink
	}
	return link.ResolveHref(serviceURL, l.Href), nil
}

func recordError(err error) string {
	var ue *fetch.UpstreamError
	if errors.As(err, &ue) && ue.Description != "" {
		return ue.Description
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return defaultRecordError
}
