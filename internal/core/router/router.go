// Package router exposes the resolvers as JSON HTTP handlers.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/ogcapi-resolver/internal/core/fetch"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/core/observability"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/invalidation"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/ogc/model"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/style/resolver"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/style/translate"
)

const (
	defaultMaxRecords = 10
	maxBodyBytes      = 8 << 20
)

type Records interface {
	GetRecords(ctx context.Context, serviceURL string, start, maxRecords int, text string) (model.PageResult, error)
	GetCollections(ctx context.Context, serviceURL string) ([]model.CollectionSummary, error)
	Reset(ctx context.Context) error
}

type Collections interface {
	Resolve(ctx context.Context, collectionURL, serviceURL string) (model.CollectionDescriptor, error)
}

type Styles interface {
	ListStyles(ctx context.Context, serviceURL string) (resolver.StyleCatalog, error)
	Compose(ctx context.Context, serviceURL string, selected []model.StyleMetadata) resolver.Composition
	Save(ctx context.Context, meta model.StyleMetadata, body []byte) error
	Clone(ctx context.Context, meta model.StyleMetadata, body []byte, newName string) (string, error)
}

// Cache evicts one service's capabilities.
type Cache interface {
	Invalidate(ctx context.Context, serviceURL string) error
}

// Broadcaster forwards cache evictions to the other instances.
type Broadcaster interface {
	Publish(ev invalidation.Event)
}

type Handlers struct {
	Logger      *slog.Logger
	Records     Records
	Collections Collections
	Styles      Styles
	Cache       Cache
	Broadcast   Broadcaster

	// defaults for requests without ?service=
	ServiceURL string
	StylesURL  string
}

// Mount registers the resolver routes on r.
func (h Handlers) Mount(r chi.Router) {
	r.Get("/records", h.observe("/records", h.records))
	r.Get("/collections", h.observe("/collections", h.collections))
	r.Get("/collection", h.observe("/collection", h.collection))
	r.Get("/styles", h.observe("/styles", h.styles))
	r.Post("/styles/resolve", h.observe("/styles/resolve", h.resolveStyles))
	r.Post("/styles/save", h.observe("/styles/save", h.saveStyle))
	r.Post("/styles/clone", h.observe("/styles/clone", h.cloneStyle))
	r.Post("/stylesheets/background", h.observe("/stylesheets/background", h.background))
	r.Delete("/cache", h.observe("/cache", h.resetCache))
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (h Handlers) observe(route string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		fn(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

func (h Handlers) records(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := intParam(q.Get("start"), 1)
	if err != nil {
		badRequest(w, fmt.Errorf("start: %w", err))
		return
	}
	maxRecords, err := intParam(q.Get("max"), defaultMaxRecords)
	if err != nil {
		badRequest(w, fmt.Errorf("max: %w", err))
		return
	}
	page, err := h.Records.GetRecords(r.Context(), h.service(r), start, maxRecords, q.Get("q"))
	if err != nil {
		h.upstreamFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h Handlers) collections(w http.ResponseWriter, r *http.Request) {
	out, err := h.Records.GetCollections(r.Context(), h.service(r))
	if err != nil {
		h.upstreamFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": out})
}

func (h Handlers) collection(w http.ResponseWriter, r *http.Request) {
	u := strings.TrimSpace(r.URL.Query().Get("url"))
	if u == "" {
		badRequest(w, errors.New("missing required parameter: url"))
		return
	}
	desc, err := h.Collections.Resolve(r.Context(), u, h.service(r))
	if err != nil {
		h.upstreamFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, desc)
}

func (h Handlers) styles(w http.ResponseWriter, r *http.Request) {
	cat, err := h.Styles.ListStyles(r.Context(), h.stylesService(r))
	if err != nil {
		h.upstreamFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cat)
}

func (h Handlers) resolveStyles(w http.ResponseWriter, r *http.Request) {
	var selected []model.StyleMetadata
	if err := decodeBody(r, &selected); err != nil {
		badRequest(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Styles.Compose(r.Context(), h.stylesService(r), selected))
}

type saveRequest struct {
	Style      model.StyleMetadata `json:"style"`
	Stylesheet string              `json:"stylesheet"`
	Name       string              `json:"name,omitempty"`
}

func (h Handlers) saveStyle(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	if err := h.Styles.Save(r.Context(), req.Style, []byte(req.Stylesheet)); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h Handlers) cloneStyle(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		badRequest(w, errors.New("missing required field: name"))
		return
	}
	u, err := h.Styles.Clone(r.Context(), req.Style, []byte(req.Stylesheet), req.Name)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"url": u})
}

type backgroundRequest struct {
	Format          string `json:"format"`
	Stylesheet      string `json:"stylesheet"`
	StyleName       string `json:"styleName"`
	BackgroundColor string `json:"backgroundColor"`
}

func (h Handlers) background(w http.ResponseWriter, r *http.Request) {
	var req backgroundRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	out, err := translate.SetBackgroundColor(req.Format, []byte(req.Stylesheet), translate.Background{
		StyleName:       req.StyleName,
		BackgroundColor: req.BackgroundColor,
	})
	if err != nil {
		badRequest(w, err)
		return
	}
	ct := translate.MimeTypeFromFormat(req.Format)
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	_, _ = w.Write(out)
}

// resetCache drops the capabilities of ?service=, or everything without it.
func (h Handlers) resetCache(w http.ResponseWriter, r *http.Request) {
	ev := invalidation.Event{Version: 1, Scope: invalidation.ScopeAll, Source: "http"}
	var err error
	if svc := strings.TrimSpace(r.URL.Query().Get("service")); svc != "" && h.Cache != nil {
		ev.Scope, ev.ServiceURL = invalidation.ScopeService, svc
		if verr := ev.Validate(); verr != nil {
			badRequest(w, verr)
			return
		}
		err = h.Cache.Invalidate(r.Context(), svc)
	} else {
		err = h.Records.Reset(r.Context())
	}
	if err != nil {
		h.Logger.ErrorContext(r.Context(), "cache reset failed", "scope", ev.Scope, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if h.Broadcast != nil {
		ev.TS = time.Now().UTC()
		h.Broadcast.Publish(ev)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h Handlers) service(r *http.Request) string {
	if s := strings.TrimSpace(r.URL.Query().Get("service")); s != "" {
		return s
	}
	return h.ServiceURL
}

func (h Handlers) stylesService(r *http.Request) string {
	if s := strings.TrimSpace(r.URL.Query().Get("service")); s != "" {
		return s
	}
	return h.StylesURL
}

// upstreamFailure reports a failed seed fetch the way the styles client
// shows it: the server description, else "Connection error".
func (h Handlers) upstreamFailure(w http.ResponseWriter, r *http.Request, err error) {
	h.Logger.WarnContext(r.Context(), "upstream failure", "path", r.URL.Path, "err", err)
	writeJSON(w, http.StatusBadGateway, map[string]string{"error": fetch.Message(err)})
}

func (h Handlers) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, resolver.ErrNoNativeStylesheet) {
		badRequest(w, err)
		return
	}
	h.upstreamFailure(w, r, err)
}

func intParam(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse int: %w", err)
	}
	if n < 0 {
		return 0, errors.New("must not be negative")
	}
	return n, nil
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
