// Package fetch is the single boundary through which OGC API documents are read and written.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mohammed-shakir/ogcapi-resolver/internal/core/observability"
)

const (
	acceptJSON   = "application/json"
	maxErrorBody = 8 << 10
)

// Interface is what the resolvers need from the fetch boundary.
type Interface interface {
	GetJSON(ctx context.Context, document, url string, v any) error
	GetRaw(ctx context.Context, document, url string) ([]byte, string, error)
}

// Writer is implemented by fetchers able to store documents.
type Writer interface {
	Put(ctx context.Context, url, contentType string, body []byte) error
}

// UpstreamError reports a document that could not be obtained.
// Status is zero when no response was received.
type UpstreamError struct {
	URL         string
	Status      int
	Description string
	Body        string
	Err         error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Status != 0 && e.Description != "":
		return fmt.Sprintf("upstream %s: status %d: %s", e.URL, e.Status, e.Description)
	case e.Status != 0:
		return fmt.Sprintf("upstream %s: status %d", e.URL, e.Status)
	default:
		return fmt.Sprintf("upstream %s: %v", e.URL, e.Err)
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Message returns the server-provided description of err, or "Connection error".
func Message(err error) string {
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.Description != "" {
		return ue.Description
	}
	return "Connection error"
}

type Fetcher struct {
	logger  *slog.Logger
	client  *http.Client
	timeout time.Duration
	now     func() time.Time // for tests
}

func New(logger *slog.Logger, client *http.Client, timeout time.Duration) *Fetcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{logger: logger, client: client, timeout: timeout, now: time.Now}
}

// GetJSON fetches url and decodes the body into v.
func (f *Fetcher) GetJSON(ctx context.Context, document, url string, v any) error {
	b, _, err := f.GetRaw(ctx, document, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return &UpstreamError{URL: url, Err: fmt.Errorf("decode %s: %w", document, err)}
	}
	return nil
}

// GetRaw fetches url and returns its body and content type.
func (f *Fetcher) GetRaw(ctx context.Context, document, url string) ([]byte, string, error) {
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", &UpstreamError{URL: url, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", acceptJSON+", */*;q=0.8")

	start := f.now()
	resp, err := f.client.Do(req)
	dur := f.now().Sub(start)
	if err != nil {
		observability.ObserveUpstream(document, err, dur.Seconds())
		f.logger.DebugContext(ctx, "fetch failed", "document", document, "url", url, "err", err)
		return nil, "", &UpstreamError{URL: url, Err: fmt.Errorf("do request: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if err := statusError(url, resp); err != nil {
		observability.ObserveUpstream(document, err, dur.Seconds())
		f.logger.DebugContext(ctx, "fetch rejected", "document", document, "url", url, "status", resp.StatusCode)
		return nil, "", err
	}

	b, err := io.ReadAll(resp.Body)
	observability.ObserveUpstream(document, err, f.now().Sub(start).Seconds())
	if err != nil {
		return nil, "", &UpstreamError{URL: url, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	f.logger.DebugContext(ctx, "fetched", "document", document, "url", url, "bytes", len(b), "duration", dur)
	return b, resp.Header.Get("Content-Type"), nil
}

// Put stores body at url with the given media type.
func (f *Fetcher) Put(ctx context.Context, url, contentType string, body []byte) error {
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return &UpstreamError{URL: url, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", contentType)

	start := f.now()
	resp, err := f.client.Do(req)
	if err != nil {
		observability.ObserveUpstream("put", err, f.now().Sub(start).Seconds())
		return &UpstreamError{URL: url, Err: fmt.Errorf("do request: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()
	err = statusError(url, resp)
	observability.ObserveUpstream("put", err, f.now().Sub(start).Seconds())
	return err
}

func (f *Fetcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.timeout)
}

func statusError(url string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var exc struct {
		Description string `json:"description"`
	}
	_ = json.Unmarshal(b, &exc)
	return &UpstreamError{
		URL:         url,
		Status:      resp.StatusCode,
		Description: exc.Description,
		Body:        string(b),
		Err:         fmt.Errorf("upstream status %d", resp.StatusCode),
	}
}
