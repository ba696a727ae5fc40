// Package app wires configuration into the resolvers shared by the server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mohammed-shakir/ogcapi-resolver/internal/cache/capabilities"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/cache/redisstore"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/core/config"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/core/fetch"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/core/health"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/core/httpclient"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/core/router"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/invalidation"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/ogc/collection"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/ogc/link"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/ogc/search"
	styleresolver "github.com/mohammed-shakir/ogcapi-resolver/internal/style/resolver"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type App struct {
	Config      config.Config
	Logger      *slog.Logger
	Cache       *capabilities.Cache
	Collections *collection.Resolver
	Records     *search.Paginator
	Styles      *styleresolver.Resolver

	// nil unless invalidation is enabled and started
	Invalidation *kafkaconsumer.Consumer
	Publisher    *invalidation.Publisher

	redis *redisstore.Client
}

type Option func(*options)

type options struct {
	client *http.Client
}

// WithHTTPClient replaces the outbound client, mainly for tests.
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.client = c } }

// New builds every resolver from cfg. With CACHE_BACKEND=redis the shared tier
// must answer a ping.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, f := range opts {
		f(&o)
	}
	if o.client == nil {
		o.client = httpclient.NewOutbound(cfg.FetchTimeout)
	}

	dialects, err := link.LoadFile(cfg.DialectsFile)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger}
	cacheOpts := []capabilities.Option{
		capabilities.WithLogger(logger),
		capabilities.WithOpTimeout(cfg.CacheOpTimeout),
	}
	switch cfg.CacheBackend {
	case BackendMemory, "":
	case BackendRedis:
		rc, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("cache backend: %w", err)
		}
		a.redis = rc
		cacheOpts = append(cacheOpts, capabilities.WithShared(rc))
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
	a.Cache = capabilities.New(cfg.CacheSize, cfg.CacheExpire.Get, cacheOpts...)

	fetcher := fetch.New(logger, o.client, cfg.FetchTimeout)
	a.Collections = collection.New(logger, fetcher, dialects)
	a.Records = search.New(logger, fetcher, a.Cache, a.Collections, dialects)

	styleClient := *o.client
	styleClient.Transport = httpclient.BasicAuth(o.client.Transport, cfg.StyleAuthUser, cfg.StyleAuthPass)
	styleFetcher := fetch.New(logger, &styleClient, cfg.FetchTimeout)
	a.Styles = styleresolver.New(logger, styleFetcher, a.Collections,
		styleresolver.WithWriter(styleFetcher),
		styleresolver.WithDialects(dialects),
	)

	logger.Info("resolvers ready",
		"cache_backend", cfg.CacheBackend, "cache_size", cfg.CacheSize,
		"cache_expire", cfg.CacheExpire.Get(), "fetch_timeout", cfg.FetchTimeout)
	return a, nil
}

// StartInvalidation joins the Kafka invalidation topic when enabled, and
// opens the producer used to broadcast evictions requested over HTTP.
func (a *App) StartInvalidation(ctx context.Context) error {
	if !a.Config.Invalidation.Enabled {
		return nil
	}
	kc := kafkaconsumer.ConfigFrom(a.Config.Invalidation)
	c := kafkaconsumer.New(kc, a.Logger, a.Cache)
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("start invalidation consumer: %w", err)
	}
	a.Invalidation = c

	p, err := invalidation.NewPublisher(kc.Brokers, kc.Topic, a.Logger)
	if err != nil {
		return err
	}
	a.Publisher = p
	return nil
}

// Handlers exposes the resolvers to the HTTP facade.
func (a *App) Handlers() router.Handlers {
	h := router.Handlers{
		Logger:      a.Logger,
		Records:     a.Records,
		Collections: a.Collections,
		Styles:      a.Styles,
		Cache:       a.Cache,
		ServiceURL:  a.Config.ServiceURL,
		StylesURL:   a.Config.StylesURL,
	}
	if a.Publisher != nil {
		h.Broadcast = a.Publisher
	}
	return h
}

func (a *App) ReadyChecks() map[string]health.Check {
	checks := map[string]health.Check{}
	if a.redis != nil {
		checks["redis"] = func() bool { return a.redis.Healthy(a.Config.CacheOpTimeout) }
	}
	if a.Invalidation != nil {
		checks["invalidation"] = a.Invalidation.Ready
	}
	return checks
}

func (a *App) Close() error {
	var errs []error
	if a.Invalidation != nil {
		a.Invalidation.Stop()
	}
	if a.Publisher != nil {
		errs = append(errs, a.Publisher.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
