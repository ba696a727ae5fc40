// Package capabilities caches fetched OGC API documents with time-based expiry.
//
// Entries live in a bounded in-process LRU and, optionally, in a shared Redis tier.
// Validity is evaluated at read time against the expiry currently configured, so a
// change of expiry applies to entries already cached.
package capabilities

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/ogcapi-resolver/internal/cache/keys"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/core/observability"
)

const (
	tierMemory = "memory"
	tierShared = "redis"

	defaultSize     = 256
	defaultExpiry   = 60 * time.Second
	defaultOpTimout = 250 * time.Millisecond
)

// Entry is a cached document and the epoch-millisecond time it was stored.
type Entry struct {
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Shared is the optional second tier, implemented by redisstore.Client.
type Shared interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	DelPrefix(ctx context.Context, prefix string) (int, error)
}

type Cache struct {
	logger    *slog.Logger
	l1        *lru.Cache[string, Entry]
	l2        Shared
	expiry    func() time.Duration
	now       func() time.Time
	opTimeout time.Duration
	sharedTTL time.Duration
}

type Option func(*Cache)

func WithShared(s Shared) Option { return func(c *Cache) { c.l2 = s } }

func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

func WithLogger(l *slog.Logger) Option { return func(c *Cache) { c.logger = l } }

// WithOpTimeout bounds each shared-tier call.
func WithOpTimeout(d time.Duration) Option { return func(c *Cache) { c.opTimeout = d } }

// WithSharedTTL sets how long Redis keeps an entry. It only reclaims memory;
// validity is still decided by the timestamp rule.
func WithSharedTTL(d time.Duration) Option { return func(c *Cache) { c.sharedTTL = d } }

// New creates a cache holding up to size entries in memory. expiry is consulted
// on every validity check; nil means 60 seconds.
func New(size int, expiry func() time.Duration, opts ...Option) *Cache {
	if size <= 0 {
		size = defaultSize
	}
	if expiry == nil {
		expiry = func() time.Duration { return defaultExpiry }
	}
	l1, _ := lru.New[string, Entry](size)
	c := &Cache{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		l1:        l1,
		expiry:    expiry,
		now:       time.Now,
		opTimeout: defaultOpTimout,
		sharedTTL: 24 * time.Hour,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the entry stored under key, valid or not. Shared-tier hits are
// promoted to memory.
func (c *Cache) Get(ctx context.Context, key string) (Entry, bool) {
	if e, ok := c.l1.Get(key); ok {
		observability.ObserveCache(tierMemory, c.outcome(e))
		return e, true
	}
	observability.ObserveCache(tierMemory, "miss")
	if c.l2 == nil {
		return Entry{}, false
	}

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	raw, found, err := c.l2.Get(opCtx, keys.Shared(key))
	if err != nil {
		observability.ObserveCache(tierShared, "error")
		c.logger.WarnContext(ctx, "shared cache get failed", "key", key, "err", err)
		return Entry{}, false
	}
	if !found {
		observability.ObserveCache(tierShared, "miss")
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		observability.ObserveCache(tierShared, "error")
		c.logger.WarnContext(ctx, "shared cache entry undecodable", "key", key, "err", err)
		return Entry{}, false
	}
	observability.ObserveCache(tierShared, c.outcome(e))
	c.l1.Add(key, e)
	return e, true
}

// Lookup returns the cached data for key only while the entry is valid.
func (c *Cache) Lookup(ctx context.Context, key string) (json.RawMessage, bool) {
	e, ok := c.Get(ctx, key)
	if !ok || !c.IsValid(e) {
		return nil, false
	}
	return e.Data, true
}

// Put stores data under key stamped with the current time. Concurrent writers
// for the same key overwrite each other.
func (c *Cache) Put(ctx context.Context, key string, data json.RawMessage) Entry {
	e := Entry{Timestamp: c.now().UnixMilli(), Data: data}
	c.l1.Add(key, e)
	if c.l2 == nil {
		return e
	}
	raw, err := json.Marshal(e)
	if err != nil {
		c.logger.WarnContext(ctx, "shared cache encode failed", "key", key, "err", err)
		return e
	}
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if err := c.l2.Set(opCtx, keys.Shared(key), raw, c.sharedTTL); err != nil {
		c.logger.WarnContext(ctx, "shared cache set failed", "key", key, "err", err)
	}
	return e
}

// IsValid reports whether now is before timestamp plus the configured expiry.
func (c *Cache) IsValid(e Entry) bool {
	exp := c.expiry()
	if exp <= 0 {
		exp = defaultExpiry
	}
	return c.now().UnixMilli() < e.Timestamp+exp.Milliseconds()
}

// Invalidate drops every key owned by serviceURL.
func (c *Cache) Invalidate(ctx context.Context, serviceURL string) error {
	owned := keys.ForService(serviceURL)
	shared := make([]string, 0, len(owned))
	for _, k := range owned {
		c.l1.Remove(k)
		shared = append(shared, keys.Shared(k))
	}
	if c.l2 == nil {
		return nil
	}
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	return c.l2.Del(opCtx, shared...)
}

// InvalidateAll clears every key in both tiers.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	c.l1.Purge()
	if c.l2 == nil {
		return nil
	}
	_, err := c.l2.DelPrefix(ctx, keys.Prefix)
	return err
}

func (c *Cache) Len() int { return c.l1.Len() }

func (c *Cache) outcome(e Entry) string {
	if c.IsValid(e) {
		return "hit"
	}
	return "expired"
}
