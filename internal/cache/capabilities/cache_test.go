package capabilities

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/ogcapi-resolver/internal/cache/keys"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/cache/redisstore"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
}

func fixedExpiry(d time.Duration) func() time.Duration {
	return func() time.Duration { return d }
}

func TestIsValid_BoundaryIsExclusive(t *testing.T) {
	clk := newClock()
	c := New(8, fixedExpiry(60*time.Second), WithClock(clk.Now))
	ctx := context.Background()

	c.Put(ctx, "http://svc", json.RawMessage(`{"collections":[]}`))
	clk.Advance(59*time.Second + 999*time.Millisecond)
	if _, ok := c.Lookup(ctx, "http://svc"); !ok {
		t.Fatalf("entry must be valid just before expiry")
	}
	clk.Advance(time.Millisecond)
	if _, ok := c.Lookup(ctx, "http://svc"); ok {
		t.Fatalf("entry must be invalid at timestamp+expiry")
	}
	if _, ok := c.Get(ctx, "http://svc"); !ok {
		t.Fatalf("Get must still return the expired entry")
	}
}

func TestIsValid_ExpiryReadAtCheckTime(t *testing.T) {
	clk := newClock()
	var secs atomic.Int64
	secs.Store(60)
	c := New(8, func() time.Duration { return time.Duration(secs.Load()) * time.Second }, WithClock(clk.Now))
	ctx := context.Background()

	e := c.Put(ctx, "k", json.RawMessage(`1`))
	clk.Advance(30 * time.Second)
	if !c.IsValid(e) {
		t.Fatalf("valid under 60s expiry")
	}
	secs.Store(10)
	if c.IsValid(e) {
		t.Fatalf("lowering expiry must apply to existing entries")
	}
	secs.Store(0)
	if !c.IsValid(e) {
		t.Fatalf("non-positive expiry means the 60s default")
	}
}

func TestInvalidate_DropsServiceKeysOnly(t *testing.T) {
	c := New(8, nil)
	ctx := context.Background()
	c.Put(ctx, "http://a", json.RawMessage(`1`))
	c.Put(ctx, keys.Collections("http://a"), json.RawMessage(`2`))
	c.Put(ctx, "http://b", json.RawMessage(`3`))

	if err := c.Invalidate(ctx, "http://a"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok := c.Get(ctx, "http://a"); ok {
		t.Fatalf("service key survived")
	}
	if _, ok := c.Get(ctx, "http://a:collections"); ok {
		t.Fatalf("collections key survived")
	}
	if _, ok := c.Get(ctx, "http://b"); !ok {
		t.Fatalf("unrelated key dropped")
	}
	if err := c.InvalidateAll(ctx); err != nil {
		t.Fatalf("InvalidateAll: %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("len=%d after InvalidateAll", c.Len())
	}
}

func newShared(t *testing.T) (*redisstore.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rc, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestShared_HitIsPromotedAndKeepsTimestamp(t *testing.T) {
	rc, _ := newShared(t)
	clk := newClock()
	ctx := context.Background()

	writer := New(8, fixedExpiry(60*time.Second), WithShared(rc), WithClock(clk.Now))
	stored := writer.Put(ctx, "http://svc", json.RawMessage(`{"n":1}`))

	reader := New(8, fixedExpiry(60*time.Second), WithShared(rc), WithClock(clk.Now))
	clk.Advance(10 * time.Second)
	data, ok := reader.Lookup(ctx, "http://svc")
	if !ok || string(data) != `{"n":1}` {
		t.Fatalf("shared hit expected, got %s ok=%v", data, ok)
	}
	if reader.Len() != 1 {
		t.Fatalf("shared hit not promoted to memory")
	}
	e, _ := reader.Get(ctx, "http://svc")
	if e.Timestamp != stored.Timestamp {
		t.Fatalf("timestamp changed on promotion: %d vs %d", e.Timestamp, stored.Timestamp)
	}

	clk.Advance(60 * time.Second)
	if _, ok := reader.Lookup(ctx, "http://svc"); ok {
		t.Fatalf("promoted entry must still expire by timestamp")
	}
}

func TestShared_InvalidateAllClearsRedis(t *testing.T) {
	rc, mr := newShared(t)
	ctx := context.Background()
	c := New(8, nil, WithShared(rc))
	c.Put(ctx, "http://a", json.RawMessage(`1`))
	c.Put(ctx, "http://b", json.RawMessage(`2`))

	if n := len(mr.Keys()); n != 2 {
		t.Fatalf("redis keys=%d want 2", n)
	}
	if err := c.InvalidateAll(ctx); err != nil {
		t.Fatalf("InvalidateAll: %v", err)
	}
	if n := len(mr.Keys()); n != 0 {
		t.Fatalf("redis keys=%d after InvalidateAll", n)
	}
	if _, ok := New(8, nil, WithShared(rc)).Get(ctx, "http://a"); ok {
		t.Fatalf("fresh cache still sees invalidated entry")
	}
}

func TestShared_OutageDegradesToMiss(t *testing.T) {
	rc, mr := newShared(t)
	c := New(8, nil, WithShared(rc))
	mr.Close()

	ctx := context.Background()
	c.Put(ctx, "k", json.RawMessage(`1`))
	if _, ok := c.Lookup(ctx, "k"); !ok {
		t.Fatalf("memory tier must serve while redis is down")
	}
	if _, ok := New(8, nil, WithShared(rc)).Get(ctx, "k"); ok {
		t.Fatalf("expected miss when redis is unreachable")
	}
}
