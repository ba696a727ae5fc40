package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestSlogBridge_CarriesContextFields(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug", Component: "collection"}, &buf)
	log := NewSlog(&zl)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithService(ctx, "https://demo.example.org/ogc")
	log.InfoContext(ctx, "resolved", "tiles", 3, "err", errors.New("boom"))

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("not json: %v (%s)", err, buf.String())
	}
	if line["request_id"] != "req-1" || line["service_url"] != "https://demo.example.org/ogc" {
		t.Fatalf("missing ctx fields: %v", line)
	}
	if line["component"] != "collection" || line["msg"] != "resolved" {
		t.Fatalf("unexpected fields: %v", line)
	}
	if line["tiles"] != float64(3) || line["err"] != "boom" {
		t.Fatalf("attrs not encoded: %v", line)
	}
}

func TestSlogBridge_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "warn"}, &buf)
	log := NewSlog(&zl)
	log.Info("hidden")
	log.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("level filtering broken: %s", out)
	}
	Build(Config{Level: "info"}, &buf)
}

func TestWithGroup_PrefixesKeys(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "info"}, &buf)
	NewSlog(&zl).WithGroup("cache").Info("entry", "key", "k")
	if !strings.Contains(buf.String(), `"cache.key":"k"`) {
		t.Fatalf("group prefix missing: %s", buf.String())
	}
}
