package translate

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/beevik/etree"
)

const prefixedSLD = `<?xml version="1.0" encoding="UTF-8"?>
<sld:StyledLayerDescriptor xmlns:sld="http://www.opengis.net/sld" version="1.0.0">
  <sld:NamedLayer>
    <sld:Name>roads</sld:Name>
    <sld:UserStyle>
      <sld:Name>old</sld:Name>
      <sld:Title>Roads</sld:Title>
      <sld:BackgroundColor>#000000</sld:BackgroundColor>
      <sld:FeatureTypeStyle><sld:Rule/></sld:FeatureTypeStyle>
    </sld:UserStyle>
  </sld:NamedLayer>
</sld:StyledLayerDescriptor>`

const plainSLD = `<StyledLayerDescriptor version="1.0.0"><NamedLayer><Name>a</Name><UserStyle><Title>t</Title></UserStyle></NamedLayer></StyledLayerDescriptor>`

func TestSLDBackground_RoundTrip(t *testing.T) {
	for _, in := range []string{prefixedSLD, plainSLD} {
		out, err := SetBackgroundColor(FormatSLD, []byte(in), Background{StyleName: "s", BackgroundColor: "#112233"})
		if err != nil {
			t.Fatalf("SetBackgroundColor: %v", err)
		}
		if got := GetBackgroundColor(FormatSLD, out); got != "#112233" {
			t.Fatalf("round trip got %q from:\n%s", got, out)
		}
	}
}

func TestSLDBackground_InjectedFirstKeepingOrderAndPrefix(t *testing.T) {
	out, err := SetBackgroundColor(FormatSLD, []byte(prefixedSLD), Background{StyleName: "s", BackgroundColor: "#112233"})
	if err != nil {
		t.Fatal(err)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(out); err != nil {
		t.Fatal(err)
	}
	us := doc.FindElement("//UserStyle")
	if us == nil {
		t.Fatalf("UserStyle lost:\n%s", out)
	}
	var tags []string
	for _, c := range us.ChildElements() {
		tags = append(tags, c.FullTag())
	}
	want := []string{"sld:Name", "sld:BackgroundColor", "sld:Title", "sld:FeatureTypeStyle"}
	if strings.Join(tags, ",") != strings.Join(want, ",") {
		t.Fatalf("children=%v want %v", tags, want)
	}
	if us.ChildElements()[0].Text() != "s" {
		t.Fatalf("name not replaced")
	}
	if doc.FindElement("//NamedLayer/Name").Text() != "roads" {
		t.Fatalf("NamedLayer name must be untouched")
	}
}

func TestSLDBackground_BlankStyleNameKeepsName(t *testing.T) {
	out, err := SetBackgroundColor(FormatSLD, []byte(prefixedSLD), Background{BackgroundColor: "#abcdef"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "<sld:Name>old</sld:Name>") {
		t.Fatalf("existing style name dropped:\n%s", out)
	}
}

func TestGetBackgroundColor_Defaults(t *testing.T) {
	if got := GetBackgroundColor(FormatSLD, []byte(plainSLD)); got != DefaultBackgroundColor {
		t.Fatalf("sld without colour: %q", got)
	}
	if got := GetBackgroundColor(FormatSLD, []byte("<not-closed")); got != DefaultBackgroundColor {
		t.Fatalf("broken sld: %q", got)
	}
	if got := GetBackgroundColor(FormatMBStyle, []byte(`{"version":8,"layers":[]}`)); got != DefaultBackgroundColor {
		t.Fatalf("mbstyle without background: %q", got)
	}
	if got := GetBackgroundColor("css", []byte("* { fill: red }")); got != DefaultBackgroundColor {
		t.Fatalf("unknown format: %q", got)
	}
}

func TestMapboxBackground_PrependsWhenMissing(t *testing.T) {
	in := `{"version":8,"sources":{"s":{"type":"vector"}},"layers":[{"id":"roads","type":"line","source":"s","source-layer":"roads"}]}`
	out, err := SetBackgroundColor(FormatMBStyle, []byte(in), Background{BackgroundColor: "#112233"})
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Version int               `json:"version"`
		Sources json.RawMessage   `json:"sources"`
		Layers  []json.RawMessage `json:"layers"`
	}
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Version != 8 || len(doc.Sources) == 0 || len(doc.Layers) != 2 {
		t.Fatalf("style content lost: %s", out)
	}
	if !strings.Contains(string(doc.Layers[0]), `"background-color":"#112233"`) {
		t.Fatalf("background not prepended: %s", doc.Layers[0])
	}
	if !strings.Contains(string(doc.Layers[1]), `"source-layer":"roads"`) {
		t.Fatalf("original layer changed: %s", doc.Layers[1])
	}
	if got := GetBackgroundColor(FormatMBStyle, out); got != "#112233" {
		t.Fatalf("round trip: %q", got)
	}
}

func TestMapboxBackground_ReplacesInPlace(t *testing.T) {
	in := `{"layers":[{"id":"water","type":"fill"},{"id":"background","type":"background","layout":{"visibility":"visible"},"paint":{"background-color":"#000","background-opacity":0.5}}]}`
	out, err := SetBackgroundColor(FormatMBStyle, []byte(in), Background{BackgroundColor: "#fff"})
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Layers []map[string]json.RawMessage `json:"layers"`
	}
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatal(err)
	}
	if len(doc.Layers) != 2 || string(doc.Layers[1]["id"]) != `"background"` {
		t.Fatalf("background must stay in place: %s", out)
	}
	paint := string(doc.Layers[1]["paint"])
	if !strings.Contains(paint, `"background-color":"#fff"`) || !strings.Contains(paint, `"background-opacity":0.5`) {
		t.Fatalf("paint=%s", paint)
	}
}

func TestSetBackgroundColor_UnknownFormatUnchanged(t *testing.T) {
	in := []byte("* { fill: red }")
	out, err := SetBackgroundColor(FormatCSS, in, Background{BackgroundColor: "#fff"})
	if err != nil || string(out) != string(in) {
		t.Fatalf("got %q %v", out, err)
	}
	if _, err := SetBackgroundColor(FormatMBStyle, []byte("{"), Background{}); err == nil {
		t.Fatalf("broken json must error")
	}
}

func TestFormatFromMimeType(t *testing.T) {
	cases := map[string]string{
		"application/vnd.ogc.sld+xml":              FormatSLD,
		"application/vnd.ogc.sld+xml; version=1.0": FormatSLD,
		"application/vnd.geoserver.mbstyle+json":   FormatMBStyle,
		"application/vnd.geoserver.geocss+css":     FormatCSS,
		"text/html":                                "",
	}
	for mime, want := range cases {
		if got := FormatFromMimeType(mime); got != want {
			t.Fatalf("FormatFromMimeType(%q)=%q want %q", mime, got, want)
		}
	}
	if !IsVectorFormat("application/vnd.mapbox-vector-tile") || IsVectorFormat("image/png") {
		t.Fatalf("IsVectorFormat")
	}
}
