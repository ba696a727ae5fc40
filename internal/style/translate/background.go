package translate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

type Background struct {
	StyleName       string `json:"styleName"`
	BackgroundColor string `json:"backgroundColor"`
}

// SetBackgroundColor writes bg into body. Unknown formats are returned unchanged.
func SetBackgroundColor(format string, body []byte, bg Background) ([]byte, error) {
	switch format {
	case FormatSLD:
		return setSLDBackground(body, bg)
	case FormatMBStyle:
		return setMapboxBackground(body, bg.BackgroundColor)
	default:
		return body, nil
	}
}

// GetBackgroundColor reads the background colour of body, or DefaultBackgroundColor.
func GetBackgroundColor(format string, body []byte) string {
	var c string
	switch format {
	case FormatSLD:
		c = sldBackground(body)
	case FormatMBStyle:
		c = mapboxBackground(body)
	}
	if c == "" {
		return DefaultBackgroundColor
	}
	return c
}

func isUserStyle(e *etree.Element) bool {
	return strings.Contains(e.Tag, "UserStyle")
}

func userStyles(doc *etree.Document) []*etree.Element {
	var out []*etree.Element
	var walk func(e *etree.Element)
	walk = func(e *etree.Element) {
		if isUserStyle(e) {
			out = append(out, e)
			return
		}
		for _, c := range e.ChildElements() {
			walk(c)
		}
	}
	if root := doc.Root(); root != nil {
		walk(root)
	}
	return out
}

// setSLDBackground puts Name and BackgroundColor first in every UserStyle,
// replacing existing ones and keeping the remaining children in order.
// A blank StyleName keeps the first existing Name.
func setSLDBackground(body []byte, bg Background) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("parse sld: %w", err)
	}
	for _, us := range userStyles(doc) {
		var kept *etree.Element
		for _, c := range us.ChildElements() {
			switch {
			case strings.Contains(c.Tag, "BackgroundColor"):
				us.RemoveChild(c)
			case strings.Contains(c.Tag, "Name"):
				if bg.StyleName == "" && kept == nil {
					kept = c
				}
				us.RemoveChild(c)
			}
		}
		name := kept
		if name == nil {
			name = etree.NewElement("Name")
			name.Space = us.Space
			name.SetText(bg.StyleName)
		}
		color := etree.NewElement("BackgroundColor")
		color.Space = us.Space
		color.SetText(bg.BackgroundColor)
		us.InsertChildAt(0, name)
		us.InsertChildAt(1, color)
	}
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("write sld: %w", err)
	}
	return out, nil
}

// sldBackground returns the BackgroundColor of the last UserStyle declaring one.
func sldBackground(body []byte) string {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return ""
	}
	var color string
	for _, us := range userStyles(doc) {
		for _, c := range us.ChildElements() {
			if c.Tag == "BackgroundColor" {
				if t := strings.TrimSpace(c.Text()); t != "" {
					color = t
				}
			}
		}
	}
	return color
}

const backgroundLayerID = "background"

type mapboxLayer map[string]json.RawMessage

func (l mapboxLayer) id() string {
	var id string
	_ = json.Unmarshal(l["id"], &id)
	return id
}

func decodeMapbox(body []byte) (map[string]json.RawMessage, []mapboxLayer, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse mapbox style: %w", err)
	}
	var layers []mapboxLayer
	if raw, ok := doc["layers"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &layers); err != nil {
			return nil, nil, fmt.Errorf("parse mapbox style layers: %w", err)
		}
	}
	return doc, layers, nil
}

func encodeMapbox(doc map[string]json.RawMessage, layers []mapboxLayer) ([]byte, error) {
	if layers == nil {
		layers = []mapboxLayer{}
	}
	raw, err := json.Marshal(layers)
	if err != nil {
		return nil, err
	}
	doc["layers"] = raw
	return json.Marshal(doc)
}

// setMapboxBackground sets paint.background-color on the "background" layer,
// prepending such a layer when the style has none.
func setMapboxBackground(body []byte, color string) ([]byte, error) {
	doc, layers, err := decodeMapbox(body)
	if err != nil {
		return nil, err
	}
	colorJSON, _ := json.Marshal(color)
	found := false
	for _, l := range layers {
		if l.id() != backgroundLayerID {
			continue
		}
		found = true
		paint := map[string]json.RawMessage{}
		if raw, ok := l["paint"]; ok {
			_ = json.Unmarshal(raw, &paint)
		}
		paint["background-color"] = colorJSON
		l["paint"], _ = json.Marshal(paint)
		l["type"] = json.RawMessage(`"background"`)
	}
	if !found {
		bgLayer := mapboxLayer{
			"id":    json.RawMessage(`"background"`),
			"type":  json.RawMessage(`"background"`),
			"paint": json.RawMessage(`{"background-color":` + string(colorJSON) + `}`),
		}
		layers = append([]mapboxLayer{bgLayer}, layers...)
	}
	return encodeMapbox(doc, layers)
}

func mapboxBackground(body []byte) string {
	_, layers, err := decodeMapbox(body)
	if err != nil {
		return ""
	}
	for _, l := range layers {
		if l.id() != backgroundLayerID {
			continue
		}
		var paint struct {
			Color string `json:"background-color"`
		}
		_ = json.Unmarshal(l["paint"], &paint)
		return paint.Color
	}
	return ""
}
