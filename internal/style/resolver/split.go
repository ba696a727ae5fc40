package resolver

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/mohammed-shakir/ogcapi-resolver/internal/style/translate"
)

// SplitSLDByNamedLayer returns one standalone SLD document per NamedLayer, keyed
// by the layer's Name. Each document keeps the original StyledLayerDescriptor
// root, its namespace declarations and prefix, with only that NamedLayer inside.
// Unnamed layers are skipped; when a name repeats the first layer wins.
func SplitSLDByNamedLayer(sld []byte) (map[string][]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(sld); err != nil {
		return nil, fmt.Errorf("parse sld: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("parse sld: no root element")
	}

	out := map[string][]byte{}
	for i, nl := range namedLayers(root) {
		name := layerName(nl)
		if name == "" {
			continue
		}
		if _, dup := out[name]; dup {
			continue
		}
		cp := doc.Copy()
		for j, other := range namedLayers(cp.Root()) {
			if j != i {
				cp.Root().RemoveChild(other)
			}
		}
		b, err := cp.WriteToBytes()
		if err != nil {
			return nil, fmt.Errorf("write sld fragment %q: %w", name, err)
		}
		out[name] = b
	}
	return out, nil
}

func namedLayers(root *etree.Element) []*etree.Element {
	var out []*etree.Element
	for _, c := range root.ChildElements() {
		if c.Tag == "NamedLayer" {
			out = append(out, c)
		}
	}
	return out
}

func layerName(nl *etree.Element) string {
	for _, c := range nl.ChildElements() {
		if c.Tag == "Name" {
			return strings.TrimSpace(c.Text())
		}
	}
	return ""
}

// SplitMapboxBySourceLayer returns one style document per source-layer holding
// only the layers drawing it. Layers without a source-layer are dropped.
func SplitMapboxBySourceLayer(body []byte) (map[string][]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse mapbox style: %w", err)
	}
	var layers []map[string]json.RawMessage
	if raw, ok := doc["layers"]; ok {
		if err := json.Unmarshal(raw, &layers); err != nil {
			return nil, fmt.Errorf("parse mapbox style layers: %w", err)
		}
	}
	groups := map[string][]map[string]json.RawMessage{}
	for _, l := range layers {
		var src string
		if err := json.Unmarshal(l["source-layer"], &src); err != nil || src == "" {
			continue
		}
		groups[src] = append(groups[src], l)
	}

	out := make(map[string][]byte, len(groups))
	for src, ls := range groups {
		part := make(map[string]json.RawMessage, len(doc))
		for k, v := range doc {
			part[k] = v
		}
		raw, err := json.Marshal(ls)
		if err != nil {
			return nil, err
		}
		part["layers"] = raw
		b, err := json.Marshal(part)
		if err != nil {
			return nil, err
		}
		out[src] = b
	}
	return out, nil
}

// SplitStyleSheet splits a native stylesheet covering several layers.
// Formats that cannot be split yield an empty map.
func SplitStyleSheet(format string, body []byte) (map[string][]byte, error) {
	switch format {
	case translate.FormatSLD:
		return SplitSLDByNamedLayer(body)
	case translate.FormatMBStyle:
		return SplitMapboxBySourceLayer(body)
	default:
		return map[string][]byte{}, nil
	}
}
