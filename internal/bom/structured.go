package bom

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"

	"partsmatch/internal"
)

var jsonListKeys = []string{"components", "parts", "items", "bom"}

// readJSON accepts a list of objects, an object holding such a list under a
// common key, or a single object.
func readJSON(content []byte) ([]internal.Record, []string, error) {
	dec := json.NewDecoder(bytes.NewReader(bytes.TrimPrefix(content, utf8BOM)))
	dec.UseNumber()
	var data any
	if err := dec.Decode(&data); err != nil {
		return nil, nil, err
	}

	var items []any
	switch t := data.(type) {
	case []any:
		items = t
	case map[string]any:
		found := false
		for _, k := range jsonListKeys {
			if list, ok := t[k].([]any); ok {
				items, found = list, true
				break
			}
		}
		if !found {
			items = []any{t}
		}
	default:
		return nil, nil, fmt.Errorf("unexpected JSON document of type %T", data)
	}

	out := make([]internal.Record, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rec := internal.Record{}
		for k, v := range obj {
			if v == nil {
				continue
			}
			if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
				continue
			}
			rec[k] = v
		}
		if len(rec) > 0 {
			out = append(out, rec)
		}
	}
	return out, headerKeys(out), nil
}

type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Content  string     `xml:",chardata"`
	Children []xmlNode  `xml:",any"`
}

var xmlComponentTags = []string{"component", "Component", "part", "Part", "item", "Item"}

// readXML takes the first element name from xmlComponentTags that occurs
// below the root. Each element becomes one record from its attributes and
// the text of its direct children.
func readXML(content []byte) ([]internal.Record, []string, error) {
	var root xmlNode
	if err := xml.Unmarshal(content, &root); err != nil {
		return nil, nil, err
	}

	for _, tag := range xmlComponentTags {
		var elems []xmlNode
		collectXML(root.Children, tag, &elems)
		if len(elems) == 0 {
			continue
		}
		out := make([]internal.Record, 0, len(elems))
		for _, e := range elems {
			rec := internal.Record{}
			for _, a := range e.Attrs {
				rec[a.Name.Local] = a.Value
			}
			for _, c := range e.Children {
				if text := strings.TrimSpace(c.Content); text != "" {
					rec[c.XMLName.Local] = text
				}
			}
			if len(rec) > 0 {
				out = append(out, rec)
			}
		}
		return out, headerKeys(out), nil
	}
	return nil, nil, nil
}

func collectXML(nodes []xmlNode, tag string, out *[]xmlNode) {
	for _, n := range nodes {
		if n.XMLName.Local == tag {
			*out = append(*out, n)
		}
		collectXML(n.Children, tag, out)
	}
}
