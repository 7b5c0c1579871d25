package doc

import (
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// UnmarshalYAML decodes a YAML mapping keeping the key order of the source.
func (d *Document) UnmarshalYAML(node *yaml.Node) error {
	v, err := fromYAMLNode(node)
	if err != nil {
		return err
	}
	src, ok := v.(*Document)
	if !ok {
		return fmt.Errorf("yaml line %d: expected mapping, got %T", node.Line, v)
	}
	*d = *src
	return nil
}

func fromYAMLNode(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return New(), nil
		}
		return fromYAMLNode(node.Content[0])
	case yaml.AliasNode:
		return fromYAMLNode(node.Alias)
	case yaml.MappingNode:
		d := New()
		for i := 0; i+1 < len(node.Content); i += 2 {
			k, v := node.Content[i], node.Content[i+1]
			if k.Tag == "!!merge" {
				merged, err := fromYAMLNode(v)
				if err != nil {
					return nil, err
				}
				if md, ok := merged.(*Document); ok {
					Merge(d, md)
				}
				continue
			}
			val, err := fromYAMLNode(v)
			if err != nil {
				return nil, err
			}
			d.Set(k.Value, val)
		}
		return d, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(node.Content))
		for _, c := range node.Content {
			val, err := fromYAMLNode(c)
			if err != nil {
				return nil, err
			}
			out = append(out, val)
		}
		return out, nil
	case yaml.ScalarNode:
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, fmt.Errorf("yaml line %d: %w", node.Line, err)
		}
		return v, nil
	}
	return nil, fmt.Errorf("yaml line %d: unsupported node kind %d", node.Line, node.Kind)
}

// MarshalYAML emits d as a mapping in key order.
func (d *Document) MarshalYAML() (any, error) {
	return toYAMLNode(d)
}

func toYAMLNode(v any) (*yaml.Node, error) {
	switch t := v.(type) {
	case *Document:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		var err error
		t.Each(func(k string, val any) bool {
			var vn *yaml.Node
			vn, err = toYAMLNode(val)
			if err != nil {
				return false
			}
			n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, vn)
			return true
		})
		return n, err
	case []any:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, e := range t {
			en, err := toYAMLNode(e)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, en)
		}
		return n, nil
	default:
		n := &yaml.Node{}
		if err := n.Encode(v); err != nil {
			return nil, err
		}
		return n, nil
	}
}

// DecodeTOML parses a TOML document. Keys keep the order they appear in the
// source; values the key walk cannot reach (array-of-tables entries) are
// filled in with sorted keys.
func DecodeTOML(data []byte) (*Document, error) {
	raw := make(map[string]any)
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, err
	}
	d := New()
	for _, key := range md.Keys() {
		v, ok := lookup(raw, key)
		if !ok {
			continue
		}
		parent := ensurePath(d, key[:len(key)-1])
		if parent == nil {
			continue
		}
		last := key[len(key)-1]
		if _, isTable := v.(map[string]any); isTable {
			if _, ok := parent.Child(last); !ok {
				parent.Set(last, New())
			}
			continue
		}
		parent.Set(last, normalize(v))
	}
	fillMissing(d, raw)
	return d, nil
}

func lookup(raw map[string]any, key toml.Key) (any, bool) {
	var cur any = raw
	for _, part := range key {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func ensurePath(d *Document, path []string) *Document {
	cur := d
	for _, part := range path {
		v, ok := cur.Get(part)
		if !ok {
			next := New()
			cur.Set(part, next)
			cur = next
			continue
		}
		next, ok := v.(*Document)
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

func fillMissing(d *Document, raw map[string]any) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := raw[k]
		if m, ok := v.(map[string]any); ok {
			child, ok := d.Child(k)
			if !ok {
				if d.Has(k) {
					continue
				}
				child = New()
				d.Set(k, child)
			}
			fillMissing(child, m)
			continue
		}
		if !d.Has(k) {
			d.Set(k, normalize(v))
		}
	}
}
