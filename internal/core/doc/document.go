package doc

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Document is an ordered, nested key/value tree. It carries system settings,
// component construction data and entity construction data.
//
// Values are *Document, []any, string, bool, integer or float scalars.
// Keys keep insertion order; overwriting a key keeps its original position.
// A nil *Document behaves as an empty, read-only document.
type Document struct {
	keys   []string
	values map[string]any
}

// New returns an empty document.
func New() *Document {
	return &Document{values: make(map[string]any)}
}

// FromMap builds a document from a plain map. Nested maps and slices are
// converted recursively; keys are sorted since Go maps carry no order.
func FromMap(m map[string]any) *Document {
	d := New()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		d.Set(k, normalize(m[k]))
	}
	return d
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return FromMap(t)
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = FromMap(m)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	default:
		return v
	}
}

// Set stores v under key and returns d so calls can be chained.
func (d *Document) Set(key string, v any) *Document {
	if d.values == nil {
		d.values = make(map[string]any)
	}
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
	return d
}

// Get returns the raw value stored under key.
func (d *Document) Get(key string) (any, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d.values[key]
	return v, ok
}

func (d *Document) Has(key string) bool {
	_, ok := d.Get(key)
	return ok
}

// Delete removes key, keeping the order of the remaining keys.
func (d *Document) Delete(key string) {
	if d == nil {
		return
	}
	if _, ok := d.values[key]; !ok {
		return
	}
	delete(d.values, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

// Keys returns a copy of the keys in insertion order.
func (d *Document) Keys() []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Each calls fn for every key in insertion order until fn returns false.
func (d *Document) Each(fn func(key string, v any) bool) {
	if d == nil {
		return
	}
	for _, k := range d.Keys() {
		v, ok := d.values[k]
		if !ok {
			continue
		}
		if !fn(k, v) {
			return
		}
	}
}

// Child returns the nested document stored under key.
func (d *Document) Child(key string) (*Document, bool) {
	v, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	c, ok := v.(*Document)
	return c, ok
}

func (d *Document) String(key, def string) string {
	v, ok := d.Get(key)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	}
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return def
}

func (d *Document) Bool(key string, def bool) bool {
	v, ok := d.Get(key)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(t)
		if err != nil {
			return def
		}
		return b
	}
	return def
}

func (d *Document) Int(key string, def int) int {
	v, ok := d.Get(key)
	if !ok {
		return def
	}
	if s, ok := v.(string); ok {
		n, err := strconv.Atoi(s)
		if err != nil {
			return def
		}
		return n
	}
	f, ok := toFloat(v)
	if !ok || f > math.MaxInt64 || f < math.MinInt64 {
		return def
	}
	return int(f)
}

func (d *Document) Float(key string, def float64) float64 {
	v, ok := d.Get(key)
	if !ok {
		return def
	}
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return def
		}
		return f
	}
	f, ok := toFloat(v)
	if !ok {
		return def
	}
	return f
}

// Strings returns the string elements of the array stored under key.
// A single string value is returned as a one-element slice.
func (d *Document) Strings(key string) []string {
	v, ok := d.Get(key)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Clone returns a deep copy of d. Cloning nil yields an empty document.
func (d *Document) Clone() *Document {
	out := New()
	d.Each(func(k string, v any) bool {
		out.Set(k, cloneValue(v))
		return true
	})
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case *Document:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Merge copies src into dst. Nested documents present on both sides are
// merged recursively, every other value in src replaces the one in dst.
func Merge(dst, src *Document) {
	if dst == nil {
		return
	}
	src.Each(func(k string, v any) bool {
		if sc, ok := v.(*Document); ok {
			if dc, ok := dst.Child(k); ok {
				Merge(dc, sc)
				return true
			}
		}
		dst.Set(k, cloneValue(v))
		return true
	})
}

// Map converts d into plain Go maps and slices.
func (d *Document) Map() map[string]any {
	out := make(map[string]any, d.Len())
	d.Each(func(k string, v any) bool {
		out[k] = plain(v)
		return true
	})
	return out
}

func plain(v any) any {
	switch t := v.(type) {
	case *Document:
		return t.Map()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	default:
		return v
	}
}
