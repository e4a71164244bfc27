package forge

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// ErrNotObject is returned when fragment text is not a JSON object.
var ErrNotObject = errors.New("forge: fragment is not a JSON object")

// Record is a JSON object that remembers key insertion order. Nested objects
// decoded by ParseRecord are Records as well. The zero value is ready to use.
type Record struct {
	keys   []string
	values map[string]any
}

// Fragment is the output of one generation call. It has the same shape as
// the merged Record.
type Fragment = Record

// NewRecord creates an empty record.
func NewRecord() *Record {
	return &Record{values: make(map[string]any)}
}

// RecordOf builds a record from alternating key, value arguments.
// A trailing key without value is ignored.
func RecordOf(kv ...any) *Record {
	r := NewRecord()
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		r.Set(key, kv[i+1])
	}
	return r
}

// ParseRecord decodes a JSON object keeping key order at every depth.
func ParseRecord(data []byte) (*Record, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("forge: invalid JSON")
	}
	res := gjson.ParseBytes(data)
	if !res.IsObject() {
		return nil, ErrNotObject
	}
	return decodeObject(res), nil
}

func decodeObject(res gjson.Result) *Record {
	r := NewRecord()
	res.ForEach(func(k, v gjson.Result) bool {
		r.Set(k.String(), decodeValue(v))
		return true
	})
	return r
}

func decodeValue(v gjson.Result) any {
	switch {
	case v.IsObject():
		return decodeObject(v)
	case v.IsArray():
		out := make([]any, 0)
		v.ForEach(func(_, e gjson.Result) bool {
			out = append(out, decodeValue(e))
			return true
		})
		return out
	}
	switch v.Type {
	case gjson.String:
		return v.String()
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.Number:
		if !strings.ContainsAny(v.Raw, ".eE") {
			if i, err := strconv.ParseInt(v.Raw, 10, 64); err == nil {
				return i
			}
		}
		return v.Float()
	default:
		return nil
	}
}

// Set stores value under key. New keys go last; existing keys keep their
// position. It reports whether the key already existed.
func (r *Record) Set(key string, value any) bool {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	_, existed := r.values[key]
	if !existed {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
	return existed
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.values[key]
	return v, ok
}

// Has reports whether key is present.
func (r *Record) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Keys returns the keys in insertion order.
func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of keys.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Range calls fn for each entry in order until fn returns false.
func (r *Record) Range(fn func(key string, value any) bool) {
	if r == nil {
		return
	}
	for _, k := range r.keys {
		if !fn(k, r.values[k]) {
			return
		}
	}
}

// Plain converts the record into map[string]any / []any values, the shape
// JSON Schema validators expect. Other Go values (typed slices, maps,
// structs) go through a JSON round trip. Key order is lost.
func (r *Record) Plain() map[string]any {
	out := make(map[string]any, r.Len())
	r.Range(func(k string, v any) bool {
		out[k] = plainValue(v)
		return true
	})
	return out
}

func plainValue(v any) any {
	switch t := v.(type) {
	case *Record:
		return t.Plain()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plainValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = plainValue(e)
		}
		return out
	case nil, bool, string, float64, float32,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return v
	default:
		// Engine 或 RecordOf 传入的原生 Go 类型（[]string、结构体等）经 JSON 往返归一化。
		raw, err := json.Marshal(v)
		if err != nil {
			return v
		}
		var out any
		if err := json.Unmarshal(raw, &out); err != nil {
			return v
		}
		return out
	}
}

// MarshalJSON emits the record with keys in insertion order.
func (r *Record) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON replaces the record with the decoded object.
func (r *Record) UnmarshalJSON(data []byte) error {
	parsed, err := ParseRecord(data)
	if err != nil {
		return err
	}
	*r = *parsed
	return nil
}

// String returns the compact JSON text.
func (r *Record) String() string {
	b, err := r.MarshalJSON()
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Clone copies the top level; nested values are shared.
func (r *Record) Clone() *Record {
	c := NewRecord()
	r.Range(func(k string, v any) bool {
		c.Set(k, v)
		return true
	})
	return c
}

// renderValue formats a value for prompt feedback: strings raw, everything
// else as compact JSON.
func renderValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
