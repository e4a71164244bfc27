package schema

import (
	"bytes"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// ErrInvalidJSON is returned by Parse for text that is not JSON.
var ErrInvalidJSON = errors.New("schema: invalid JSON document")

// Parse reads a schema document keeping keyword and property order.
//
// Structurally malformed keywords (a non-object properties, a non-array
// required) are kept as opaque payload so that a validator can report them;
// the decomposer then treats the node as having no such keyword.
func Parse(data []byte) (*Node, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}
	return parseNode(gjson.ParseBytes(data)), nil
}

// ParseString is Parse for string input.
func ParseString(s string) (*Node, error) {
	return Parse([]byte(s))
}

// MustParse panics if s is not valid JSON. Intended for fixtures and tests.
func MustParse(s string) *Node {
	n, err := ParseString(s)
	if err != nil {
		panic(fmt.Sprintf("schema: MustParse: %v", err))
	}
	return n
}

func parseNode(res gjson.Result) *Node {
	if !res.IsObject() {
		return &Node{literal: compact(res)}
	}
	n := newNode()
	res.ForEach(func(k, v gjson.Result) bool {
		key := k.String()
		switch {
		case key == KeywordProperties && v.IsObject():
			delete(n.keywords, key)
			n.touch(key)
			n.hasProps = true
			n.props = make([]Property, 0)
			v.ForEach(func(pk, pv gjson.Result) bool {
				n.SetProperty(pk.String(), parseNode(pv))
				return true
			})
		case key == KeywordRequired && isStringArray(v):
			names := make([]string, 0)
			for _, r := range v.Array() {
				names = append(names, r.String())
			}
			n.SetRequired(names...)
		case key == KeywordItems && v.IsArray():
			tuple := make([]*Node, 0)
			for _, it := range v.Array() {
				tuple = append(tuple, parseNode(it))
			}
			n.SetItems(TupleItems(tuple...))
		case key == KeywordItems:
			n.SetItems(SingleItems(parseNode(v)))
		default:
			n.setRaw(key, compact(v))
		}
		return true
	})
	return n
}

func isStringArray(v gjson.Result) bool {
	if !v.IsArray() {
		return false
	}
	ok := true
	v.ForEach(func(_, e gjson.Result) bool {
		ok = e.Type == gjson.String
		return ok
	})
	return ok
}

func compact(v gjson.Result) []byte {
	if v.IsObject() || v.IsArray() {
		return pretty.Ugly([]byte(v.Raw))
	}
	return []byte(v.Raw)
}

// MarshalJSON emits the node with keywords and properties in stored order.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// String returns the compact JSON text of the node.
func (n *Node) String() string {
	b, err := n.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<invalid schema: %v>", err)
	}
	return string(b)
}

func (n *Node) encode(buf *bytes.Buffer) error {
	if n == nil {
		buf.WriteString("null")
		return nil
	}
	if n.literal != nil {
		buf.Write(n.literal)
		return nil
	}
	buf.WriteByte('{')
	for i, key := range n.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(buf, key); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := n.encodeKeyword(buf, key); err != nil {
			return fmt.Errorf("keyword %q: %w", key, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

func (n *Node) encodeKeyword(buf *bytes.Buffer, key string) error {
	switch {
	case key == KeywordProperties && n.hasProps:
		buf.WriteByte('{')
		for i, p := range n.props {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, p.Name); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := p.Schema.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case key == KeywordRequired && n.hasRequired:
		raw, err := json.Marshal(n.required)
		if err != nil {
			return err
		}
		if n.required == nil {
			raw = []byte("[]")
		}
		buf.Write(raw)
	case key == KeywordItems && n.items != nil:
		if !n.items.isTuple {
			return n.items.schema.encode(buf)
		}
		buf.WriteByte('[')
		for i, it := range n.items.tuple {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := it.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		raw, ok := n.keywords[key]
		if !ok {
			return errors.New("missing payload")
		}
		buf.Write(raw)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(raw)
	return nil
}
