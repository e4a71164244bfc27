package schema

import (
	"bytes"
	"slices"

	json "github.com/goccy/go-json"
)

// Draft07 is the $schema URI stamped on every sub-schema.
const Draft07 = "http://json-schema.org/draft-07/schema#"

// Structural keywords interpreted by the decomposer.
const (
	KeywordProperties = "properties"
	KeywordRequired   = "required"
	KeywordItems      = "items"
	KeywordSchema     = "$schema"
	KeywordType       = "type"
)

// Kind classifies a schema node.
type Kind int

const (
	// KindLeaf is any schema without properties or non-empty items,
	// including boolean and non-object literals.
	KindLeaf Kind = iota
	// KindObject has a properties mapping (possibly empty).
	KindObject
	// KindArray has a non-empty items entry and no properties.
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "leaf"
	}
}

// Property is one named entry of a properties mapping.
type Property struct {
	Name   string
	Schema *Node
}

// Node is a JSON Schema node that keeps keyword and property order.
//
// Exactly one of literal or the keyword fields is meaningful: literal holds
// non-object schemas (true, false, or anything malformed) as raw JSON.
type Node struct {
	literal []byte

	order    []string
	keywords map[string][]byte

	props    []Property
	hasProps bool

	required    []string
	hasRequired bool

	items *Items
}

// Items is the items keyword: a single schema or a tuple of schemas.
type Items struct {
	schema *Node
	tuple  []*Node
	isTuple bool
}

// SingleItems wraps one schema applied to every element.
func SingleItems(n *Node) *Items {
	return &Items{schema: n}
}

// TupleItems wraps a positional list of schemas.
func TupleItems(nodes ...*Node) *Items {
	return &Items{tuple: nodes, isTuple: true}
}

// IsTuple reports whether items is the array form.
func (it *Items) IsTuple() bool { return it != nil && it.isTuple }

// Schema returns the single schema, nil for tuples.
func (it *Items) Schema() *Node {
	if it == nil || it.isTuple {
		return nil
	}
	return it.schema
}

// Tuple returns the positional schemas, nil for the single form.
func (it *Items) Tuple() []*Node {
	if it == nil || !it.isTuple {
		return nil
	}
	return it.tuple
}

// Empty mirrors JSON truthiness: {}, [], false and null are empty.
func (it *Items) Empty() bool {
	if it == nil {
		return true
	}
	if it.isTuple {
		return len(it.tuple) == 0
	}
	return it.schema == nil || it.schema.empty()
}

func (it *Items) clone() *Items {
	if it == nil {
		return nil
	}
	if it.isTuple {
		out := make([]*Node, len(it.tuple))
		for i, n := range it.tuple {
			out[i] = n.Clone()
		}
		return TupleItems(out...)
	}
	return SingleItems(it.schema.Clone())
}

func newNode() *Node {
	return &Node{keywords: make(map[string][]byte)}
}

// NewObjectSchema creates {"type":"object","properties":{}}.
func NewObjectSchema() *Node {
	n := newNode()
	n.setRaw(KeywordType, []byte(`"object"`))
	n.touch(KeywordProperties)
	n.hasProps = true
	return n
}

// NewTypedSchema creates {"type": typ}.
func NewTypedSchema(typ string) *Node {
	n := newNode()
	n.With(KeywordType, typ)
	return n
}

// NewStringSchema creates {"type":"string"}.
func NewStringSchema() *Node { return NewTypedSchema("string") }

// NewIntegerSchema creates {"type":"integer"}.
func NewIntegerSchema() *Node { return NewTypedSchema("integer") }

// NewNumberSchema creates {"type":"number"}.
func NewNumberSchema() *Node { return NewTypedSchema("number") }

// NewArraySchema creates {"type":"array","items": items}.
func NewArraySchema(items *Node) *Node {
	n := NewTypedSchema("array")
	n.SetItems(SingleItems(items))
	return n
}

// NewBoolSchema creates the boolean schema true or false.
func NewBoolSchema(v bool) *Node {
	if v {
		return &Node{literal: []byte("true")}
	}
	return &Node{literal: []byte("false")}
}

// NewSubSchema packages one property as a standalone Draft-07 object schema.
// value is cloned; the caller keeps ownership of its node.
func NewSubSchema(key string, value *Node, required bool) *Node {
	n := newNode()
	n.With(KeywordSchema, Draft07)
	n.setRaw(KeywordType, []byte(`"object"`))
	n.SetProperty(key, value.Clone())
	if required {
		n.SetRequired(key)
	}
	return n
}

// Kind reports the node's structural kind. properties wins over items.
func (n *Node) Kind() Kind {
	switch {
	case n == nil || n.literal != nil:
		return KindLeaf
	case n.hasProps:
		return KindObject
	case !n.items.Empty():
		return KindArray
	default:
		return KindLeaf
	}
}

// IsLiteral reports whether the node is a boolean or other non-object schema.
func (n *Node) IsLiteral() bool { return n != nil && n.literal != nil }

// HasProperties reports whether a properties mapping is present.
func (n *Node) HasProperties() bool { return n != nil && n.hasProps }

// Properties returns the properties in document order.
func (n *Node) Properties() []Property {
	if n == nil {
		return nil
	}
	return n.props
}

// Property looks up a property schema by name.
func (n *Node) Property(name string) *Node {
	if n == nil {
		return nil
	}
	for _, p := range n.props {
		if p.Name == name {
			return p.Schema
		}
	}
	return nil
}

// Required returns the required names; nil when absent or malformed.
func (n *Node) Required() []string {
	if n == nil {
		return nil
	}
	return n.required
}

// IsRequired reports whether name is listed in required.
func (n *Node) IsRequired(name string) bool {
	return slices.Contains(n.Required(), name)
}

// Items returns the items keyword, nil when absent.
func (n *Node) Items() *Items {
	if n == nil {
		return nil
	}
	return n.items
}

// Keyword returns the raw JSON of an opaque keyword.
func (n *Node) Keyword(name string) ([]byte, bool) {
	if n == nil || n.keywords == nil {
		return nil, false
	}
	raw, ok := n.keywords[name]
	return raw, ok
}

// Keywords lists every keyword in document order, structural ones included.
func (n *Node) Keywords() []string {
	if n == nil {
		return nil
	}
	return slices.Clone(n.order)
}

// Type returns the "type" keyword when it is a single string.
func (n *Node) Type() string {
	raw, ok := n.Keyword(KeywordType)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// With sets an opaque keyword to the JSON encoding of value and returns n.
// Values that cannot be encoded are ignored.
func (n *Node) With(keyword string, value any) *Node {
	raw, err := json.Marshal(value)
	if err != nil {
		return n
	}
	n.setRaw(keyword, raw)
	return n
}

// WithDescription sets description.
func (n *Node) WithDescription(desc string) *Node { return n.With("description", desc) }

// WithEnum sets enum.
func (n *Node) WithEnum(values ...any) *Node { return n.With("enum", values) }

// WithMinLength sets minLength.
func (n *Node) WithMinLength(v int) *Node { return n.With("minLength", v) }

// WithMaxLength sets maxLength.
func (n *Node) WithMaxLength(v int) *Node { return n.With("maxLength", v) }

// WithFormat sets format.
func (n *Node) WithFormat(format string) *Node { return n.With("format", format) }

// AddProperty sets a property and returns n for chaining.
func (n *Node) AddProperty(name string, schema *Node) *Node {
	n.SetProperty(name, schema)
	return n
}

// AddRequired appends names to required and returns n.
func (n *Node) AddRequired(names ...string) *Node {
	merged := slices.Clone(n.required)
	for _, name := range names {
		if !slices.Contains(merged, name) {
			merged = append(merged, name)
		}
	}
	n.SetRequired(merged...)
	return n
}

// SetProperty inserts or replaces a property, keeping its first position.
func (n *Node) SetProperty(name string, schema *Node) {
	n.ensure()
	if !n.hasProps {
		n.touch(KeywordProperties)
		n.hasProps = true
	}
	for i := range n.props {
		if n.props[i].Name == name {
			n.props[i].Schema = schema
			return
		}
	}
	n.props = append(n.props, Property{Name: name, Schema: schema})
}

// SetRequired replaces the required list.
func (n *Node) SetRequired(names ...string) {
	n.ensure()
	delete(n.keywords, KeywordRequired)
	n.touch(KeywordRequired)
	n.required = slices.Clone(names)
	n.hasRequired = true
}

// SetItems replaces the items keyword.
func (n *Node) SetItems(items *Items) {
	n.ensure()
	delete(n.keywords, KeywordItems)
	n.touch(KeywordItems)
	n.items = items
}

// Clone returns a deep copy sharing no mutable state with n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	if n.literal != nil {
		return &Node{literal: bytes.Clone(n.literal)}
	}
	c := &Node{
		order:       slices.Clone(n.order),
		keywords:    make(map[string][]byte, len(n.keywords)),
		hasProps:    n.hasProps,
		required:    slices.Clone(n.required),
		hasRequired: n.hasRequired,
		items:       n.items.clone(),
	}
	for k, v := range n.keywords {
		c.keywords[k] = bytes.Clone(v)
	}
	if n.props != nil {
		c.props = make([]Property, len(n.props))
		for i, p := range n.props {
			c.props[i] = Property{Name: p.Name, Schema: p.Schema.Clone()}
		}
	}
	return c
}

// ensure turns a literal into an empty object node before mutation.
func (n *Node) ensure() {
	if n.literal != nil {
		n.literal = nil
	}
	if n.keywords == nil {
		n.keywords = make(map[string][]byte)
	}
}

func (n *Node) setRaw(keyword string, raw []byte) {
	n.ensure()
	switch keyword {
	case KeywordProperties:
		n.hasProps = false
		n.props = nil
	case KeywordRequired:
		n.hasRequired = false
		n.required = nil
	case KeywordItems:
		n.items = nil
	}
	n.touch(keyword)
	n.keywords[keyword] = raw
}

// touch records keyword position on first use.
func (n *Node) touch(keyword string) {
	if !slices.Contains(n.order, keyword) {
		n.order = append(n.order, keyword)
	}
}

// empty mirrors JSON truthiness for a schema value.
func (n *Node) empty() bool {
	if n.literal != nil {
		switch string(bytes.TrimSpace(n.literal)) {
		case "false", "null", "0", `""`, "[]", "{}":
			return true
		}
		return false
	}
	return len(n.order) == 0
}
