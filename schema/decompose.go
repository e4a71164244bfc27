package schema

import "slices"

// Decompose flattens an object schema into single-property sub-schemas.
//
// Properties are visited in document order. A property whose value has its
// own properties is never packaged itself: its leaves are decomposed with the
// value's required list as parentRequired. A property with non-empty items is
// packaged whole after object items are replaced by their decomposition,
// computed against the enclosing object's required list. Every other property
// becomes one sub-schema, required when its name is in the node's required
// list or in parentRequired.
//
// The input is never modified. A node without properties yields an empty,
// non-nil slice.
func Decompose(node *Node, parentRequired ...string) []*Node {
	out := make([]*Node, 0)
	if !node.HasProperties() {
		return out
	}
	required := node.Required()
	for _, p := range node.Properties() {
		value := p.Schema
		switch value.Kind() {
		case KindObject:
			out = append(out, Decompose(value, value.Required()...)...)
			continue
		case KindArray:
			value = decomposeItems(value, required)
		}
		isRequired := slices.Contains(required, p.Name) || slices.Contains(parentRequired, p.Name)
		out = append(out, NewSubSchema(p.Name, value, isRequired))
	}
	return out
}

// decomposeItems returns a copy of value whose object items are replaced by
// their sub-schemas. A single object item becomes a tuple; inside a tuple the
// sub-schemas are spliced in place of the object element.
//
// Splicing shifts tuple positions: items [obj{p,q}, string] become
// [sub_p, sub_q, string], so the string element moves from index 1 to 2.
func decomposeItems(value *Node, required []string) *Node {
	rewritten := value.Clone()
	items := rewritten.Items()
	if items.IsTuple() {
		tuple := make([]*Node, 0, len(items.Tuple()))
		for _, it := range items.Tuple() {
			if it.Kind() == KindObject {
				tuple = append(tuple, Decompose(it, required...)...)
				continue
			}
			tuple = append(tuple, it)
		}
		rewritten.SetItems(TupleItems(tuple...))
		return rewritten
	}
	if single := items.Schema(); single.Kind() == KindObject {
		rewritten.SetItems(TupleItems(Decompose(single, required...)...))
	}
	return rewritten
}

// LeafNames returns the property name carried by each sub-schema, in order.
func LeafNames(subSchemas []*Node) []string {
	names := make([]string, 0, len(subSchemas))
	for _, s := range subSchemas {
		for _, p := range s.Properties() {
			names = append(names, p.Name)
		}
	}
	return names
}

// SubSchemaKey returns the single property name of a sub-schema.
func SubSchemaKey(sub *Node) string {
	props := sub.Properties()
	if len(props) == 0 {
		return ""
	}
	return props[0].Name
}
